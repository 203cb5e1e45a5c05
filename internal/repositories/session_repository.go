package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

const sessionPrefix = "session:"

// sessionRepository stores session tokens in Redis with a TTL
type sessionRepository struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(rdb *redis.Client, logger *zap.Logger) *sessionRepository {
	return &sessionRepository{
		rdb:    rdb,
		logger: logger,
	}
}

// Create maps token to username until ttl elapses
func (r *sessionRepository) Create(ctx context.Context, token, username string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, sessionPrefix+token, username, ttl).Err(); err != nil {
		r.logger.Error("failed to create session", zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetUsername returns the username stored for token
func (r *sessionRepository) GetUsername(ctx context.Context, token string) (string, error) {
	username, err := r.rdb.Get(ctx, sessionPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: session not found", models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get session", zap.Error(err))
		return "", fmt.Errorf("failed to get session: %w", err)
	}
	return username, nil
}

// Delete removes a session
func (r *sessionRepository) Delete(ctx context.Context, token string) error {
	if err := r.rdb.Del(ctx, sessionPrefix+token).Err(); err != nil {
		r.logger.Error("failed to delete session", zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
