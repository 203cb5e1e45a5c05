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

const scanBatchSize = 100

// documentRepository caches rendered documents in Redis
type documentRepository struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewDocumentRepository creates a new document cache repository
func NewDocumentRepository(rdb *redis.Client, logger *zap.Logger) *documentRepository {
	return &documentRepository{
		rdb:    rdb,
		logger: logger,
	}
}

// Get returns the cached body stored under key
func (r *documentRepository) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}
	if err != nil {
		r.logger.Error("failed to read cached document", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("failed to read cached document: %w", err)
	}
	return body, nil
}

// Set stores body under key for ttl
func (r *documentRepository) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, body, ttl).Err(); err != nil {
		r.logger.Error("failed to cache document", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to cache document: %w", err)
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix
func (r *documentRepository) DeleteByPrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, prefix+"*", scanBatchSize).Result()
		if err != nil {
			r.logger.Error("failed to scan cached documents", zap.Error(err), zap.String("prefix", prefix))
			return fmt.Errorf("failed to scan cached documents: %w", err)
		}

		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				r.logger.Error("failed to delete cached documents", zap.Error(err), zap.String("prefix", prefix))
				return fmt.Errorf("failed to delete cached documents: %w", err)
			}
		}

		if next == 0 {
			return nil
		}
		cursor = next
	}
}
