package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const rateLimitPrefix = "rate_limit:"

// loginAttemptRepository counts failed logins per source address in Redis
type loginAttemptRepository struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewLoginAttemptRepository creates a new login attempt repository
func NewLoginAttemptRepository(rdb *redis.Client, logger *zap.Logger) *loginAttemptRepository {
	return &loginAttemptRepository{
		rdb:    rdb,
		logger: logger,
	}
}

// Count returns the current failure count for ip
func (r *loginAttemptRepository) Count(ctx context.Context, ip string) (int, error) {
	val, err := r.rdb.Get(ctx, rateLimitPrefix+ip).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		r.logger.Error("failed to get login attempts", zap.Error(err), zap.String("ip", ip))
		return 0, fmt.Errorf("failed to get login attempts: %w", err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		r.logger.Warn("ignoring malformed login attempt counter", zap.String("ip", ip), zap.String("value", val))
		return 0, nil
	}
	return count, nil
}

// Increment adds one failure for ip and restarts its window
func (r *loginAttemptRepository) Increment(ctx context.Context, ip string, window time.Duration) (int, error) {
	key := rateLimitPrefix + ip

	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		r.logger.Error("failed to increment login attempts", zap.Error(err), zap.String("ip", ip))
		return 0, fmt.Errorf("failed to increment login attempts: %w", err)
	}

	if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
		r.logger.Error("failed to set login attempts expiry", zap.Error(err), zap.String("ip", ip))
		return int(count), fmt.Errorf("failed to set login attempts expiry: %w", err)
	}

	return int(count), nil
}

// Reset clears the failure count for ip
func (r *loginAttemptRepository) Reset(ctx context.Context, ip string) error {
	if err := r.rdb.Del(ctx, rateLimitPrefix+ip).Err(); err != nil {
		r.logger.Error("failed to reset login attempts", zap.Error(err), zap.String("ip", ip))
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}
