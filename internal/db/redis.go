/**
 * @description
 * Redis connection manager using go-redis.
 * Used for the daily schedule cache and the odds pub/sub channel.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 * - github.com/alicebob/miniredis/v2: in-process fallback
 */

package db

import (
	"context"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis initializes the Redis client
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}

	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = 5 * time.Second
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = 5 * time.Second
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}
	if opt.MaxRetries == 0 {
		opt.MaxRetries = 2
	}
	if opt.PoolSize == 0 {
		opt.PoolSize = 10
	}

	client := redis.NewClient(opt)

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), opt.DialTimeout)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("✅ Connected to Redis")
	return client, nil
}

// ConnectRedisOrLocal falls back to an in-process Redis when the configured one is unreachable.
// The returned closer releases the fallback server, if any.
func ConnectRedisOrLocal(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := ConnectRedis(cfg)
	if err == nil {
		return client, func() { _ = client.Close() }, nil
	}
	logger.Warn("Redis unavailable (%v), using in-process instance", err)

	mr, mrErr := miniredis.Run()
	if mrErr != nil {
		return nil, nil, mrErr
	}
	local := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return local, func() {
		_ = local.Close()
		mr.Close()
	}, nil
}
