package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gas-auth/internal/config"
	"gas-auth/internal/db"
)

// Open construye el Store indicado por STORAGE_DRIVER. La funcion devuelta
// libera las conexiones abiertas.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() {}

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", "memory":
		return NewMemoryStore(), noop, nil

	case "file":
		fs, err := NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, noop, err
		}
		return fs, noop, nil

	case "redis":
		if cfg.RedisAddr == "" {
			return nil, noop, fmt.Errorf("storage: REDIS_ADDR is required for the redis driver")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(ctxPing).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("storage: redis ping: %w", err)
		}
		store, err := NewRedisStore(client, "", cfg.RememberMeDuration)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		logger.Info("using redis storage", zap.String("addr", cfg.RedisAddr))
		return store, func() { _ = client.Close() }, nil

	case "postgres":
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.Ping(ctxPing, pool); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("storage: postgres ping: %w", err)
		}
		store := NewPgStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("storage: ensure schema: %w", err)
		}
		logger.Info("using postgres storage")
		return store, pool.Close, nil
	}
	return nil, noop, fmt.Errorf("storage: unknown driver %q", cfg.StorageDriver)
}
