package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/config"
)

// Open creates the Store selected by cfg.Driver
func Open(cfg *config.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.StorageBadger:
		return NewBadgerStore(cfg.BadgerPath, logger)
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
		return NewRedisStore(client), nil
	case config.StorageMemory:
		logger.Warn("Using in-memory storage, pending changes will not survive a restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
