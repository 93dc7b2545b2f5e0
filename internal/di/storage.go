package di

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/config"
	"github.com/jrjohn/arcana-pos-go/internal/storage"
)

// StorageModule provides the durable store selected by storage.driver
var StorageModule = fx.Module("storage",
	fx.Provide(provideStore),
)

func provideStore(lc fx.Lifecycle, cfg *config.StorageConfig, logger *zap.Logger) (storage.Store, error) {
	store, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing offline store")
			return store.Close()
		},
	})
	return store, nil
}
