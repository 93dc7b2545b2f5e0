package di

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/cache"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/session"
	"github.com/jrjohn/arcana-pos-go/internal/storage"
)

// SessionModule provides the token holder
var SessionModule = fx.Module("session",
	fx.Provide(provideSessionManager),
)

func provideSessionManager(store storage.Store, service *offline.Service, responses *cache.ResponseCache, logger *zap.Logger) *session.Manager {
	return session.NewManager(context.Background(), store, service, responses, logger)
}
