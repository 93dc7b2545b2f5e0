package di

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/apiclient"
	"github.com/jrjohn/arcana-pos-go/internal/config"
	"github.com/jrjohn/arcana-pos-go/internal/network"
	"github.com/jrjohn/arcana-pos-go/internal/observability"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/offline/syncer"
	"github.com/jrjohn/arcana-pos-go/internal/storage"
	"github.com/jrjohn/arcana-pos-go/internal/websocket"
)

// SyncModule provides the engine that replays the queue when the device is online
var SyncModule = fx.Module("sync",
	fx.Provide(provideEngine),
	fx.Invoke(watchSyncConfig),
)

func provideEngine(
	lc fx.Lifecycle,
	cfg *config.SyncConfig,
	store storage.Store,
	queue *offline.Queue,
	service *offline.Service,
	client *apiclient.Client,
	monitor *network.Monitor,
	hub *websocket.Hub,
	metrics *observability.Metrics,
	tracing *observability.TracingProvider,
	logger *zap.Logger,
) *syncer.Engine {
	engine := syncer.NewEngine(queue, client, monitor, logger,
		syncer.WithRecorder(metrics),
		syncer.WithTracer(tracing.Tracer()),
		syncer.WithHaltOnFailure(cfg.HaltOnFailure),
		syncer.WithSyncOnStart(cfg.SyncOnStart),
		syncer.WithDrainLock(storage.NewLocker(store)),
		syncer.WithDrainListener(func(s syncer.Status) {
			hub.Broadcast(websocket.NewMessage(websocket.MessageTypeSync, "finished", s))
		}),
	)
	service.SetSyncer(engine)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return engine.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			engine.Stop()
			return nil
		},
	})
	return engine
}

// watchSyncConfig applies sync.halt_on_failure edits without a restart
func watchSyncConfig(path ConfigPath, engine *syncer.Engine, logger *zap.Logger) {
	err := config.Watch(string(path), logger, func(cfg *config.Config) {
		if engine.HaltOnFailure() != cfg.Sync.HaltOnFailure {
			logger.Info("Sync failure policy changed", zap.Bool("halt_on_failure", cfg.Sync.HaltOnFailure))
			engine.SetHaltOnFailure(cfg.Sync.HaltOnFailure)
		}
	})
	if err != nil {
		logger.Debug("Config hot reload disabled", zap.Error(err))
	}
}
