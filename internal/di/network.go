package di

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/network"
	"github.com/jrjohn/arcana-pos-go/internal/observability"
)

// NetworkModule provides the connectivity source and monitor
var NetworkModule = fx.Module("network",
	fx.Provide(
		network.NewSource,
		provideMonitor,
	),
)

func provideMonitor(lc fx.Lifecycle, source network.Source, metrics *observability.Metrics, logger *zap.Logger) *network.Monitor {
	monitor := network.NewMonitor(source, logger, network.WithRecorder(metrics))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return monitor.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			monitor.Stop()
			return nil
		},
	})
	return monitor
}
