package di

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/config"
	"github.com/jrjohn/arcana-pos-go/pkg/logger"
)

// LoggerModule provides logging dependencies
var LoggerModule = fx.Module("logger",
	fx.Provide(provideLogger),
)

func provideLogger(lc fx.Lifecycle, cfg *config.LogConfig, app *config.AppConfig) (*zap.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Level,
		Development: app.Debug,
		Encoding:    cfg.Encoding,
		File:        cfg.File,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.StopHook(func() {
		_ = log.Sync()
	}))
	return log.With(zap.String("service", app.Name)), nil
}
