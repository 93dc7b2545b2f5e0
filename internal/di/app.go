// Package di assembles the agent from fx modules.
package di

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/config"
)

// CoreModule wires everything except the HTTP server: storage, queue,
// connectivity, API client, session and the sync engine
var CoreModule = fx.Options(
	ConfigModule,
	LoggerModule,
	ObservabilityModule,
	StorageModule,
	OfflineModule,
	NetworkModule,
	ClientModule,
	SessionModule,
	EventsModule,
	SyncModule,
)

// AppModule aggregates all application modules
var AppModule = fx.Options(
	CoreModule,
	ControllerModule,
	HTTPServerModule,
)

// PrintBanner prints the application startup banner
func PrintBanner(cfg *config.Config, logger *zap.Logger) {
	logger.Info("===========================================")
	logger.Info("        Arcana POS - Offline Agent         ")
	logger.Info("===========================================")
	logger.Info("Application Info",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)
	logger.Info("Offline Config",
		zap.String("storage", string(cfg.Storage.Driver)),
		zap.String("connectivity", string(cfg.Network.Source)),
		zap.String("api", cfg.API.BaseURL),
		zap.Bool("halt_on_failure", cfg.Sync.HaltOnFailure),
	)
	logger.Info("===========================================")
}
