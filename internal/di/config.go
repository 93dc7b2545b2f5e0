package di

import (
	"go.uber.org/fx"

	"github.com/jrjohn/arcana-pos-go/internal/config"
)

// ConfigPath is the config file given on the command line; empty searches the default locations
type ConfigPath string

// ConfigModule provides configuration dependencies
var ConfigModule = fx.Module("config",
	fx.Provide(
		provideConfig,
		provideAppConfig,
		provideLogConfig,
		provideAPIConfig,
		provideStorageConfig,
		provideNetworkConfig,
		provideSyncConfig,
		provideAgentConfig,
		provideTracingConfig,
	),
)

func provideConfig(path ConfigPath) (*config.Config, error) {
	return config.LoadFile(string(path))
}

func provideAppConfig(cfg *config.Config) *config.AppConfig {
	return &cfg.App
}

func provideLogConfig(cfg *config.Config) *config.LogConfig {
	return &cfg.Log
}

func provideAPIConfig(cfg *config.Config) *config.APIConfig {
	return &cfg.API
}

func provideStorageConfig(cfg *config.Config) *config.StorageConfig {
	return &cfg.Storage
}

func provideNetworkConfig(cfg *config.Config) *config.NetworkConfig {
	return &cfg.Network
}

func provideSyncConfig(cfg *config.Config) *config.SyncConfig {
	return &cfg.Sync
}

func provideAgentConfig(cfg *config.Config) *config.AgentConfig {
	return &cfg.Agent
}

func provideTracingConfig(cfg *config.Config) *config.TracingConfig {
	return &cfg.Tracing
}
