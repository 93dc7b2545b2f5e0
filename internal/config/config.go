package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// StorageDriver represents supported local persistence backends
type StorageDriver string

const (
	StorageBadger StorageDriver = "badger"
	StorageSQLite StorageDriver = "sqlite"
	StorageRedis  StorageDriver = "redis"
	StorageMemory StorageDriver = "memory"
)

// ConnectivitySource represents how the network monitor learns about connectivity
type ConnectivitySource string

const (
	SourceProbe  ConnectivitySource = "probe"
	SourceSocket ConnectivitySource = "socket"
	SourceStatic ConnectivitySource = "static"
)

// Config holds all client configuration
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Log     LogConfig     `mapstructure:"log"`
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Network NetworkConfig `mapstructure:"network"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
	File     string `mapstructure:"file"`
}

// APIConfig holds settings for the remote POS API
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// StorageConfig holds local persistence settings
type StorageConfig struct {
	Driver     StorageDriver `mapstructure:"driver"`
	BadgerPath string        `mapstructure:"badger_path"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NetworkConfig holds connectivity monitoring settings
type NetworkConfig struct {
	Source        ConnectivitySource `mapstructure:"source"`
	ProbeURL      string             `mapstructure:"probe_url"`
	ProbeTimeout  time.Duration      `mapstructure:"probe_timeout"`
	ProbeSchedule string             `mapstructure:"probe_schedule"`
	SocketURL     string             `mapstructure:"socket_url"`
}

// SyncConfig holds sync engine settings
type SyncConfig struct {
	HaltOnFailure bool `mapstructure:"halt_on_failure"`
	SyncOnStart   bool `mapstructure:"sync_on_start"`
}

// AgentConfig holds settings for the local status API
type AgentConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// TracingConfig holds OpenTelemetry span export settings
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"` // stdout, otlp-grpc, otlp-http
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Load reads configuration from the default search paths and environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from the default search paths when path is empty
func LoadFile(path string) (*Config, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// Watch re-reads the config file whenever it changes and hands the result to onChange.
// It returns an error when no config file exists to watch.
func Watch(path string, logger *zap.Logger, onChange func(*Config)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("Configuration reloaded", zap.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/arcana-pos/")
	}

	v.SetEnvPrefix("ARCANA_POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "arcana-pos")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.file", "")

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.retry_attempts", 2)

	v.SetDefault("storage.driver", StorageBadger)
	v.SetDefault("storage.badger_path", "./data/offline")
	v.SetDefault("storage.sqlite_path", "./data/offline.db")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)

	v.SetDefault("network.source", SourceProbe)
	v.SetDefault("network.probe_url", "http://localhost:8080/health")
	v.SetDefault("network.probe_timeout", 3*time.Second)
	v.SetDefault("network.probe_schedule", "@every 30s")
	v.SetDefault("network.socket_url", "ws://localhost:8080/ws")

	v.SetDefault("sync.halt_on_failure", false)
	v.SetDefault("sync.sync_on_start", true)

	v.SetDefault("agent.listen_addr", "127.0.0.1:8787")
	v.SetDefault("agent.shutdown_timeout", 10*time.Second)
	v.SetDefault("agent.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sampling_rate", 1.0)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}

	switch c.Storage.Driver {
	case StorageBadger:
		if c.Storage.BadgerPath == "" {
			return fmt.Errorf("badger path is required")
		}
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}

	switch c.Network.Source {
	case SourceProbe:
		if c.Network.ProbeURL == "" {
			return fmt.Errorf("probe url is required for probe source")
		}
	case SourceSocket:
		if c.Network.SocketURL == "" {
			return fmt.Errorf("socket url is required for socket source")
		}
	case SourceStatic:
	default:
		return fmt.Errorf("unsupported connectivity source %q", c.Network.Source)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "otlp-grpc", "otlp-http":
		default:
			return fmt.Errorf("unsupported tracing exporter %q", c.Tracing.Exporter)
		}
	}

	return nil
}

// IsProduction reports whether the app runs in production
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
