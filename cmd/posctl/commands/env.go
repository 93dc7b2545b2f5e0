package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/config"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/storage"
	"github.com/jrjohn/arcana-pos-go/pkg/logger"
)

// env is the state every command works on
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   storage.Store
	queue   *offline.Queue
	service *offline.Service
}

func openEnv(ctx context.Context, flags *globalFlags) (*env, error) {
	cfg, err := config.LoadFile(flags.configPath)
	if err != nil {
		return nil, err
	}

	level := "warn"
	if flags.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Encoding: "console", Stderr: true})
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(&cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	var opts []offline.QueueOption
	if locker := storage.NewLocker(store); locker != nil {
		opts = append(opts, offline.WithSharedStore(locker))
	}
	queue := offline.NewQueue(ctx, store, log, opts...)
	return &env{
		cfg:     cfg,
		logger:  log,
		store:   store,
		queue:   queue,
		service: offline.NewService(queue, nil, log),
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("Failed to close store", zap.Error(err))
	}
	_ = e.logger.Sync()
}
