package di

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/observability"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/storage"
)

// OfflineModule provides the persisted queue and its facade
var OfflineModule = fx.Module("offline",
	fx.Provide(
		provideQueue,
		provideOfflineService,
	),
	fx.Invoke(reportQueueSize),
)

func provideQueue(store storage.Store, logger *zap.Logger) *offline.Queue {
	return offline.NewQueue(context.Background(), store, logger, queueOptions(store)...)
}

// queueOptions marks stores other processes can write as shared
func queueOptions(store storage.Store) []offline.QueueOption {
	if locker := storage.NewLocker(store); locker != nil {
		return []offline.QueueOption{offline.WithSharedStore(locker)}
	}
	return nil
}

// The engine is attached later by SyncModule
func provideOfflineService(queue *offline.Queue, logger *zap.Logger) *offline.Service {
	return offline.NewService(queue, nil, logger)
}

func reportQueueSize(queue *offline.Queue, metrics *observability.Metrics) {
	metrics.SetQueueSize(queue.Size(), len(queue.Failed()))
	queue.Subscribe(func(offline.Event) {
		metrics.SetQueueSize(queue.Size(), len(queue.Failed()))
	})
}
