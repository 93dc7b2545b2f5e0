package offline

import (
	"context"

	"go.uber.org/zap"
)

// Syncer drains the queue. It is implemented by the sync engine.
type Syncer interface {
	SyncNow(ctx context.Context) (SyncResult, error)
}

// Service is the offline facade used by the API client, the local agent
// API and the CLI. Storage failures are logged and do not reach callers.
type Service struct {
	queue  *Queue
	syncer Syncer
	logger *zap.Logger
}

// NewService creates the facade. syncer may be nil until the engine is wired with SetSyncer.
func NewService(queue *Queue, syncer Syncer, logger *zap.Logger) *Service {
	return &Service{
		queue:  queue,
		syncer: syncer,
		logger: logger.With(zap.String("component", "offline_service")),
	}
}

// SetSyncer attaches the engine that SyncNow delegates to
func (s *Service) SetSyncer(syncer Syncer) {
	s.syncer = syncer
}

// EnqueueRequest queues req for replay and returns the stored entry
func (s *Service) EnqueueRequest(ctx context.Context, req Request) (*QueuedRequest, error) {
	entry, err := s.queue.Enqueue(ctx, req)
	if entry == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("Request queued in memory only", zap.String("id", entry.ID), zap.Error(err))
	}
	return entry, nil
}

// GetQueueSize returns the number of pending entries
func (s *Service) GetQueueSize() int {
	return s.queue.Size()
}

// PendingCount is an alias of GetQueueSize used by status views
func (s *Service) PendingCount() int {
	return s.queue.Size()
}

// SyncNow starts a drain cycle and waits for it to finish
func (s *Service) SyncNow(ctx context.Context) (SyncResult, error) {
	if s.syncer == nil {
		return SyncResult{Remaining: s.queue.Size()}, nil
	}
	return s.syncer.SyncNow(ctx)
}

// ClearQueue discards all pending and failed entries
func (s *Service) ClearQueue(ctx context.Context) {
	if err := s.queue.Clear(ctx); err != nil {
		s.logger.Error("Queue cleared in memory only", zap.Error(err))
	}
}

// Queue returns a snapshot of pending entries
func (s *Service) Queue() []QueuedRequest {
	return s.queue.GetQueue()
}

// FailedRequests returns entries dropped after retry exhaustion
func (s *Service) FailedRequests() []QueuedRequest {
	return s.queue.Failed()
}

// DismissFailed acknowledges a failed entry
func (s *Service) DismissFailed(ctx context.Context, id string) {
	if err := s.queue.DismissFailed(ctx, id); err != nil {
		s.logger.Error("Failed entry dismissed in memory only", zap.String("id", id), zap.Error(err))
	}
}

// Subscribe forwards to the queue's event stream
func (s *Service) Subscribe(fn Listener) func() {
	return s.queue.Subscribe(fn)
}
