package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/storage"
)

// How long a mutation on a shared store waits for the queue lock
const (
	sharedLockWait  = 2 * time.Second
	sharedLockRetry = 25 * time.Millisecond
)

// Queue is the persisted FIFO of pending requests.
//
// Every mutation rewrites the whole array under one storage key. The mutex
// serialises the read-mutate-persist cycle so the in-memory mirror and the
// stored copy move together. A failed write leaves the in-memory state
// applied and reports ErrPersistFailed; the change is lost on restart.
//
// When the store is shared with other processes (WithSharedStore) each
// mutation first re-reads the stored arrays, under a cross-process lock,
// so a stale mirror never writes back entries another process removed.
type Queue struct {
	store     storage.Store
	logger    *zap.Logger
	key       string
	failedKey string
	now       func() time.Time
	shared    bool
	locker    storage.Locker

	mu     sync.Mutex
	items  []QueuedRequest
	failed []QueuedRequest

	listenerMu sync.RWMutex
	listeners  map[uint64]Listener
	nextID     uint64
}

// QueueOption configures a Queue
type QueueOption func(*Queue)

// WithStorageKey stores the queue under a custom key
func WithStorageKey(key string) QueueOption {
	return func(q *Queue) {
		q.key = key
		q.failedKey = key + ":failed"
	}
}

// WithClock overrides the time source used for ids and timestamps
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

// WithSharedStore reloads the stored queue before every mutation. locker,
// when non-nil, makes each reload-mutate-persist cycle exclusive across processes.
func WithSharedStore(locker storage.Locker) QueueOption {
	return func(q *Queue) {
		q.shared = true
		q.locker = locker
	}
}

// NewQueue creates a queue and loads any previously persisted entries.
// Load failures are logged and the queue starts empty.
func NewQueue(ctx context.Context, store storage.Store, logger *zap.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		store:     store,
		logger:    logger.With(zap.String("component", "offline_queue")),
		key:       QueueStorageKey,
		failedKey: FailedStorageKey,
		now:       time.Now,
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.items = q.load(ctx, q.key)
	q.failed = q.load(ctx, q.failedKey)

	q.logger.Info("Offline queue loaded",
		zap.Int("pending", len(q.items)),
		zap.Int("failed", len(q.failed)),
	)
	return q
}

func (q *Queue) load(ctx context.Context, key string) []QueuedRequest {
	data, err := q.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return []QueuedRequest{}
	}
	if err != nil {
		q.logger.Error("Failed to load offline queue, starting empty", zap.String("key", key), zap.Error(err))
		return []QueuedRequest{}
	}

	var items []QueuedRequest
	if err := json.Unmarshal(data, &items); err != nil {
		q.logger.Error("Failed to decode offline queue, starting empty", zap.String("key", key), zap.Error(err))
		return []QueuedRequest{}
	}
	if items == nil {
		items = []QueuedRequest{}
	}
	return items
}

// Refresh reloads the mirror from a shared store. It is a no-op for a store
// this process owns, where the in-memory state is authoritative.
func (q *Queue) Refresh(ctx context.Context) {
	if !q.shared {
		return
	}
	q.mu.Lock()
	q.reloadLocked(ctx)
	q.mu.Unlock()
}

// beginShared prepares a mutation on a shared store: it takes the queue lock
// and reloads the mirror. The returned func ends the section. Caller holds q.mu.
func (q *Queue) beginShared(ctx context.Context) (end func()) {
	if !q.shared {
		return func() {}
	}
	end = q.lockShared(ctx)
	q.reloadLocked(ctx)
	return end
}

func (q *Queue) lockShared(ctx context.Context) func() {
	noop := func() {}
	if q.locker == nil {
		return noop
	}

	deadline := time.Now().Add(sharedLockWait)
	for {
		unlock, err := q.locker.Lock(ctx, q.key+":lock")
		if err == nil {
			return func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					q.logger.Warn("Queue lock not released", zap.Error(err))
				}
			}
		}
		if !errors.Is(err, storage.ErrLockNotAcquired) || time.Now().After(deadline) {
			q.logger.Warn("Queue lock unavailable, writing without it", zap.Error(err))
			return noop
		}

		select {
		case <-ctx.Done():
			q.logger.Warn("Queue lock wait cancelled, writing without it", zap.Error(ctx.Err()))
			return noop
		case <-time.After(sharedLockRetry):
		}
	}
}

// reloadLocked replaces the mirror with the stored arrays. Read failures keep
// the current mirror. Caller holds q.mu.
func (q *Queue) reloadLocked(ctx context.Context) {
	if items, ok := q.read(ctx, q.key); ok {
		q.items = items
	}
	if failed, ok := q.read(ctx, q.failedKey); ok {
		q.failed = failed
	}
}

func (q *Queue) read(ctx context.Context, key string) ([]QueuedRequest, bool) {
	data, err := q.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return []QueuedRequest{}, true
	}
	if err != nil {
		q.logger.Warn("Failed to reload shared queue", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var items []QueuedRequest
	if err := json.Unmarshal(data, &items); err != nil {
		q.logger.Warn("Failed to decode shared queue", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if items == nil {
		items = []QueuedRequest{}
	}
	return items, true
}

// persist writes items under key. Caller holds q.mu.
func (q *Queue) persist(ctx context.Context, key string, items []QueuedRequest) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	if err := q.store.Set(ctx, key, data); err != nil {
		q.logger.Error("Failed to persist offline queue", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	return nil
}

// Enqueue appends a new entry with a fresh id, the current timestamp and a
// zero retry count. Identical requests are not de-duplicated.
func (q *Queue) Enqueue(ctx context.Context, req Request) (*QueuedRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	}

	now := q.now()
	entry := QueuedRequest{
		ID:             newRequestID(now),
		Endpoint:       req.Endpoint,
		Method:         req.Method,
		Payload:        req.Payload,
		Headers:        req.Headers,
		Timestamp:      now.UnixMilli(),
		RetryCount:     0,
		IdempotencyKey: key,
	}
	entry = entry.Clone()

	q.mu.Lock()
	end := q.beginShared(ctx)
	q.items = append(q.items, entry)
	size := len(q.items)
	err := q.persist(ctx, q.key, q.items)
	end()
	q.mu.Unlock()

	q.logger.Debug("Request queued",
		zap.String("id", entry.ID),
		zap.String("method", string(entry.Method)),
		zap.String("endpoint", entry.Endpoint),
		zap.Int("pending", size),
	)
	q.emit(Event{Type: EventEnqueued, Request: entry.Clone(), Size: size})

	out := entry.Clone()
	return &out, err
}

// GetQueue returns a copy of all pending entries in FIFO order
func (q *Queue) GetQueue() []QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cloneAll(q.items)
}

// GetNext returns the head of the queue, or false when empty
func (q *Queue) GetNext() (*QueuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0].Clone()
	return &head, true
}

// Get returns the entry with id, or false when it is not queued
func (q *Queue) Get(id string) (*QueuedRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexOf(id); i >= 0 {
		entry := q.items[i].Clone()
		return &entry, true
	}
	return nil, false
}

// Remove deletes the entry with id. Removing an unknown id is a no-op.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	end := q.beginShared(ctx)
	i := q.indexOf(id)
	if i < 0 {
		end()
		q.mu.Unlock()
		return nil
	}
	removed := q.items[i]
	q.items = append(q.items[:i:i], q.items[i+1:]...)
	size := len(q.items)
	err := q.persist(ctx, q.key, q.items)
	end()
	q.mu.Unlock()

	q.emit(Event{Type: EventRemoved, Request: removed, Size: size})
	return err
}

// IncrementRetry records a failed replay of id. When the count reaches
// MaxRetries the entry is removed and moved to the failed list, and
// exhausted is true. cause may be nil. Unknown ids are a no-op.
func (q *Queue) IncrementRetry(ctx context.Context, id string, cause error) (exhausted bool, err error) {
	q.mu.Lock()
	end := q.beginShared(ctx)
	i := q.indexOf(id)
	if i < 0 {
		end()
		q.mu.Unlock()
		return false, nil
	}

	entry := q.items[i].Clone()
	entry.RetryCount++
	if cause != nil {
		entry.LastError = cause.Error()
	}

	var event Event
	if entry.RetryCount >= MaxRetries {
		exhausted = true
		q.items = append(q.items[:i:i], q.items[i+1:]...)
		q.failed = append(q.failed, entry)
		err = q.persist(ctx, q.key, q.items)
		if ferr := q.persist(ctx, q.failedKey, q.failed); err == nil {
			err = ferr
		}
		event = Event{Type: EventFailedPermanently, Request: entry.Clone(), Size: len(q.items)}
	} else {
		q.items[i] = entry
		err = q.persist(ctx, q.key, q.items)
		event = Event{Type: EventRetried, Request: entry.Clone(), Size: len(q.items)}
	}
	end()
	q.mu.Unlock()

	if exhausted {
		q.logger.Warn("Dropping request after retry exhaustion",
			zap.String("id", entry.ID),
			zap.String("method", string(entry.Method)),
			zap.String("endpoint", entry.Endpoint),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	}
	q.emit(event)
	return exhausted, err
}

// Clear empties the queue and the failed list and persists the empty state
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	end := q.beginShared(ctx)
	q.items = []QueuedRequest{}
	q.failed = []QueuedRequest{}
	err := q.persist(ctx, q.key, q.items)
	if ferr := q.persist(ctx, q.failedKey, q.failed); err == nil {
		err = ferr
	}
	end()
	q.mu.Unlock()

	q.logger.Info("Offline queue cleared")
	q.emit(Event{Type: EventCleared, Size: 0})
	return err
}

// Size returns the number of pending entries
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty reports whether no entries are pending
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Failed returns the entries dropped after retry exhaustion, oldest first
func (q *Queue) Failed() []QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cloneAll(q.failed)
}

// DismissFailed removes id from the failed list once the user has seen it
func (q *Queue) DismissFailed(ctx context.Context, id string) error {
	q.mu.Lock()
	end := q.beginShared(ctx)
	idx := -1
	for i := range q.failed {
		if q.failed[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		end()
		q.mu.Unlock()
		return nil
	}
	dismissed := q.failed[idx]
	q.failed = append(q.failed[:idx:idx], q.failed[idx+1:]...)
	err := q.persist(ctx, q.failedKey, q.failed)
	size := len(q.items)
	end()
	q.mu.Unlock()

	q.emit(Event{Type: EventFailedDismissed, Request: dismissed, Size: size})
	return err
}

// Subscribe registers fn for queue events and returns a function that removes it
func (q *Queue) Subscribe(fn Listener) (unsubscribe func()) {
	q.listenerMu.Lock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = fn
	q.listenerMu.Unlock()

	return func() {
		q.listenerMu.Lock()
		delete(q.listeners, id)
		q.listenerMu.Unlock()
	}
}

func (q *Queue) emit(e Event) {
	q.listenerMu.RLock()
	listeners := make([]Listener, 0, len(q.listeners))
	for _, l := range q.listeners {
		listeners = append(listeners, l)
	}
	q.listenerMu.RUnlock()

	for _, l := range listeners {
		l(e)
	}
}

// indexOf returns the position of id or -1. Caller holds q.mu.
func (q *Queue) indexOf(id string) int {
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(items []QueuedRequest) []QueuedRequest {
	out := make([]QueuedRequest, len(items))
	for i := range items {
		out[i] = items[i].Clone()
	}
	return out
}
