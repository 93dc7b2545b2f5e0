// Package syncer drains the offline queue against the API whenever the
// device comes back online or a manual sync is requested.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/network"
	"github.com/jrjohn/arcana-pos-go/internal/observability"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/storage"
)

// drainLockName is the storage lock held for the length of a drain
const drainLockName = "offline:drain"

var (
	// ErrSyncInProgress is returned by SyncNow while another drain is running
	ErrSyncInProgress = errors.New("syncer: sync already in progress")
	// ErrOffline is returned by SyncNow when the monitor reports offline
	ErrOffline = errors.New("syncer: device is offline")
)

// Transport replays one queued request against the server
type Transport interface {
	Replay(ctx context.Context, req offline.QueuedRequest) error
}

// Connectivity is the part of network.Monitor the engine depends on
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn network.Listener) (unsubscribe func())
}

// Recorder receives drain metrics. *observability.Metrics satisfies it.
type Recorder interface {
	RecordReplay(method string, success bool)
	RecordDropped()
	RecordDrain(outcome string, duration time.Duration)
	SetQueueSize(pending, failed int)
}

// Phase is the engine's state machine position
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseSyncing Phase = "syncing"
)

// Drain outcomes reported to the Recorder
const (
	OutcomeCompleted   = "completed"
	OutcomeHalted      = "halted"
	OutcomeInterrupted = "interrupted"
)

// Status describes the engine and its last finished drain
type Status struct {
	State      Phase               `json:"state"`
	LastSyncAt *time.Time          `json:"lastSyncAt,omitempty"`
	LastResult *offline.SyncResult `json:"lastResult,omitempty"`
}

// Engine replays queued requests in FIFO order. Each drain walks a snapshot
// of the queue taken when it starts, so every entry is attempted at most once
// per drain and a failing entry does not block the ones behind it.
type Engine struct {
	queue     *offline.Queue
	transport Transport
	conn      Connectivity
	logger    *zap.Logger
	recorder  Recorder
	tracer    trace.Tracer
	now       func() time.Time
	onDrain   []func(Status)
	locker    storage.Locker

	haltOnFailure atomic.Bool
	syncOnStart   bool
	draining      atomic.Bool

	mu     sync.RWMutex
	status Status

	runMu       sync.Mutex
	life        context.Context
	stop        context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// Option configures an Engine
type Option func(*Engine)

// WithRecorder reports drain metrics
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithHaltOnFailure stops each drain at the first failed replay so later
// entries never overtake an earlier one
func WithHaltOnFailure(halt bool) Option {
	return func(e *Engine) { e.haltOnFailure.Store(halt) }
}

// WithSyncOnStart drains once from Start when already online
func WithSyncOnStart(enabled bool) Option {
	return func(e *Engine) { e.syncOnStart = enabled }
}

// WithTracer overrides the global tracer
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithDrainListener calls fn with the engine status after every finished drain
func WithDrainListener(fn func(Status)) Option {
	return func(e *Engine) { e.onDrain = append(e.onDrain, fn) }
}

// WithDrainLock holds a cross-process lock for the length of every drain so
// processes sharing one store never replay the same entries twice. A nil
// locker is ignored.
func WithDrainLock(l storage.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// NewEngine creates an engine. conn may be nil, in which case the engine
// always considers itself online.
func NewEngine(queue *offline.Queue, transport Transport, conn Connectivity, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		queue:     queue,
		transport: transport,
		conn:      conn,
		logger:    logger.With(zap.String("component", "sync_engine")),
		tracer:    otel.Tracer(observability.TracerName),
		now:       time.Now,
		status:    Status{State: PhaseIdle},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.life, e.stop = context.WithCancel(context.Background())
	return e
}

// SetHaltOnFailure switches the failure policy for subsequent entries
func (e *Engine) SetHaltOnFailure(halt bool) {
	if e.haltOnFailure.Swap(halt) != halt {
		e.logger.Info("Sync failure policy changed", zap.Bool("halt_on_failure", halt))
	}
}

// HaltOnFailure reports the current failure policy
func (e *Engine) HaltOnFailure() bool {
	return e.haltOnFailure.Load()
}

// Start subscribes to connectivity transitions and drains on every switch to online
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	if e.unsubscribe != nil {
		e.runMu.Unlock()
		return nil
	}
	if e.life.Err() != nil {
		e.life, e.stop = context.WithCancel(context.Background())
	}

	e.unsubscribe = func() {}
	if e.conn != nil {
		e.unsubscribe = e.conn.Subscribe(func(state network.State) {
			if state.IsOnline() {
				e.logger.Info("Back online, draining offline queue", zap.Int("pending", e.queue.Size()))
				e.trigger()
			}
		})
	}
	e.runMu.Unlock()

	e.logger.Info("Sync engine started",
		zap.Int("pending", e.queue.Size()),
		zap.Bool("halt_on_failure", e.HaltOnFailure()),
	)
	if e.syncOnStart && e.online() && !e.queue.IsEmpty() {
		e.trigger()
	}
	return nil
}

// Stop ends background drains. A drain in progress finishes its current
// replay and stops before the next entry.
func (e *Engine) Stop() {
	e.runMu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.stop()
	e.runMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.wg.Wait()
	e.logger.Info("Sync engine stopped")
}

// trigger starts a background drain unless one is running
func (e *Engine) trigger() {
	e.runMu.Lock()
	life := e.life
	e.runMu.Unlock()
	if life.Err() != nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.drain(life); err != nil && !errors.Is(err, ErrSyncInProgress) {
			e.logger.Warn("Background sync failed", zap.Error(err))
		}
	}()
}

// SyncNow drains the queue and waits for the result
func (e *Engine) SyncNow(ctx context.Context) (offline.SyncResult, error) {
	if !e.online() {
		return offline.SyncResult{Remaining: e.queue.Size()}, ErrOffline
	}
	return e.drain(ctx)
}

// Status returns the current phase and the last drain result
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := e.status
	if status.LastResult != nil {
		result := *status.LastResult
		status.LastResult = &result
	}
	return status
}

func (e *Engine) online() bool {
	return e.conn == nil || e.conn.IsOnline()
}

// stopReason reports why a drain should end before the next entry, or ""
func (e *Engine) stopReason(ctx context.Context) string {
	e.runMu.Lock()
	life := e.life
	e.runMu.Unlock()

	switch {
	case ctx.Err() != nil:
		return "cancelled"
	case life.Err() != nil:
		return "stopped"
	case !e.online():
		return "offline"
	default:
		return ""
	}
}

func (e *Engine) drain(ctx context.Context) (offline.SyncResult, error) {
	if !e.draining.CompareAndSwap(false, true) {
		return offline.SyncResult{Remaining: e.queue.Size()}, ErrSyncInProgress
	}
	defer e.draining.Store(false)

	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, drainLockName)
		if errors.Is(err, storage.ErrLockNotAcquired) {
			e.logger.Info("Another process is draining the shared queue")
			return offline.SyncResult{Remaining: e.queue.Size()}, ErrSyncInProgress
		}
		if err != nil {
			return offline.SyncResult{Remaining: e.queue.Size()}, fmt.Errorf("syncer: drain lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn("Drain lock not released", zap.Error(err))
			}
		}()
	}

	ctx, span := e.tracer.Start(ctx, "offline.drain")
	defer span.End()

	e.setPhase(PhaseSyncing)
	start := e.now()
	e.queue.Refresh(ctx)
	snapshot := e.queue.GetQueue()
	span.SetAttributes(observability.AttrQueueSize.Int(len(snapshot)))

	var result offline.SyncResult
	outcome := OutcomeCompleted

	for _, entry := range snapshot {
		if reason := e.stopReason(ctx); reason != "" {
			result.Interrupted = true
			outcome = OutcomeInterrupted
			e.logger.Info("Drain interrupted", zap.String("reason", reason))
			break
		}
		if _, ok := e.queue.Get(entry.ID); !ok {
			continue
		}

		result.Attempted++
		err := e.replay(ctx, entry)
		// the outcome is persisted even when the drain was stopped mid-replay
		book := context.WithoutCancel(ctx)
		if err == nil {
			result.Succeeded++
			if perr := e.queue.Remove(book, entry.ID); perr != nil {
				e.logger.Warn("Removal not persisted", zap.String("id", entry.ID), zap.Error(perr))
			}
			continue
		}

		result.Failed++
		exhausted, perr := e.queue.IncrementRetry(book, entry.ID, err)
		if perr != nil {
			e.logger.Warn("Retry count not persisted", zap.String("id", entry.ID), zap.Error(perr))
		}
		if exhausted {
			result.Dropped++
			if e.recorder != nil {
				e.recorder.RecordDropped()
			}
		}
		if e.HaltOnFailure() {
			outcome = OutcomeHalted
			break
		}
	}

	result.Remaining = e.queue.Size()
	elapsed := e.now().Sub(start)
	e.record(outcome, elapsed)
	e.finish(result)

	if result.Failed > 0 {
		span.SetStatus(codes.Error, "replay failures")
	}
	e.logger.Info("Drain finished",
		zap.String("outcome", outcome),
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("dropped", result.Dropped),
		zap.Int("remaining", result.Remaining),
		zap.Duration("duration", elapsed),
	)
	return result, nil
}

// replay sends one entry. The call is detached from ctx cancellation so a
// stop never aborts a request mid-flight; the transport's timeout bounds it.
func (e *Engine) replay(ctx context.Context, entry offline.QueuedRequest) error {
	ctx, span := e.tracer.Start(context.WithoutCancel(ctx), "offline.replay",
		trace.WithAttributes(
			observability.AttrRequestID.String(entry.ID),
			observability.AttrRequestMethod.String(string(entry.Method)),
			observability.AttrRequestPath.String(entry.Endpoint),
			observability.AttrRetryCount.Int(entry.RetryCount),
		),
	)
	defer span.End()

	err := e.transport.Replay(ctx, entry)
	e.recordReplay(string(entry.Method), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replay failed")
		e.logger.Debug("Replay failed",
			zap.String("id", entry.ID),
			zap.String("method", string(entry.Method)),
			zap.String("endpoint", entry.Endpoint),
			zap.Int("retry_count", entry.RetryCount),
			zap.Error(err),
		)
	}
	return err
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.status.State = p
	e.mu.Unlock()
}

func (e *Engine) finish(result offline.SyncResult) {
	at := e.now()
	e.mu.Lock()
	e.status = Status{State: PhaseIdle, LastSyncAt: &at, LastResult: &result}
	e.mu.Unlock()

	for _, fn := range e.onDrain {
		fn(e.Status())
	}
}

func (e *Engine) record(outcome string, elapsed time.Duration) {
	if e.recorder == nil {
		return
	}
	e.recorder.RecordDrain(outcome, elapsed)
	e.recorder.SetQueueSize(e.queue.Size(), len(e.queue.Failed()))
}

func (e *Engine) recordReplay(method string, success bool) {
	if e.recorder != nil {
		e.recorder.RecordReplay(method, success)
	}
}
