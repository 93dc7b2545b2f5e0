package network

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener receives the new state after a transition
type Listener func(State)

// OnlineRecorder observes the online flag. *observability.Metrics satisfies it.
type OnlineRecorder interface {
	SetOnline(online bool)
}

// Monitor holds the latest connectivity state and notifies subscribers on transitions.
// Until the first check completes the state is offline with unknown reachability.
type Monitor struct {
	source   Source
	logger   *zap.Logger
	recorder OnlineRecorder
	now      func() time.Time

	mu    sync.RWMutex
	state State

	listenerMu sync.RWMutex
	listeners  map[uint64]Listener
	nextID     uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithRecorder reports the online flag on every update
func WithRecorder(r OnlineRecorder) MonitorOption {
	return func(m *Monitor) { m.recorder = r }
}

// NewMonitor creates a monitor over source
func NewMonitor(source Source, logger *zap.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		source:    source,
		logger:    logger.With(zap.String("component", "network_monitor")),
		now:       time.Now,
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state = State{Type: TypeUnknown}
	return m
}

// State returns the last snapshot
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsOnline reports whether the last snapshot is connected and reachable
func (m *Monitor) IsOnline() bool {
	return m.State().IsOnline()
}

// Refresh runs a check now. A failed check is logged and recorded as offline.
func (m *Monitor) Refresh(ctx context.Context) (State, error) {
	state, err := m.source.Check(ctx)
	if err != nil {
		m.logger.Warn("Connectivity check failed, assuming offline", zap.Error(err))
		state = offlineState(m.now())
	}
	m.update(state)
	return state, err
}

// Subscribe registers fn for transitions and returns a function that removes it
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	m.listenerMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenerMu.Lock()
			delete(m.listeners, id)
			m.listenerMu.Unlock()
		})
	}
}

// Start runs an initial check, then follows the source's events until Stop.
// Calling Start twice is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return nil
	}

	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Debug("Initial connectivity check failed", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	if runner, ok := m.source.(Runner); ok {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			runner.Run(runCtx)
		}()
	}

	if events := m.source.Events(); events != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.consume(runCtx, events)
		}()
	}

	state := m.State()
	m.logger.Info("Network monitor started",
		zap.Bool("online", state.IsOnline()),
		zap.String("type", state.Type),
	)
	return nil
}

// Stop ends background work and waits for it to finish
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	m.logger.Info("Network monitor stopped")
}

func (m *Monitor) consume(ctx context.Context, events <-chan State) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-events:
			if !ok {
				return
			}
			m.update(state)
		}
	}
}

func (m *Monitor) update(next State) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.SetOnline(next.IsOnline())
	}
	if !prev.transitioned(next) {
		return
	}

	m.logger.Info("Connectivity changed",
		zap.Bool("online", next.IsOnline()),
		zap.Bool("connected", next.Connected),
		zap.String("type", next.Type),
	)

	m.listenerMu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenerMu.RUnlock()

	for _, l := range listeners {
		l(next)
	}
}
