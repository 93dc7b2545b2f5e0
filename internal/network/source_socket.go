package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/resilience"
)

const (
	// Time allowed to write a control frame
	writeWait = 5 * time.Second

	// Time allowed to read the next pong from the server
	pongWait = 30 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second
)

// SocketSource keeps a websocket open to the API and treats the server as
// reachable while the socket answers pings. It reconnects with exponential backoff.
type SocketSource struct {
	url        string
	dialer     *websocket.Dialer
	interfaces InterfaceLister
	logger     *zap.Logger
	events     chan State
	pingPeriod time.Duration
	pongWait   time.Duration

	mu    sync.RWMutex
	state State
}

// SocketOption configures a SocketSource
type SocketOption func(*SocketSource)

// WithHeartbeat overrides the ping period and pong deadline
func WithHeartbeat(ping, pong time.Duration) SocketOption {
	return func(s *SocketSource) {
		s.pingPeriod = ping
		s.pongWait = pong
	}
}

// WithSocketInterfaceLister replaces net.Interfaces
func WithSocketInterfaceLister(fn InterfaceLister) SocketOption {
	return func(s *SocketSource) { s.interfaces = fn }
}

// NewSocketSource creates a source for the websocket at url
func NewSocketSource(url string, logger *zap.Logger, opts ...SocketOption) *SocketSource {
	s := &SocketSource{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		interfaces: net.Interfaces,
		logger:     logger.With(zap.String("component", "socket_source")),
		events:     make(chan State, 1),
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check dials the socket once and closes it
func (s *SocketSource) Check(ctx context.Context) (State, error) {
	connected, typ, err := linkState(s.interfaces)
	if err != nil {
		return State{}, err
	}
	if !connected {
		return offlineState(time.Now()), nil
	}

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return State{Connected: true, InternetReachable: Reachable(false), Type: typ, CheckedAt: time.Now()}, nil
	}
	conn.Close()
	return State{Connected: true, InternetReachable: Reachable(true), Type: typ, CheckedAt: time.Now()}, nil
}

// Events delivers state changes seen by the heartbeat loop
func (s *SocketSource) Events() <-chan State {
	return s.events
}

// Last returns the most recent state the heartbeat loop observed
func (s *SocketSource) Last() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run maintains the socket until ctx is cancelled. Connections that drop
// before a full pong interval keep the backoff growing.
func (s *SocketSource) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.report(false)
			s.logger.Debug("Socket dial failed", zap.String("url", s.url), zap.Error(err))
		} else {
			s.report(true)
			connectedAt := time.Now()
			err = s.heartbeat(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			s.logger.Info("Socket lost", zap.String("url", s.url), zap.Error(err))
			s.report(false)
			if time.Since(connectedAt) > s.pongWait {
				attempt = 0
			}
		}

		attempt++
		delay := resilience.ExponentialBackoff(attempt, reconnectBaseDelay, reconnectMaxDelay)
		s.logger.Debug("Socket reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// heartbeat pings the server until the connection fails or ctx ends
func (s *SocketSource) heartbeat(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return ctx.Err()
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("server closed the socket")
			}
			return err
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

func (s *SocketSource) report(reachable bool) {
	connected, typ, err := linkState(s.interfaces)
	if err != nil {
		connected, typ = reachable, TypeUnknown
	}

	state := State{
		Connected:         connected,
		InternetReachable: Reachable(reachable && connected),
		Type:              typ,
		CheckedAt:         time.Now(),
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	publish(s.events, state)
}
