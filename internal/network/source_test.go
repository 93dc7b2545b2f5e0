package network

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ethernetUp() ([]net.Interface, error) {
	return []net.Interface{{Name: "eth0", Flags: net.FlagUp}}, nil
}

func noLink() ([]net.Interface, error) {
	return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}, nil
}

func TestNewProbeSource_Validation(t *testing.T) {
	_, err := NewProbeSource(ProbeConfig{}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewProbeSource(ProbeConfig{URL: "http://x", Schedule: "every now and then"}, zap.NewNop())
	assert.Error(t, err)

	p, err := NewProbeSource(ProbeConfig{URL: "http://x"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "@every 30s", p.cfg.Schedule)
	assert.Equal(t, 3*time.Second, p.cfg.Timeout)
}

func TestProbeSource_Check(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer healthy.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	tests := []struct {
		name      string
		url       string
		lister    InterfaceLister
		connected bool
		online    bool
	}{
		{"healthy server", healthy.URL, ethernetUp, true, true},
		{"server error", failing.URL, ethernetUp, true, false},
		{"unreachable host", "http://127.0.0.1:1/health", ethernetUp, true, false},
		{"no link skips probe", healthy.URL, noLink, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProbeSource(ProbeConfig{URL: tt.url, Timeout: time.Second}, zap.NewNop(),
				WithInterfaceLister(tt.lister))
			require.NoError(t, err)

			state, err := p.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.connected, state.Connected)
			assert.Equal(t, tt.online, state.IsOnline())
			require.NotNil(t, state.InternetReachable)
		})
	}
}

func TestProbeSource_CheckInterfaceError(t *testing.T) {
	p, err := NewProbeSource(ProbeConfig{URL: "http://x"}, zap.NewNop(),
		WithInterfaceLister(func() ([]net.Interface, error) { return nil, errors.New("denied") }))
	require.NoError(t, err)

	_, err = p.Check(context.Background())
	assert.Error(t, err)
}

func TestProbeSource_RunPublishesOnSchedule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	p, err := NewProbeSource(ProbeConfig{URL: server.URL, Schedule: "@every 1s"}, zap.NewNop(),
		WithInterfaceLister(ethernetUp))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case state := <-p.Events():
		assert.True(t, state.IsOnline())
	case <-time.After(3 * time.Second):
		t.Fatal("no scheduled check")
	}

	cancel()
	<-done
}

func newSocketServer(t *testing.T, hold bool) (*httptest.Server, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	drop := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if !hold {
			return
		}
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		<-drop
	}))
	var once sync.Once
	return server, func() { once.Do(func() { close(drop) }) }
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSocketSource_Check(t *testing.T) {
	server, _ := newSocketServer(t, false)
	defer server.Close()

	s := NewSocketSource(wsURL(server), zap.NewNop(), WithSocketInterfaceLister(ethernetUp))
	state, err := s.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, state.IsOnline())

	down := NewSocketSource("ws://127.0.0.1:1/ws", zap.NewNop(), WithSocketInterfaceLister(ethernetUp))
	state, err = down.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Connected)
	assert.False(t, state.IsOnline())
}

func TestSocketSource_RunReportsLoss(t *testing.T) {
	server, dropAll := newSocketServer(t, true)
	defer server.Close()

	s := NewSocketSource(wsURL(server), zap.NewNop(),
		WithSocketInterfaceLister(ethernetUp),
		WithHeartbeat(20*time.Millisecond, 200*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case state := <-s.Events():
		assert.True(t, state.IsOnline())
	case <-time.After(2 * time.Second):
		t.Fatal("socket never connected")
	}

	dropAll()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case state := <-s.Events():
			if !state.IsOnline() {
				assert.False(t, s.Last().IsOnline())
				cancel()
				<-done
				return
			}
		case <-deadline:
			t.Fatal("loss was not reported")
		}
	}
}
