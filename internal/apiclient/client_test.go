package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/cache"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/resilience"
	"github.com/jrjohn/arcana-pos-go/internal/storage"
	apperrors "github.com/jrjohn/arcana-pos-go/pkg/errors"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type switchConn struct{ online atomic.Bool }

func (s *switchConn) IsOnline() bool { return s.online.Load() }

type product struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func fastRetry() *resilience.RetryConfig {
	cfg := &resilience.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1,
	}
	cfg.IsRetryable = isRetryable
	return cfg
}

func newOfflineService(t *testing.T) *offline.Service {
	t.Helper()
	q := offline.NewQueue(context.Background(), storage.NewMemoryStore(), zap.NewNop())
	return offline.NewService(q, nil, zap.NewNop())
}

func TestClient_GetDecodesAndCaches(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/products/1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "full", r.URL.Query().Get("view"))
		json.NewEncoder(w).Encode(product{ID: 1, Name: "Latte"})
	}))
	defer server.Close()

	c := New(server.URL, time.Second, zap.NewNop(),
		WithTokenSource(staticToken("tok")),
		WithCache(cache.New(zap.NewNop())),
	)

	for i := 0; i < 3; i++ {
		var p product
		require.NoError(t, c.Get(context.Background(), "/api/products/1", url.Values{"view": {"full"}}, &p))
		assert.Equal(t, "Latte", p.Name)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_GetRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":7,"name":"Mocha"}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second, zap.NewNop(), WithRetry(fastRetry()))

	var p product
	require.NoError(t, c.Get(context.Background(), "/api/products/7", nil, &p))
	assert.Equal(t, 7, p.ID)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_GetDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"product not found"}`))
	}))
	defer server.Close()

	c := New(server.URL, time.Second, zap.NewNop(), WithRetry(fastRetry()))

	err := c.Get(context.Background(), "/api/products/404", nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, "product not found", err.Error())
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_GetCollapsesConcurrentReads(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := New(server.URL, 5*time.Second, zap.NewNop(), WithCache(cache.New(zap.NewNop())))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out []product
			assert.NoError(t, c.Get(context.Background(), "/api/products", nil, &out))
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_PostSendsIdempotencyKeyAndInvalidates(t *testing.T) {
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets.Add(1)
			w.Write([]byte(`[]`))
		case http.MethodPost:
			assert.NotEmpty(t, r.Header.Get(offline.IdempotencyHeader))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"id":0,"name":"Tea"}`, string(body))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":9,"name":"Tea"}`))
		}
	}))
	defer server.Close()

	c := New(server.URL, time.Second, zap.NewNop(), WithCache(cache.New(zap.NewNop())))
	ctx := context.Background()

	require.NoError(t, c.Get(ctx, "/api/products", nil, nil))
	require.NoError(t, c.Get(ctx, "/api/products", nil, nil))
	assert.Equal(t, int32(1), gets.Load())

	var created product
	require.NoError(t, c.Post(ctx, "/api/products", product{Name: "Tea"}, &created))
	assert.Equal(t, 9, created.ID)

	require.NoError(t, c.Get(ctx, "/api/products", nil, nil))
	assert.Equal(t, int32(2), gets.Load())
}

func TestClient_WriteQueuedWhileOffline(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	svc := newOfflineService(t)
	conn := &switchConn{}
	c := New(server.URL, time.Second, zap.NewNop(), WithQueue(svc), WithConnectivity(conn))

	err := c.Put(context.Background(), "/api/items/1", map[string]int{"qty": 3}, nil, offline.WithHeader("X-Till", "4"))
	require.ErrorIs(t, err, ErrQueued)

	var queued *QueuedError
	require.True(t, errors.As(err, &queued))
	assert.Nil(t, queued.Cause)
	assert.Equal(t, offline.MethodPut, queued.Request.Method)
	assert.Equal(t, "4", queued.Request.Headers["X-Till"])
	assert.NotEmpty(t, queued.Request.IdempotencyKey)

	assert.Equal(t, 1, svc.GetQueueSize())
	assert.Equal(t, int32(0), hits.Load())
}

func TestClient_WriteQueuedOnTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	svc := newOfflineService(t)
	conn := &switchConn{}
	conn.online.Store(true)
	c := New(addr, time.Second, zap.NewNop(), WithQueue(svc), WithConnectivity(conn))

	err := c.Delete(context.Background(), "/api/items/1", nil)
	require.ErrorIs(t, err, ErrQueued)

	var queued *QueuedError
	require.True(t, errors.As(err, &queued))
	assert.Error(t, queued.Cause)
	assert.Equal(t, 1, svc.GetQueueSize())
}

func TestClient_WriteHTTPErrorNotQueued(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"error":{"message":"sku already exists"}}`))
	}))
	defer server.Close()

	svc := newOfflineService(t)
	c := New(server.URL, time.Second, zap.NewNop(), WithQueue(svc))

	err := c.Post(context.Background(), "/api/products", product{Name: "Dup"}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueued)
	assert.Equal(t, http.StatusConflict, apperrors.GetStatus(err))
	assert.Equal(t, "sku already exists", err.Error())
	assert.Equal(t, 0, svc.GetQueueSize())
}

func TestClient_WriteWithoutQueueReturnsTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second, zap.NewNop())

	err := c.Post(context.Background(), "/api/products", nil, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrQueued)
}

func TestClient_MalformedEndpointNotQueued(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	svc := newOfflineService(t)
	conn := &switchConn{}
	conn.online.Store(true)
	c := New(server.URL, time.Second, zap.NewNop(), WithQueue(svc), WithConnectivity(conn))

	err := c.Post(context.Background(), "/api/items/%zz", product{Name: "Broken"}, nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.NotErrorIs(t, err, ErrQueued)
	assert.Equal(t, 0, svc.GetQueueSize())
	assert.Equal(t, int32(0), hits.Load())
}

func TestClient_Replay(t *testing.T) {
	var got *http.Request
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	rc := cache.New(zap.NewNop())
	rc.Set(cache.Key(http.MethodGet, "/api/items", nil), []byte("[]"))
	c := New(server.URL, time.Second, zap.NewNop(), WithCache(rc), WithTokenSource(staticToken("abc")))

	err := c.Replay(context.Background(), offline.QueuedRequest{
		ID:             "1-abc",
		Endpoint:       "/api/items/1",
		Method:         offline.MethodPut,
		Payload:        json.RawMessage(`{"qty":1}`),
		Headers:        map[string]string{"X-Till": "2"},
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/api/items/1", got.URL.Path)
	assert.Equal(t, "idem-1", got.Header.Get(offline.IdempotencyHeader))
	assert.Equal(t, "2", got.Header.Get("X-Till"))
	assert.Equal(t, "Bearer abc", got.Header.Get("Authorization"))
	assert.JSONEq(t, `{"qty":1}`, string(body))
	assert.Equal(t, 0, rc.Len())
}

func TestClient_ReplayCircuitBreaker(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	breaker := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
		Name:                "test",
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Hour,
		MaxHalfOpenRequests: 1,
		IsFailure:           isRetryable,
	}, zap.NewNop())
	c := New(server.URL, time.Second, zap.NewNop(), WithCircuitBreaker(breaker))

	req := offline.QueuedRequest{ID: "1", Endpoint: "/api/items", Method: offline.MethodPost}
	for i := 0; i < 2; i++ {
		err := c.Replay(context.Background(), req)
		assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetStatus(err))
	}

	err := c.Replay(context.Background(), req)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, resilience.StateOpen, c.Breaker().State())
}

func TestClient_ReplayClientErrorsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(server.URL, time.Second, zap.NewNop())
	req := offline.QueuedRequest{ID: "1", Endpoint: "/api/items", Method: offline.MethodPost}
	for i := 0; i < 10; i++ {
		require.Error(t, c.Replay(context.Background(), req))
	}
	assert.Equal(t, resilience.StateClosed, c.Breaker().State())
}

func TestIsTransportError(t *testing.T) {
	assert.True(t, isTransportError(errors.New("dial tcp: connection refused")))
	assert.False(t, isTransportError(apperrors.FromStatus(http.StatusBadGateway, "")))
	assert.False(t, isTransportError(context.Canceled))
	assert.False(t, isTransportError(fmt.Errorf("%w: bad url", ErrInvalidRequest)))
	assert.False(t, isRetryable(fmt.Errorf("%w: bad url", ErrInvalidRequest)))

	assert.True(t, isRetryable(apperrors.FromStatus(http.StatusBadGateway, "")))
	assert.True(t, isRetryable(apperrors.FromStatus(http.StatusTooManyRequests, "")))
	assert.False(t, isRetryable(apperrors.FromStatus(http.StatusBadRequest, "")))
}

func TestWithRetryAttempts(t *testing.T) {
	tests := []struct {
		attempts int
		want     int
	}{
		{0, 1},
		{2, 3},
		{-1, 1},
	}

	for _, tt := range tests {
		c := New("http://localhost", time.Second, zap.NewNop(), WithRetryAttempts(tt.attempts))
		assert.Equal(t, tt.want, c.retry.MaxAttempts)
		assert.NotNil(t, c.retry.IsRetryable)
	}
}
