package cache

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordCache(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[result]++
}

func TestKey(t *testing.T) {
	a := Key("get", "/products", url.Values{"page": {"2"}, "category": {"drinks"}})
	b := Key("GET", "/products", url.Values{"category": {"drinks"}, "page": {"2"}})

	assert.Equal(t, a, b)
	assert.Equal(t, "GET /products?category=drinks&page=2", a)
	assert.Equal(t, "GET /products", Key("GET", "/products", nil))
	assert.NotEqual(t, Key("GET", "/products", nil), Key("POST", "/products", nil))
	assert.Equal(t,
		Key("GET", "/p", url.Values{"tag": {"b", "a"}}),
		Key("GET", "/p", url.Values{"tag": {"a", "b"}}),
	)
}

func TestResponseCache_TTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := New(zap.NewNop(), WithClock(func() time.Time { return now }))

	c.Set("GET /products", []byte("v1"))
	got, ok := c.Get("GET /products")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	now = now.Add(DefaultTTL - time.Second)
	_, ok = c.Get("GET /products")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get("GET /products")
	assert.False(t, ok, "entry must expire at DefaultTTL")
}

func TestResponseCache_DoCachesResult(t *testing.T) {
	rec := &countingRecorder{}
	c := New(zap.NewNop(), WithRecorder(rec))
	calls := 0
	fetch := func(context.Context) ([]byte, error) {
		calls++
		return []byte("payload"), nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.Do(context.Background(), "GET /inventory", fetch)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), got)
	}

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rec.counts[ResultMiss])
	assert.Equal(t, 2, rec.counts[ResultHit])
}

func TestResponseCache_DoDoesNotCacheErrors(t *testing.T) {
	c := New(zap.NewNop())
	boom := errors.New("boom")

	_, err := c.Do(context.Background(), "k", func(context.Context) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestResponseCache_DoCollapsesConcurrentCalls(t *testing.T) {
	c := New(zap.NewNop())
	var calls atomic.Int32
	release := make(chan struct{})

	fetch := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("shared"), nil
	}

	const callers = 8
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([][]byte, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], _ = c.Do(context.Background(), "GET /customers", fetch)
		}(i)
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, []byte("shared"), r)
	}
}

func TestResponseCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c := New(zap.NewNop())
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		close(entered)
		<-release
		return []byte("catalog"), ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Do(ctx, "GET /products", fetch)
		firstErr <- err
	}()
	<-entered

	second := make(chan []byte, 1)
	go func() {
		v, err := c.Do(context.Background(), "GET /products", fetch)
		assert.NoError(t, err)
		second <- v
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, []byte("catalog"), <-second)
	assert.Equal(t, int32(1), calls.Load())

	v, ok := c.Get("GET /products")
	require.True(t, ok)
	assert.Equal(t, []byte("catalog"), v)
}

func TestResponseCache_Invalidate(t *testing.T) {
	c := New(zap.NewNop())
	c.Set(Key("GET", "/products", nil), []byte("list"))
	c.Set(Key("GET", "/products", url.Values{"page": {"2"}}), []byte("page2"))
	c.Set(Key("GET", "/products/42", nil), []byte("one"))
	c.Set(Key("GET", "/products-archive", nil), []byte("other"))
	c.Set(Key("GET", "/customers", nil), []byte("customers"))

	removed := c.Invalidate("/products/")

	assert.Equal(t, 3, removed)
	_, ok := c.Get(Key("GET", "/products-archive", nil))
	assert.True(t, ok)
	_, ok = c.Get(Key("GET", "/customers", nil))
	assert.True(t, ok)
}

func TestResponseCache_ClearDropsInFlightResult(t *testing.T) {
	c := New(zap.NewNop())
	c.Set("GET /a", []byte("a"))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Do(context.Background(), "GET /b", func(context.Context) ([]byte, error) {
			close(started)
			<-release
			return []byte("b"), nil
		})
	}()

	<-started
	c.Clear()
	close(release)
	<-done

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("GET /b")
	assert.False(t, ok)
}

func TestResponseCache_ReturnsCopies(t *testing.T) {
	c := New(zap.NewNop())
	c.Set("k", []byte("abc"))

	got, _ := c.Get("k")
	got[0] = 'x'

	again, _ := c.Get("k")
	assert.Equal(t, []byte("abc"), again)
}
