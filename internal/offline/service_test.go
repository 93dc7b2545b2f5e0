package offline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/storage"
	"github.com/jrjohn/arcana-pos-go/internal/testutil/mocks"
)

type stubSyncer struct {
	calls  int
	result SyncResult
	err    error
}

func (s *stubSyncer) SyncNow(ctx context.Context) (SyncResult, error) {
	s.calls++
	return s.result, s.err
}

func TestService_EnqueueAndSize(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestQueue(t, storage.NewMemoryStore()), nil, zap.NewNop())

	entry, err := svc.EnqueueRequest(ctx, mustRequest(t, MethodPost, "/sales", map[string]int{"total": 100}))
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, 1, svc.GetQueueSize())
	assert.Equal(t, 1, svc.PendingCount())
	assert.Len(t, svc.Queue(), 1)
}

func TestService_EnqueueSwallowsPersistFailure(t *testing.T) {
	store := mocks.NewMockStore()
	svc := NewService(newTestQueue(t, store), nil, zap.NewNop())
	store.FailSet = true

	entry, err := svc.EnqueueRequest(context.Background(), mustRequest(t, MethodPost, "/sales", nil))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, svc.GetQueueSize())
}

func TestService_EnqueueRejectsInvalid(t *testing.T) {
	svc := NewService(newTestQueue(t, storage.NewMemoryStore()), nil, zap.NewNop())

	_, err := svc.EnqueueRequest(context.Background(), Request{Method: MethodPost})
	assert.ErrorIs(t, err, ErrMissingEndpoint)
}

func TestService_SyncNowDelegates(t *testing.T) {
	syncer := &stubSyncer{result: SyncResult{Attempted: 2, Succeeded: 2}}
	svc := NewService(newTestQueue(t, storage.NewMemoryStore()), nil, zap.NewNop())

	result, err := svc.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, result)

	svc.SetSyncer(syncer)
	result, err = svc.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, 2, result.Succeeded)
}

func TestService_ClearQueue(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockStore()
	svc := NewService(newTestQueue(t, store), nil, zap.NewNop())

	_, err := svc.EnqueueRequest(ctx, mustRequest(t, MethodPost, "/sales", nil))
	require.NoError(t, err)

	store.FailSet = true
	svc.ClearQueue(ctx)
	assert.Equal(t, 0, svc.GetQueueSize())
}

func TestService_FailedRequests(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, storage.NewMemoryStore())
	svc := NewService(q, nil, zap.NewNop())

	entry, err := svc.EnqueueRequest(ctx, mustRequest(t, MethodDelete, "/sales/1", nil))
	require.NoError(t, err)
	for i := 0; i < MaxRetries; i++ {
		_, err = q.IncrementRetry(ctx, entry.ID, nil)
		require.NoError(t, err)
	}

	require.Len(t, svc.FailedRequests(), 1)
	svc.DismissFailed(ctx, entry.ID)
	assert.Empty(t, svc.FailedRequests())
}
