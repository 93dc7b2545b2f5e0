package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/jrjohn/arcana-pos-go/internal/storage"
)

// ErrStoreUnavailable is the default error returned by a failing MockStore
var ErrStoreUnavailable = errors.New("mock store unavailable")

// MockStore is an in-memory storage.Store whose operations can be made to fail
type MockStore struct {
	mu   sync.Mutex
	data map[string][]byte

	FailGet bool
	FailSet bool

	SetCalls int

	// Callbacks for testing
	OnSet func(key string, value []byte) error
}

// NewMockStore creates a new mock store
func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string][]byte)}
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailGet {
		return nil, ErrStoreUnavailable
	}
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MockStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls++
	if m.OnSet != nil {
		if err := m.OnSet(key, value); err != nil {
			return err
		}
	}
	if m.FailSet {
		return ErrStoreUnavailable
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

// Raw returns the stored bytes for key without any failure injection
func (m *MockStore) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Put seeds the store directly
func (m *MockStore) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}
