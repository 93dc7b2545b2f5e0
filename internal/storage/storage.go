// Package storage provides the durable key-value stores that back the offline
// queue and session state. Every backend writes a whole value atomically: a
// reader sees either the previous value or the new one, never a mix.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted.
var ErrNotFound = errors.New("storage: key not found")

// Store is a minimal durable key-value store
type Store interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value stored under key
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// Close releases the underlying resources
	Close() error
}
