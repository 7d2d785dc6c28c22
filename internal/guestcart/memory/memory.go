// Package memory is an in-process guest cart backend.
package memory

import (
	"context"
	"sync"

	apperrors "github.com/izahid19/ekart/pkg/errors"
)

// Backend keeps guest cart records in a map.
type Backend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored at key.
func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.data[key]
	if !ok {
		return nil, apperrors.NotFound("guest cart", key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value at key.
func (b *Backend) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	b.data[key] = v
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.data, key)
	return nil
}

// Len returns the number of stored records.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}
