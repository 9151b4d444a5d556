// Package store provides the durable key/value layer and the domain cache
// built on top of it. Backends are selected by config; all of them present
// the same Store interface so the domain cache stays backend-agnostic.
package store

import (
	"context"
	"errors"
)

// ErrStorage marks a persistent write failure (quota, I/O, connectivity).
// Read failures never carry it: absent data is indistinguishable from
// never-cached data so the offline path degrades instead of crashing.
var ErrStorage = errors.New("storage failure")

// ErrDuplicateLocation is returned when an added location falls within the
// duplicate tolerance of an existing saved entry. Recoverable and
// reportable, not a failure.
var ErrDuplicateLocation = errors.New("location already saved")

// Store is a durable key/value store. Get returns ok=false on a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore implements Store in process memory. Used in tests and as the
// fallback backend; contents do not survive a restart.
type MemoryStore struct {
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}
