// Package memstore is the in-memory PersistenceDriver used for
// single-node deployments that don't need durability across restarts,
// and for tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/statedge/actorhost/driver"
)

// Store is a mutex-guarded map[actorID][]byte, the simplest possible
// PersistenceDriver.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Load(ctx context.Context, actorID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[actorID]
	if !ok {
		return nil, driver.ErrNoRecord
	}
	out := make([]byte, len(d))
	copy(out, d)
	return out, nil
}

func (s *Store) Save(ctx context.Context, actorID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[actorID] = cp
	return nil
}

func (s *Store) Enumerate(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
