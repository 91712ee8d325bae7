package driver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/statedge/actorhost/actor"
)

// ManagerDriver is the identity-resolution half of the Manager/Router
// (spec §4.2): it maps (name, key) to an actor id, creating the id
// deterministically on first use. The proxy/gateway half (sendRequest,
// openWebSocket) lives in the manager package itself, since in
// single-node mode it is a direct in-process call with no driver-level
// abstraction worth adding (see DESIGN.md).
type ManagerDriver interface {
	GetForID(ctx context.Context, actorID string) (*ActorMeta, error)
	GetWithKey(ctx context.Context, name string, key actor.Key) (*ActorMeta, error)
	GetOrCreateWithKey(ctx context.Context, name string, key actor.Key, input any) (meta *ActorMeta, created bool, err error)
	Create(ctx context.Context, name string, key actor.Key, input any) (*ActorMeta, error)
	// ListAll returns every actor identity this driver knows about, so the
	// alarm sweep can pair a persisted actor id with the (name, input) it
	// needs to wake the actor through an ActorDriver.
	ListAll(ctx context.Context) ([]*ActorMeta, error)
}

// memManagerDriver is the in-memory ManagerDriver used in single-node
// mode and by tests, grounded on agentmanager.Manager's mutex-guarded
// map-of-structs shape (rewritten here for actor identities instead of
// backup agents).
type memManagerDriver struct {
	mu   sync.RWMutex
	byID  map[string]*ActorMeta
	byKey map[string]*ActorMeta // "name\x00key.String()" -> meta
}

// NewMemManagerDriver returns a ManagerDriver with no external storage:
// actor identities live only as long as the process does. Useful for
// tests and for running the whole system on one node.
func NewMemManagerDriver() ManagerDriver {
	return &memManagerDriver{
		byID:  make(map[string]*ActorMeta),
		byKey: make(map[string]*ActorMeta),
	}
}

func keyIndex(name string, key actor.Key) string {
	return name + "\x00" + key.String()
}

// DeterministicID hashes (name, key) into a stable, collision-resistant
// actor id, so drivers that need collision-free addressing without a
// central allocator (spec §3) can derive ids independently.
func DeterministicID(name string, key actor.Key) string {
	h := sha256.Sum256([]byte(keyIndex(name, key)))
	return hex.EncodeToString(h[:])[:32]
}

func (m *memManagerDriver) GetForID(ctx context.Context, actorID string) (*ActorMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.byID[actorID]
	if !ok {
		return nil, fmt.Errorf("driver: actor %q not found", actorID)
	}
	return meta, nil
}

func (m *memManagerDriver) GetWithKey(ctx context.Context, name string, key actor.Key) (*ActorMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.byKey[keyIndex(name, key)]
	if !ok {
		return nil, fmt.Errorf("driver: no actor for name=%q key=%v", name, key)
	}
	return meta, nil
}

func (m *memManagerDriver) GetOrCreateWithKey(ctx context.Context, name string, key actor.Key, input any) (*ActorMeta, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := keyIndex(name, key)
	if meta, ok := m.byKey[idx]; ok {
		return meta, false, nil
	}
	meta := &ActorMeta{
		ActorID:   DeterministicID(name, key),
		Name:      name,
		Key:       key,
		Input:     input,
		CreatedAt: time.Now(),
	}
	m.byKey[idx] = meta
	m.byID[meta.ActorID] = meta
	return meta, true, nil
}

func (m *memManagerDriver) Create(ctx context.Context, name string, key actor.Key, input any) (*ActorMeta, error) {
	meta, _, err := m.GetOrCreateWithKey(ctx, name, key, input)
	return meta, err
}

func (m *memManagerDriver) ListAll(ctx context.Context) ([]*ActorMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ActorMeta, 0, len(m.byID))
	for _, meta := range m.byID {
		out = append(out, meta)
	}
	return out, nil
}
