// Package manager implements the Manager/Router from spec §4.2: actor
// identity resolution (the (name, key) -> actor id directory) and the
// HTTP/WebSocket gateway that proxies a routed request to whichever node
// currently hosts the target actor.
package manager

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/driver"
	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/registry"
	"github.com/statedge/actorhost/serde"
)

// Config bundles every dependency NewManager needs, the same "one struct,
// populated in main once everything else exists" shape the teacher uses
// for its own router/service constructors.
type Config struct {
	ManagerDriver   driver.ManagerDriver
	ActorDriver     driver.ActorDriver
	Registry        *registry.Registry
	DefaultEncoding serde.Encoding
	Logger          *zap.Logger
}

// Manager resolves actor identities and materializes live instances on
// this node. In a single-node deployment that is the entire Coordinate
// story; in a multi-node deployment LoadLocal's underlying ActorDriver
// gates materialization on actually holding the actor's lease (see
// driver.CoordinatedActorDriver), so an actor hosted elsewhere is refused
// here rather than duplicated.
type Manager struct {
	managerDriver driver.ManagerDriver
	actorDriver   driver.ActorDriver
	registry      *registry.Registry
	defaultEnc    serde.Encoding
	log           *zap.Logger
}

// New builds a Manager from cfg.
func New(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	enc := cfg.DefaultEncoding
	if enc == "" {
		enc = serde.JSON
	}
	return &Manager{
		managerDriver: cfg.ManagerDriver,
		actorDriver:   cfg.ActorDriver,
		registry:      cfg.Registry,
		defaultEnc:    enc,
		log:           log.Named("manager"),
	}
}

// Lookup resolves (name, key) to an existing actor id, without creating
// one. Mirrors `GET /actors/by-id`.
func (m *Manager) Lookup(ctx context.Context, name string, key actor.Key) (*driver.ActorMeta, error) {
	meta, err := m.managerDriver.GetWithKey(ctx, name, key)
	if err != nil {
		return nil, errorkind.New(errorkind.ActorNotFound, err.Error())
	}
	return meta, nil
}

// GetForID resolves an actor id to its metadata. Mirrors `GET /actors/{id}`.
func (m *Manager) GetForID(ctx context.Context, actorID string) (*driver.ActorMeta, error) {
	meta, err := m.managerDriver.GetForID(ctx, actorID)
	if err != nil {
		return nil, errorkind.New(errorkind.ActorNotFound, err.Error())
	}
	return meta, nil
}

// GetOrCreate resolves (name, key) to an actor id, creating it if absent.
// Mirrors `PUT /actors/by-id`.
func (m *Manager) GetOrCreate(ctx context.Context, name string, key actor.Key, input any) (*driver.ActorMeta, bool, error) {
	if _, ok := m.registry.Lookup(name); !ok {
		return nil, false, errorkind.Newf(errorkind.ActorNotFound, "no actor definition registered for %q", name)
	}
	return m.managerDriver.GetOrCreateWithKey(ctx, name, key, input)
}

// Create explicitly creates a new actor, auto-generating a key if the
// caller didn't supply one. Mirrors `POST /actors`.
func (m *Manager) Create(ctx context.Context, name string, key actor.Key, input any) (*driver.ActorMeta, error) {
	if _, ok := m.registry.Lookup(name); !ok {
		return nil, errorkind.Newf(errorkind.ActorNotFound, "no actor definition registered for %q", name)
	}
	if len(key) == 0 {
		key = actor.Key{uuid.NewString()}
	}
	return m.managerDriver.Create(ctx, name, key, input)
}

// LoadLocal materializes meta's actor on this node, booting it on first
// touch. In single-node mode this always succeeds; in multi-node mode the
// ActorDriver itself (driver.CoordinatedActorDriver) rejects the call
// unless a coordinate.Peer has confirmed this node leads the actor's
// lease, so LoadLocal can surface an error here instead of materializing
// a second copy elsewhere.
func (m *Manager) LoadLocal(ctx context.Context, meta driver.ActorMeta) (*actor.Instance, error) {
	return m.actorDriver.LoadOrCreate(ctx, meta, meta.Input)
}

// DefaultEncoding is the encoding assumed when a request does not
// negotiate one explicitly.
func (m *Manager) DefaultEncoding() serde.Encoding { return m.defaultEnc }

// DefinitionFor looks up the registered actor.Definition for name, so the
// gateway can run onAuth (spec §3: "runs at the HTTP edge before any
// actor work") without first materializing a live Instance.
func (m *Manager) DefinitionFor(name string) (*actor.Definition, bool) {
	return m.registry.Lookup(name)
}
