package driver

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/registry"
	"github.com/statedge/actorhost/serde"
)

// ActorDriver is the per-node controller that materializes and tears
// down actor.Instance values. This is a rewrite, not a copy, of the
// teacher's agentmanager.Manager: the same "mutex-guarded map, dispatch
// by id, lazy materialize on first touch" shape, generalized from
// "live backup-agent connection" to "live actor instance".
type ActorDriver interface {
	// LoadOrCreate returns the live Instance for meta, booting it first if
	// this is the first time this node has touched the actor id.
	LoadOrCreate(ctx context.Context, meta ActorMeta, input any) (*actor.Instance, error)
	// Lookup returns the already-loaded Instance for actorID, if any.
	Lookup(actorID string) (*actor.Instance, bool)
	// Evict puts an actor to sleep and drops it from this node's live set.
	Evict(ctx context.Context, actorID string) error
	// LiveIDs lists every actor id currently loaded on this node.
	LiveIDs() []string
	// Drain sleeps every actor currently live on this node, flushing dirty
	// state through the Persistence Driver. Called once during graceful
	// shutdown, bounded by ctx's deadline.
	Drain(ctx context.Context) error
}

type localActorDriver struct {
	registry *registry.Registry
	store    PersistenceDriver
	codec    serde.Codec
	log      *zap.Logger

	mu    sync.Mutex
	live  map[string]*actor.Instance
	group singleflight.Group
}

// NewLocalActorDriver builds an ActorDriver that keeps every materialized
// actor.Instance in this process's memory, persisting through store using
// codec for the Persisted Record encoding (bare preferred per spec §4.1).
func NewLocalActorDriver(reg *registry.Registry, store PersistenceDriver, codec serde.Codec, log *zap.Logger) ActorDriver {
	if log == nil {
		log = zap.NewNop()
	}
	return &localActorDriver{
		registry: reg,
		store:    store,
		codec:    codec,
		log:      log.Named("actordriver"),
		live:     make(map[string]*actor.Instance),
	}
}

func (d *localActorDriver) Lookup(actorID string) (*actor.Instance, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inst, ok := d.live[actorID]
	return inst, ok
}

func (d *localActorDriver) LiveIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.live))
	for id := range d.live {
		out = append(out, id)
	}
	return out
}

func (d *localActorDriver) LoadOrCreate(ctx context.Context, meta ActorMeta, input any) (*actor.Instance, error) {
	d.mu.Lock()
	if inst, ok := d.live[meta.ActorID]; ok {
		d.mu.Unlock()
		return inst, nil
	}
	d.mu.Unlock()

	// singleflight collapses concurrent first-touches of the same actor id
	// onto one Boot call, so two racing requests never materialize two
	// Instances (and two event loop goroutines) for the same actor.
	v, err, _ := d.group.Do(meta.ActorID, func() (any, error) {
		d.mu.Lock()
		if inst, ok := d.live[meta.ActorID]; ok {
			d.mu.Unlock()
			return inst, nil
		}
		d.mu.Unlock()

		def, ok := d.registry.Lookup(meta.Name)
		if !ok {
			return nil, fmt.Errorf("driver: no actor type registered under name %q", meta.Name)
		}

		inst := actor.NewInstance(actor.Config{
			ID:     meta.ActorID,
			Name:   meta.Name,
			Key:    meta.Key,
			Def:    def,
			Store:  d.store,
			Codec:  d.codec,
			Logger: d.log,
		})
		if err := inst.Boot(ctx, input); err != nil {
			return nil, err
		}

		d.mu.Lock()
		d.live[meta.ActorID] = inst
		d.mu.Unlock()

		d.log.Info("actor loaded", zap.String("actor_id", meta.ActorID), zap.String("name", meta.Name))
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*actor.Instance), nil
}

func (d *localActorDriver) Evict(ctx context.Context, actorID string) error {
	d.mu.Lock()
	inst, ok := d.live[actorID]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	delete(d.live, actorID)
	d.mu.Unlock()

	if err := inst.Sleep(ctx); err != nil {
		return fmt.Errorf("driver: evict %q: %w", actorID, err)
	}
	d.log.Info("actor evicted", zap.String("actor_id", actorID))
	return nil
}

func (d *localActorDriver) Drain(ctx context.Context) error {
	d.mu.Lock()
	ids := make([]string, 0, len(d.live))
	for id := range d.live {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := d.Evict(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
