// Package driver defines the three external driver contracts the actor
// runtime is built against (spec §2/§3): Persistence, Manager and Actor.
// Concrete implementations live in subpackages (memstore, sqlstore) so the
// runtime's core packages never import a specific storage or transport
// technology directly.
package driver

import (
	"context"
	"time"

	"github.com/statedge/actorhost/actor"
)

// PersistenceDriver stores one opaque byte blob per actor id: the
// serialized actor.PersistedRecord. It satisfies actor.Store by
// construction (same Load/Save signatures), so any PersistenceDriver can
// be handed straight to actor.NewInstance.
type PersistenceDriver interface {
	Load(ctx context.Context, actorID string) ([]byte, error)
	Save(ctx context.Context, actorID string, data []byte) error
	// Enumerate lists every actor id with a stored record, for
	// crash-recovery rehydration at process start.
	Enumerate(ctx context.Context) ([]string, error)
}

// ErrNoRecord is returned by Load when no record exists yet for an actor
// id. It is the exact sentinel actor.ErrNoRecord names, re-exported here
// so driver implementations don't need to import actor just for the
// sentinel value.
var ErrNoRecord = actor.ErrNoRecord

// ActorMeta is the small, durable-independent record the Manager Driver
// keeps for an actor: its identity and creation input. Unlike
// PersistenceDriver's opaque blob, this is structured so the Manager can
// answer `GET /actors/{id}` without waking the actor instance.
type ActorMeta struct {
	ActorID   string
	Name      string
	Key       actor.Key
	Input     any
	CreatedAt time.Time
}
