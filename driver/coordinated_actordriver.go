package driver

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/coordinate"
	"github.com/statedge/actorhost/errorkind"
)

// CoordinatedActorDriver wraps an ActorDriver with the Coordinate
// Topology's lease election (spec §4.3): LoadOrCreate only ever
// materializes an actor locally once a coordinate.Peer confirms this node
// holds the actor's lease. This is the multi-node counterpart to
// localActorDriver's bare "first touch wins" rule, which by itself only
// holds within one process — wrapping it here means every caller that
// materializes an actor (the Gateway via Manager.LoadLocal, and the
// Scheduler's sweep) gets the same guarantee for free.
//
// A Peer's ref count is repurposed here from "live client connections" to
// "is a local actor.Instance currently resident": exactly one AddRef
// happens, implicitly, in NewPeer's construction, and exactly one
// RemoveRef happens in Evict, so losing the last interest disposes the
// Peer and releases the lease.
type CoordinatedActorDriver struct {
	inner  ActorDriver
	nodeID string
	coord  coordinate.Driver
	timing coordinate.Timing
	log    *zap.Logger

	mu    sync.Mutex
	peers map[string]*coordinate.Peer
	group singleflight.Group
}

// NewCoordinatedActorDriver wraps inner with lease-gated materialization.
// nodeID identifies this node to coordDriver; timing controls lease
// duration and renew/poll cadence (coordinate.DefaultTiming for spec
// §4.3's recommended values).
func NewCoordinatedActorDriver(inner ActorDriver, nodeID string, coordDriver coordinate.Driver, timing coordinate.Timing, log *zap.Logger) *CoordinatedActorDriver {
	if log == nil {
		log = zap.NewNop()
	}
	return &CoordinatedActorDriver{
		inner:  inner,
		nodeID: nodeID,
		coord:  coordDriver,
		timing: timing,
		log:    log.Named("coordinateddriver"),
		peers:  make(map[string]*coordinate.Peer),
	}
}

func (d *CoordinatedActorDriver) Lookup(actorID string) (*actor.Instance, bool) {
	return d.inner.Lookup(actorID)
}

func (d *CoordinatedActorDriver) LiveIDs() []string {
	return d.inner.LiveIDs()
}

// LoadOrCreate gates materialization on this node holding actorID's lease.
// A node that is not the leader never loads a competing local copy — it
// returns an error describing the actor as not locally servable instead
// of silently violating the "exactly one replica cluster-wide" guarantee.
func (d *CoordinatedActorDriver) LoadOrCreate(ctx context.Context, meta ActorMeta, input any) (*actor.Instance, error) {
	if inst, ok := d.inner.Lookup(meta.ActorID); ok {
		return inst, nil
	}

	peer, err := d.acquirePeer(ctx, meta.ActorID)
	if err != nil {
		return nil, err
	}

	if peer.State() != coordinate.StateLeader {
		hint := peer.LeaderHint()
		if hint == "" {
			hint = "unknown"
		}
		return nil, errorkind.Newf(errorkind.Unsupported,
			"actor %s is leased by node %q; this node cannot serve it directly", meta.ActorID, hint)
	}

	return d.inner.LoadOrCreate(ctx, meta, input)
}

// acquirePeer returns the cached Peer for actorID, creating and starting
// one (via coordinate.NewPeer/Run) on first touch. Concurrent first
// touches of the same actor id collapse onto one NewPeer call, the same
// singleflight shape localActorDriver uses to collapse concurrent Boots.
func (d *CoordinatedActorDriver) acquirePeer(ctx context.Context, actorID string) (*coordinate.Peer, error) {
	d.mu.Lock()
	if p, ok := d.peers[actorID]; ok {
		d.mu.Unlock()
		return p, nil
	}
	d.mu.Unlock()

	v, err, _ := d.group.Do(actorID, func() (any, error) {
		d.mu.Lock()
		if p, ok := d.peers[actorID]; ok {
			d.mu.Unlock()
			return p, nil
		}
		d.mu.Unlock()

		p, err := coordinate.NewPeer(ctx, actorID, d.nodeID, d.coord, d.timing, d.log)
		if err != nil {
			return nil, err
		}
		// OnDispose fires when this peer loses its lease in the background
		// (tickLeader finds ExtendLease invalid) as well as from our own
		// Evict below; inner.Evict is idempotent on an actor id that is
		// already gone from the live set, so the second call is a no-op.
		p.OnDispose = func() {
			d.mu.Lock()
			delete(d.peers, actorID)
			d.mu.Unlock()
			_ = d.inner.Evict(context.Background(), actorID)
		}

		d.mu.Lock()
		d.peers[actorID] = p
		d.mu.Unlock()
		go p.Run(context.Background())
		return p, nil
	})
	if err != nil {
		return nil, errorkind.Newf(errorkind.InternalError, "coordinate: acquire peer for %q: %v", actorID, err)
	}
	return v.(*coordinate.Peer), nil
}

// Evict stops the local instance and releases its Peer's interest in the
// actor's lease, disposing the Peer (and, if this node was leader,
// releasing the lease) once nothing else references it.
func (d *CoordinatedActorDriver) Evict(ctx context.Context, actorID string) error {
	if err := d.inner.Evict(ctx, actorID); err != nil {
		return err
	}
	d.mu.Lock()
	p, ok := d.peers[actorID]
	d.mu.Unlock()
	if ok {
		p.RemoveRef(ctx)
	}
	return nil
}

// Drain evicts every live actor through this driver's own Evict (rather
// than delegating straight to inner.Drain), so every Peer releases its
// lease cleanly on graceful shutdown instead of waiting out the lease
// duration for another node to take over.
func (d *CoordinatedActorDriver) Drain(ctx context.Context) error {
	var firstErr error
	for _, id := range d.inner.LiveIDs() {
		if err := d.Evict(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
