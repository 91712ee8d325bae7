package driver

import (
	"context"
	"testing"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/coordinate"
	"github.com/statedge/actorhost/coordinate/memdriver"
	"github.com/statedge/actorhost/driver/memstore"
	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/registry"
	"github.com/statedge/actorhost/serde"
)

func TestCoordinatedDriverLoadsLocallyWhenLeader(t *testing.T) {
	reg := registry.New(echoDefinition())
	inner := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	d := NewCoordinatedActorDriver(inner, "node-1", memdriver.New(), coordinate.DefaultTiming(), nil)
	ctx := context.Background()

	meta := ActorMeta{ActorID: "c1", Name: "echo", Key: actor.Key{"k"}}
	inst, err := d.LoadOrCreate(ctx, meta, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if inst == nil {
		t.Fatal("expected a live instance for the lease-holding node")
	}
	if _, ok := d.Lookup("c1"); !ok {
		t.Fatal("expected c1 to be locally resident after a leader load")
	}
}

func TestCoordinatedDriverRefusesFollowerLoad(t *testing.T) {
	reg := registry.New(echoDefinition())
	coordDriver := memdriver.New()

	// node-1 claims the lease first by racing ahead with its own peer.
	leaderInner := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	leaderDriver := NewCoordinatedActorDriver(leaderInner, "node-1", coordDriver, coordinate.DefaultTiming(), nil)
	ctx := context.Background()
	meta := ActorMeta{ActorID: "c2", Name: "echo", Key: actor.Key{"k"}}
	if _, err := leaderDriver.LoadOrCreate(ctx, meta, nil); err != nil {
		t.Fatalf("leader load: %v", err)
	}

	followerInner := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	followerDriver := NewCoordinatedActorDriver(followerInner, "node-2", coordDriver, coordinate.DefaultTiming(), nil)

	_, err := followerDriver.LoadOrCreate(ctx, meta, nil)
	if err == nil {
		t.Fatal("expected the non-leader node to refuse materializing the actor locally")
	}
	kindErr, ok := errorkind.As(err)
	if !ok || kindErr.Kind != errorkind.Unsupported {
		t.Fatalf("expected an Unsupported errorkind.Error, got %v", err)
	}
	if _, live := followerInner.Lookup("c2"); live {
		t.Fatal("follower must never materialize a competing local copy")
	}
}

func TestCoordinatedDriverEvictReleasesLease(t *testing.T) {
	reg := registry.New(echoDefinition())
	coordDriver := memdriver.New()
	inner := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	d := NewCoordinatedActorDriver(inner, "node-1", coordDriver, coordinate.DefaultTiming(), nil)
	ctx := context.Background()
	meta := ActorMeta{ActorID: "c3", Name: "echo", Key: actor.Key{"k"}}

	if _, err := d.LoadOrCreate(ctx, meta, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := d.Evict(ctx, "c3"); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if _, ok := inner.Lookup("c3"); ok {
		t.Fatal("expected c3 gone from the inner driver after Evict")
	}

	// With the lease released, a different node should be able to claim
	// the actor and load it locally.
	otherInner := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	other := NewCoordinatedActorDriver(otherInner, "node-2", coordDriver, coordinate.DefaultTiming(), nil)
	if _, err := other.LoadOrCreate(ctx, meta, nil); err != nil {
		t.Fatalf("expected node-2 to acquire the released lease, got: %v", err)
	}
}

func TestCoordinatedDriverDrainReleasesEveryPeer(t *testing.T) {
	reg := registry.New(echoDefinition())
	coordDriver := memdriver.New()
	inner := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	d := NewCoordinatedActorDriver(inner, "node-1", coordDriver, coordinate.DefaultTiming(), nil)
	ctx := context.Background()

	metas := []ActorMeta{
		{ActorID: "d1", Name: "echo", Key: actor.Key{"k1"}},
		{ActorID: "d2", Name: "echo", Key: actor.Key{"k2"}},
	}
	for _, m := range metas {
		if _, err := d.LoadOrCreate(ctx, m, nil); err != nil {
			t.Fatalf("load %s: %v", m.ActorID, err)
		}
	}

	if err := d.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(inner.LiveIDs()) != 0 {
		t.Fatalf("expected every actor evicted after Drain, got %v", inner.LiveIDs())
	}

	// Every lease should be released, so a fresh node can claim each one.
	otherInner := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	other := NewCoordinatedActorDriver(otherInner, "node-2", coordDriver, coordinate.DefaultTiming(), nil)
	for _, m := range metas {
		if _, err := other.LoadOrCreate(ctx, m, nil); err != nil {
			t.Fatalf("expected node-2 to claim %s after drain, got: %v", m.ActorID, err)
		}
	}
}
