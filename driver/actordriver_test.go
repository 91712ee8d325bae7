package driver

import (
	"context"
	"sync"
	"testing"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/driver/memstore"
	"github.com/statedge/actorhost/registry"
	"github.com/statedge/actorhost/serde"
)

func echoDefinition() *actor.Definition {
	def := actor.NewDefinition("echo")
	def.Actions["ping"] = func(actx *actor.ActionContext, args []any) (any, error) {
		return "pong", nil
	}
	return def
}

func TestLoadOrCreateReturnsSameInstanceOnRepeat(t *testing.T) {
	reg := registry.New(echoDefinition())
	d := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	ctx := context.Background()

	meta := ActorMeta{ActorID: "e1", Name: "echo", Key: actor.Key{"k"}}
	inst1, err := d.LoadOrCreate(ctx, meta, nil)
	if err != nil {
		t.Fatalf("load 1: %v", err)
	}
	inst2, err := d.LoadOrCreate(ctx, meta, nil)
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}
	if inst1 != inst2 {
		t.Fatal("expected the same *actor.Instance on repeated LoadOrCreate")
	}
}

func TestLoadOrCreateConcurrentRaceYieldsOneInstance(t *testing.T) {
	reg := registry.New(echoDefinition())
	d := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	ctx := context.Background()
	meta := ActorMeta{ActorID: "e2", Name: "echo", Key: actor.Key{"k"}}

	var wg sync.WaitGroup
	results := make([]*actor.Instance, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := d.LoadOrCreate(ctx, meta, nil)
			if err != nil {
				t.Errorf("load %d: %v", i, err)
				return
			}
			results[i] = inst
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different instance than goroutine 0", i)
		}
	}
}

func TestEvictRemovesFromLiveSet(t *testing.T) {
	reg := registry.New(echoDefinition())
	d := NewLocalActorDriver(reg, memstore.New(), serde.MustForEncoding(serde.JSON), nil)
	ctx := context.Background()
	meta := ActorMeta{ActorID: "e3", Name: "echo", Key: actor.Key{"k"}}

	if _, err := d.LoadOrCreate(ctx, meta, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := d.Evict(ctx, "e3"); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if _, ok := d.Lookup("e3"); ok {
		t.Fatal("expected e3 to be gone after Evict")
	}
}
