package actor

import (
	"context"
	"sync"
	"testing"

	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/serde"
)

// memStore is a tiny in-process Store for exercising Instance without
// pulling in the driver package (which itself depends on actor).
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Load(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[id]
	if !ok {
		return nil, ErrNoRecord
	}
	return d, nil
}

func (m *memStore) Save(ctx context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), data...)
	m.data[id] = cp
	return nil
}

func counterDefinition() *Definition {
	def := NewDefinition("counter")
	def.CreateVars = func(actx *ActionContext) (any, error) { return 0, nil }
	def.Actions["increment"] = func(actx *ActionContext, args []any) (any, error) {
		cur, _ := actx.State().(float64)
		by := 1.0
		if len(args) > 0 {
			if f, ok := args[0].(float64); ok {
				by = f
			}
		}
		next := cur + by
		actx.SetState(next)
		return next, nil
	}
	def.Actions["value"] = func(actx *ActionContext, args []any) (any, error) {
		return actx.State(), nil
	}
	return def
}

func TestExecuteActionIncrementsAndPersists(t *testing.T) {
	store := newMemStore()
	inst := NewInstance(Config{
		ID:    "ctr-1",
		Name:  "counter",
		Key:   Key{"a"},
		Def:   counterDefinition(),
		Store: store,
		Codec: serde.MustForEncoding(serde.CBOR),
	})
	ctx := context.Background()
	if err := inst.Boot(ctx, nil); err != nil {
		t.Fatalf("boot: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := inst.ExecuteAction(ctx, nil, "increment", []any{float64(1)}); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	out, err := inst.ExecuteAction(ctx, nil, "value", nil)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if out != float64(3) {
		t.Fatalf("value = %v, want 3", out)
	}

	if err := inst.SaveState(ctx, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Load(ctx, "ctr-1"); err != nil {
		t.Fatalf("expected a persisted record after save: %v", err)
	}
}

func TestExecuteActionUnknownActionReturnsUnsupported(t *testing.T) {
	store := newMemStore()
	inst := NewInstance(Config{
		ID: "ctr-2", Name: "counter", Def: counterDefinition(),
		Store: store, Codec: serde.MustForEncoding(serde.JSON),
	})
	ctx := context.Background()
	if err := inst.Boot(ctx, nil); err != nil {
		t.Fatalf("boot: %v", err)
	}
	_, err := inst.ExecuteAction(ctx, nil, "nope", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown action")
	}
	if kindErr := errorkind.Of(err); kindErr.Kind != errorkind.Unsupported {
		t.Fatalf("err kind = %s, want %s", kindErr.Kind, errorkind.Unsupported)
	}
}

// broadcastCapture is a Sender that records every frame it receives.
type broadcastCapture struct {
	mu     sync.Mutex
	frames [][]byte
}

func (b *broadcastCapture) Send(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
	return nil
}
func (b *broadcastCapture) Close(reason string) error { return nil }

func (b *broadcastCapture) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

func TestBroadcastFansOutToSubscribedConnsOnly(t *testing.T) {
	RegisterEventEncoder(func(enc serde.Encoding, event string, args []any) ([]byte, error) {
		c := serde.MustForEncoding(enc)
		return c.Marshal(map[string]any{"en": event, "a": args})
	})

	store := newMemStore()
	inst := NewInstance(Config{
		ID: "room-1", Name: "room", Def: NewDefinition("room"),
		Store: store, Codec: serde.MustForEncoding(serde.JSON),
	})
	ctx := context.Background()
	if err := inst.Boot(ctx, nil); err != nil {
		t.Fatalf("boot: %v", err)
	}

	subA := &broadcastCapture{}
	subB := &broadcastCapture{}
	connA, err := inst.CreateConn(ctx, "a", "tok-a", nil, nil, serde.JSON, TransportWebSocket, subA)
	if err != nil {
		t.Fatalf("createConn a: %v", err)
	}
	connB, err := inst.CreateConn(ctx, "b", "tok-b", nil, nil, serde.JSON, TransportWebSocket, subB)
	if err != nil {
		t.Fatalf("createConn b: %v", err)
	}
	connA.Subscribe("tick")
	// connB never subscribes.
	_ = connB

	if err := inst.Broadcast(ctx, "tick", []any{float64(1)}, BroadcastOptions{}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if got := subA.count(); got != 1 {
		t.Errorf("subscriber got %d frames, want 1", got)
	}
	if got := subB.count(); got != 0 {
		t.Errorf("non-subscriber got %d frames, want 0", got)
	}
}

func TestSaveStateCoalescesConcurrentCallers(t *testing.T) {
	store := newMemStore()
	inst := NewInstance(Config{
		ID: "ctr-3", Name: "counter", Def: counterDefinition(),
		Store: store, Codec: serde.MustForEncoding(serde.CBOR),
	})
	ctx := context.Background()
	if err := inst.Boot(ctx, nil); err != nil {
		t.Fatalf("boot: %v", err)
	}
	if _, err := inst.ExecuteAction(ctx, nil, "increment", nil); err != nil {
		t.Fatalf("increment: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := inst.SaveState(ctx, true); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent save returned error: %v", err)
	}

	if _, err := store.Load(ctx, "ctr-3"); err != nil {
		t.Fatalf("record never persisted: %v", err)
	}
}
