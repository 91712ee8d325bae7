package actor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/statedge/actorhost/serde"
)

func TestAlarmFiresRegisteredAction(t *testing.T) {
	var fired int32
	def := NewDefinition("timer")
	def.Actions["ping"] = func(actx *ActionContext, args []any) (any, error) {
		atomic.AddInt32(&fired, 1)
		return nil, nil
	}

	store := newMemStore()
	inst := NewInstance(Config{
		ID: "timer-1", Name: "timer", Def: def,
		Store: store, Codec: serde.MustForEncoding(serde.JSON),
	})
	ctx := context.Background()
	if err := inst.Boot(ctx, nil); err != nil {
		t.Fatalf("boot: %v", err)
	}

	if _, err := inst.submit(ctx, func() (any, error) {
		inst.scheduleEntry(time.Now().Add(20*time.Millisecond), "ping", nil)
		return nil, nil
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&fired) == 0 {
		select {
		case <-deadline:
			t.Fatal("alarm action never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAlarmHeapOrdersByDueAt(t *testing.T) {
	var h scheduleHeap
	h = append(h, ScheduleEntry{ID: "b", DueAtUnix: 200})
	h = append(h, ScheduleEntry{ID: "a", DueAtUnix: 100})
	h = append(h, ScheduleEntry{ID: "c", DueAtUnix: 300})

	// Build a proper heap by hand; scheduleEntry uses container/heap, which
	// relies on the same Less/Swap.
	inst := &Instance{}
	inst.schedule = nil
	for _, e := range h {
		inst.schedule = append(inst.schedule, e)
	}
	// Re-heapify via the same Less/Swap used in production.
	for i := len(inst.schedule)/2 - 1; i >= 0; i-- {
		siftDown(inst.schedule, i)
	}
	if inst.schedule[0].ID != "a" {
		t.Fatalf("heap root = %s, want a (earliest dueAt)", inst.schedule[0].ID)
	}
}

// siftDown is a tiny local heapify helper so the test can assert ordering
// without reaching into container/heap internals.
func siftDown(h scheduleHeap, i int) {
	n := len(h)
	for {
		l, r, smallest := 2*i+1, 2*i+2, i
		if l < n && h.Less(l, smallest) {
			smallest = l
		}
		if r < n && h.Less(r, smallest) {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.Swap(i, smallest)
		i = smallest
	}
}
