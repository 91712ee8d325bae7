package coordinate

import (
	"context"
	"testing"
	"time"

	"github.com/statedge/actorhost/coordinate/memdriver"
)

func TestNewPeerExactlyOneLeaderAmongRacers(t *testing.T) {
	d := memdriver.New()
	ctx := context.Background()
	timing := DefaultTiming()

	p1, err := NewPeer(ctx, "actor-1", "node-1", d, timing, nil)
	if err != nil {
		t.Fatalf("new peer 1: %v", err)
	}
	p2, err := NewPeer(ctx, "actor-1", "node-2", d, timing, nil)
	if err != nil {
		t.Fatalf("new peer 2: %v", err)
	}

	leaders := 0
	for _, p := range []*Peer{p1, p2} {
		if p.State() == StateLeader {
			leaders++
		}
	}
	if leaders != 1 {
		t.Fatalf("expected exactly one leader among racers, got %d", leaders)
	}
	if p1.State() != StateLeader {
		t.Fatalf("first peer to call StartActorAndAcquireLease should win leadership, got %s", p1.State())
	}
}

func TestPeerBecomesLeaderAfterIncumbentLeaseExpires(t *testing.T) {
	d := memdriver.New()
	ctx := context.Background()
	timing := Timing{
		LeaseDuration:      20 * time.Millisecond,
		RenewGrace:         100 * time.Second, // the leader never renews because its Run loop is never started
		CheckLeaseInterval: 5 * time.Millisecond,
		CheckLeaseJitter:   0,
	}

	leader, err := NewPeer(ctx, "actor-1", "node-1", d, timing, nil)
	if err != nil {
		t.Fatalf("new leader peer: %v", err)
	}
	if leader.State() != StateLeader {
		t.Fatalf("expected node-1 to start as leader, got %s", leader.State())
	}

	follower, err := NewPeer(ctx, "actor-1", "node-2", d, timing, nil)
	if err != nil {
		t.Fatalf("new follower peer: %v", err)
	}
	if follower.State() != StateFollower {
		t.Fatalf("expected node-2 to start as follower, got %s", follower.State())
	}

	time.Sleep(30 * time.Millisecond)

	go follower.Run(ctx)
	defer follower.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if follower.State() == StateLeader {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("follower never took over leadership, state = %s", follower.State())
}

func TestRemoveRefDisposesAtZero(t *testing.T) {
	d := memdriver.New()
	ctx := context.Background()
	timing := DefaultTiming()

	disposed := make(chan struct{})
	p, err := NewPeer(ctx, "actor-1", "node-1", d, timing, nil)
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	p.OnDispose = func() { close(disposed) }

	go p.Run(ctx)

	p.AddRef() // refs = 2
	p.RemoveRef(ctx)
	select {
	case <-disposed:
		t.Fatal("peer disposed with an outstanding ref")
	default:
	}

	p.RemoveRef(ctx) // refs = 0
	select {
	case <-disposed:
	case <-time.After(time.Second):
		t.Fatal("peer did not dispose when refs reached zero")
	}
	if p.State() != StateDisposed {
		t.Fatalf("state = %s, want DISPOSED", p.State())
	}

	p.Stop()
}

func TestLeaderDisposesWhenLeaseLost(t *testing.T) {
	d := memdriver.New()
	ctx := context.Background()
	timing := Timing{
		LeaseDuration:      15 * time.Millisecond,
		RenewGrace:         10 * time.Millisecond,
		CheckLeaseInterval: 5 * time.Millisecond,
		CheckLeaseJitter:   0,
	}

	p, err := NewPeer(ctx, "actor-1", "node-1", d, timing, nil)
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}
	if p.State() != StateLeader {
		t.Fatalf("expected node-1 to start as leader, got %s", p.State())
	}

	// Steal the lease out from under the leader, as if its lease expired
	// and another node raced in first.
	time.Sleep(20 * time.Millisecond)
	if _, acquired, err := d.AttemptAcquireLease(ctx, "actor-1", "node-2", timing.LeaseDuration); err != nil || !acquired {
		t.Fatalf("expected node-2 to steal the expired lease, acquired=%v err=%v", acquired, err)
	}

	go p.Run(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.State() == StateDisposed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("leader never disposed after losing its lease, state = %s", p.State())
}
