package memdriver

import (
	"context"
	"testing"
	"time"
)

func TestStartActorAndAcquireLeaseFirstCallerWins(t *testing.T) {
	d := New()
	ctx := context.Background()
	leader, err := d.StartActorAndAcquireLease(ctx, "a1", "node-1", time.Second)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if leader != "node-1" {
		t.Fatalf("leader = %q, want node-1", leader)
	}

	leader2, err := d.StartActorAndAcquireLease(ctx, "a1", "node-2", time.Second)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if leader2 != "node-1" {
		t.Fatalf("second leader = %q, want node-1 (existing lease unchanged)", leader2)
	}
}

func TestExtendLeaseOnlyByOwner(t *testing.T) {
	d := New()
	ctx := context.Background()
	d.StartActorAndAcquireLease(ctx, "a1", "node-1", time.Second)

	ok, err := d.ExtendLease(ctx, "a1", "node-2", time.Second)
	if err != nil {
		t.Fatalf("extend by non-owner: %v", err)
	}
	if ok {
		t.Fatal("non-owner should not be able to extend the lease")
	}

	ok, err = d.ExtendLease(ctx, "a1", "node-1", time.Second)
	if err != nil {
		t.Fatalf("extend by owner: %v", err)
	}
	if !ok {
		t.Fatal("owner should be able to extend the lease")
	}
}

func TestAttemptAcquireLeaseOnlyAfterExpiry(t *testing.T) {
	d := New()
	ctx := context.Background()
	d.StartActorAndAcquireLease(ctx, "a1", "node-1", 10*time.Millisecond)

	_, acquired, err := d.AttemptAcquireLease(ctx, "a1", "node-2", time.Second)
	if err != nil {
		t.Fatalf("acquire before expiry: %v", err)
	}
	if acquired {
		t.Fatal("should not acquire a still-valid lease")
	}

	time.Sleep(20 * time.Millisecond)

	leader, acquired, err := d.AttemptAcquireLease(ctx, "a1", "node-2", time.Second)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if !acquired || leader != "node-2" {
		t.Fatalf("expected node-2 to acquire the expired lease, got leader=%q acquired=%v", leader, acquired)
	}
}

func TestReleaseLeaseOnlyByOwner(t *testing.T) {
	d := New()
	ctx := context.Background()
	d.StartActorAndAcquireLease(ctx, "a1", "node-1", time.Second)

	if err := d.ReleaseLease(ctx, "a1", "node-2"); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	leader, acquired, err := d.AttemptAcquireLease(ctx, "a1", "node-2", time.Second)
	if err != nil {
		t.Fatalf("acquire after no-op release: %v", err)
	}
	if acquired {
		t.Fatalf("lease should still be held by node-1, got leader=%q acquired=%v", leader, acquired)
	}

	if err := d.ReleaseLease(ctx, "a1", "node-1"); err != nil {
		t.Fatalf("release by owner: %v", err)
	}
	_, acquired, err = d.AttemptAcquireLease(ctx, "a1", "node-2", time.Second)
	if err != nil {
		t.Fatalf("acquire after real release: %v", err)
	}
	if !acquired {
		t.Fatal("lease should be acquirable after owner releases it")
	}
}
