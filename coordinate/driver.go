// Package coordinate implements the Coordinate Topology from spec §4.3:
// lease-based leader election so exactly one node owns a given actor at a
// time, an ActorPeer state machine tracking that ownership locally, and
// an in-memory pub/sub Bus relaying follower-originated messages to the
// leader.
package coordinate

import (
	"context"
	"time"
)

// Driver is the lease primitive set every coordinate backend must
// implement atomically at the storage layer (spec §4.3): single-key CAS
// is sufficient.
type Driver interface {
	// StartActorAndAcquireLease creates the actor's lease record if
	// missing and claims leadership if no valid lease exists. Returns the
	// leader node id observed after the call, which may be nodeID or
	// another node's id if someone else already holds the lease.
	StartActorAndAcquireLease(ctx context.Context, actorID, nodeID string, leaseDuration time.Duration) (leaderNodeID string, err error)
	// ExtendLease renews the lease, succeeding only if nodeID still owns it.
	ExtendLease(ctx context.Context, actorID, nodeID string, leaseDuration time.Duration) (leaseValid bool, err error)
	// AttemptAcquireLease claims leadership, succeeding only if the
	// current lease has expired.
	AttemptAcquireLease(ctx context.Context, actorID, nodeID string, leaseDuration time.Duration) (newLeaderNodeID string, acquired bool, err error)
	// ReleaseLease conditionally deletes the lease if nodeID still owns it.
	ReleaseLease(ctx context.Context, actorID, nodeID string) error
}

// Timing holds the lease timing parameters from spec §4.3, with the
// spec's recommended defaults.
type Timing struct {
	LeaseDuration      time.Duration
	RenewGrace         time.Duration
	CheckLeaseInterval time.Duration
	CheckLeaseJitter   time.Duration
}

// DefaultTiming returns spec §4.3's recommended defaults.
func DefaultTiming() Timing {
	return Timing{
		LeaseDuration:      15 * time.Second,
		RenewGrace:         3 * time.Second,
		CheckLeaseInterval: 5 * time.Second,
		CheckLeaseJitter:   2 * time.Second,
	}
}

// RenewInterval is how often a leader should call ExtendLease.
func (t Timing) RenewInterval() time.Duration {
	return t.LeaseDuration - t.RenewGrace
}
