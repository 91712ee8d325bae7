// Package memdriver is the in-memory coordinate.Driver used for
// single-node deployments and tests: a mutex-guarded map standing in for
// the CAS-capable KV store, grounded on the same mutex-guarded-registry
// shape as driver.memManagerDriver.
package memdriver

import (
	"context"
	"sync"
	"time"
)

type lease struct {
	leaderNodeID string
	expiresAt    time.Time
}

// Driver implements coordinate.Driver with an in-process map. It is
// structurally correct (single-key CAS semantics) but obviously only
// coordinates peers within one process — useful for single-node mode and
// exercising the ActorPeer state machine in tests without etcd.
type Driver struct {
	mu     sync.Mutex
	leases map[string]*lease
}

// New returns an empty Driver.
func New() *Driver {
	return &Driver{leases: make(map[string]*lease)}
}

func (d *Driver) StartActorAndAcquireLease(ctx context.Context, actorID, nodeID string, leaseDuration time.Duration) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.leases[actorID]
	now := time.Now()
	if !ok || now.After(l.expiresAt) {
		l = &lease{leaderNodeID: nodeID, expiresAt: now.Add(leaseDuration)}
		d.leases[actorID] = l
	}
	return l.leaderNodeID, nil
}

func (d *Driver) ExtendLease(ctx context.Context, actorID, nodeID string, leaseDuration time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.leases[actorID]
	if !ok || l.leaderNodeID != nodeID {
		return false, nil
	}
	l.expiresAt = time.Now().Add(leaseDuration)
	return true, nil
}

func (d *Driver) AttemptAcquireLease(ctx context.Context, actorID, nodeID string, leaseDuration time.Duration) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	l, ok := d.leases[actorID]
	if ok && now.Before(l.expiresAt) {
		return l.leaderNodeID, false, nil
	}
	l = &lease{leaderNodeID: nodeID, expiresAt: now.Add(leaseDuration)}
	d.leases[actorID] = l
	return nodeID, true, nil
}

func (d *Driver) ReleaseLease(ctx context.Context, actorID, nodeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if l, ok := d.leases[actorID]; ok && l.leaderNodeID == nodeID {
		delete(d.leases, actorID)
	}
	return nil
}
