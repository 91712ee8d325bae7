// Package etcddriver is the durable, multi-node coordinate.Driver backed
// by etcd leases and transactions, grounded on the CAS-txn
// acquire-a-path pattern from the reference mirendev-runtime actor
// registry (compare-create-revision-then-put, lease-scoped key).
package etcddriver

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/actorhost/lease/"

// Driver implements coordinate.Driver over an etcd cluster. Each actor's
// lease is one key, `/actorhost/lease/<actorID>`, whose value is the
// owning node id and whose etcd lease TTL enforces expiry independent of
// any node's liveness.
type Driver struct {
	client *clientv3.Client
}

// New wraps an existing etcd client.
func New(client *clientv3.Client) *Driver {
	return &Driver{client: client}
}

func leaseKey(actorID string) string { return keyPrefix + actorID }

func (d *Driver) currentLeader(ctx context.Context, actorID string) (string, bool, error) {
	resp, err := d.client.Get(ctx, leaseKey(actorID))
	if err != nil {
		return "", false, fmt.Errorf("etcddriver: get %q: %w", actorID, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// StartActorAndAcquireLease grants a fresh etcd lease for leaseDuration
// and attempts to create the actor's key only if it does not already
// exist (CreateRevision = 0). If the key exists, the observed owner is
// returned unchanged and the granted lease is abandoned to expire on its
// own TTL.
func (d *Driver) StartActorAndAcquireLease(ctx context.Context, actorID, nodeID string, leaseDuration time.Duration) (string, error) {
	grant, err := d.client.Grant(ctx, int64(leaseDuration.Seconds()))
	if err != nil {
		return "", fmt.Errorf("etcddriver: grant lease: %w", err)
	}

	key := leaseKey(actorID)
	txn := d.client.Txn(ctx).If(
		clientv3.Compare(clientv3.CreateRevision(key), "=", 0),
	).Then(
		clientv3.OpPut(key, nodeID, clientv3.WithLease(grant.ID)),
	)
	resp, err := txn.Commit()
	if err != nil {
		return "", fmt.Errorf("etcddriver: commit start txn: %w", err)
	}
	if resp.Succeeded {
		return nodeID, nil
	}

	leader, _, err := d.currentLeader(ctx, actorID)
	if err != nil {
		return "", err
	}
	return leader, nil
}

// ExtendLease re-puts the key with a fresh lease, but only if nodeID is
// still the recorded owner — a compare-on-value CAS, not etcd's native
// KeepAlive, so a deposed leader's stale renew loop cannot resurrect a
// lease another node has since won.
func (d *Driver) ExtendLease(ctx context.Context, actorID, nodeID string, leaseDuration time.Duration) (bool, error) {
	key := leaseKey(actorID)
	grant, err := d.client.Grant(ctx, int64(leaseDuration.Seconds()))
	if err != nil {
		return false, fmt.Errorf("etcddriver: grant lease: %w", err)
	}

	txn := d.client.Txn(ctx).If(
		clientv3.Compare(clientv3.Value(key), "=", nodeID),
	).Then(
		clientv3.OpPut(key, nodeID, clientv3.WithLease(grant.ID)),
	)
	resp, err := txn.Commit()
	if err != nil {
		return false, fmt.Errorf("etcddriver: commit extend txn: %w", err)
	}
	return resp.Succeeded, nil
}

// AttemptAcquireLease puts the key only if it is currently absent —
// which, combined with the TTL on StartActorAndAcquireLease/ExtendLease,
// means it only succeeds once the previous leader's lease has expired
// and etcd has reaped the key.
func (d *Driver) AttemptAcquireLease(ctx context.Context, actorID, nodeID string, leaseDuration time.Duration) (string, bool, error) {
	grant, err := d.client.Grant(ctx, int64(leaseDuration.Seconds()))
	if err != nil {
		return "", false, fmt.Errorf("etcddriver: grant lease: %w", err)
	}

	key := leaseKey(actorID)
	txn := d.client.Txn(ctx).If(
		clientv3.Compare(clientv3.CreateRevision(key), "=", 0),
	).Then(
		clientv3.OpPut(key, nodeID, clientv3.WithLease(grant.ID)),
	)
	resp, err := txn.Commit()
	if err != nil {
		return "", false, fmt.Errorf("etcddriver: commit acquire txn: %w", err)
	}
	if resp.Succeeded {
		return nodeID, true, nil
	}

	leader, _, err := d.currentLeader(ctx, actorID)
	if err != nil {
		return "", false, err
	}
	return leader, false, nil
}

// ReleaseLease deletes the key only if nodeID is still the owner.
func (d *Driver) ReleaseLease(ctx context.Context, actorID, nodeID string) error {
	key := leaseKey(actorID)
	txn := d.client.Txn(ctx).If(
		clientv3.Compare(clientv3.Value(key), "=", nodeID),
	).Then(
		clientv3.OpDelete(key),
	)
	if _, err := txn.Commit(); err != nil {
		return fmt.Errorf("etcddriver: commit release txn: %w", err)
	}
	return nil
}
