package coordinate

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PeerState is one of the three states an ActorPeer can be in (spec
// §4.3).
type PeerState string

const (
	StateFollower PeerState = "FOLLOWER"
	StateLeader   PeerState = "LEADER"
	StateDisposed PeerState = "DISPOSED"
)

// Peer tracks this node's relationship to one actor id: whether it is
// the leader, and if so runs the renew loop; if a follower, polls for
// the lease expiring so it can race to take over.
type Peer struct {
	actorID string
	nodeID  string
	driver  Driver
	timing  Timing
	log     *zap.Logger

	// OnBecomeLeader runs `__start` on the actor the first time this peer
	// transitions to LEADER (spec §4.3's "INIT -> LEADER ... run __start").
	OnBecomeLeader func(ctx context.Context)
	// OnDispose runs when the peer transitions to DISPOSED, so callers can
	// tear down a RelayConnection or release the live actor.Instance.
	OnDispose func()

	mu         sync.Mutex
	state      PeerState
	refs       int
	leaderHint string

	stopCh chan struct{}
	done   chan struct{}
}

// NewPeer creates a Peer in INIT and immediately runs the initial
// acquisition the spec's INIT transitions describe. Call Run to start the
// background renew/poll loop.
func NewPeer(ctx context.Context, actorID, nodeID string, driver Driver, timing Timing, log *zap.Logger) (*Peer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Peer{
		actorID: actorID,
		nodeID:  nodeID,
		driver:  driver,
		timing:  timing,
		log:     log.Named("coordinate.peer").With(zap.String("actor_id", actorID), zap.String("node_id", nodeID)),
		refs:    1,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	leader, err := driver.StartActorAndAcquireLease(ctx, actorID, nodeID, timing.LeaseDuration)
	if err != nil {
		return nil, err
	}
	p.leaderHint = leader
	if leader == nodeID {
		p.state = StateLeader
	} else {
		p.state = StateFollower
	}
	return p, nil
}

// State returns the peer's current state.
func (p *Peer) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LeaderHint returns the node id this peer last observed holding the
// lease (itself, while LEADER). Best-effort: a caller that is FOLLOWER
// only updates it on its next poll tick, so this can lag reality.
func (p *Peer) LeaderHint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leaderHint
}

// AddRef/RemoveRef track how many local client connections reference
// this actor; when the count reaches zero the peer disposes itself
// (spec §4.3's "LEADER/FOLLOWER -> DISPOSED when refs empties").
func (p *Peer) AddRef() {
	p.mu.Lock()
	p.refs++
	p.mu.Unlock()
}

func (p *Peer) RemoveRef(ctx context.Context) {
	p.mu.Lock()
	p.refs--
	empty := p.refs <= 0
	p.mu.Unlock()
	if empty {
		p.dispose(ctx)
	}
}

// Run starts the background renew-if-leader / poll-if-follower loop. It
// must run in its own goroutine and exits when Stop is called, the peer
// disposes itself, or ctx is done.
func (p *Peer) Run(ctx context.Context) {
	defer close(p.done)

	if p.State() == StateLeader && p.OnBecomeLeader != nil {
		p.OnBecomeLeader(ctx)
	}

	for {
		state := p.State()
		var wait time.Duration
		if state == StateLeader {
			wait = p.timing.RenewInterval()
		} else if state == StateFollower {
			wait = p.timing.CheckLeaseInterval + jitter(p.timing.CheckLeaseJitter)
		} else {
			return // DISPOSED
		}

		select {
		case <-time.After(wait):
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}

		switch p.State() {
		case StateLeader:
			p.tickLeader(ctx)
		case StateFollower:
			p.tickFollower(ctx)
		case StateDisposed:
			return
		}
	}
}

func (p *Peer) tickLeader(ctx context.Context) {
	valid, err := p.driver.ExtendLease(ctx, p.actorID, p.nodeID, p.timing.LeaseDuration)
	if err != nil {
		p.log.Warn("extend lease failed", zap.Error(err))
		return
	}
	if !valid {
		p.log.Warn("lost lease while leader, disposing")
		p.transitionDisposed(ctx, true)
	}
}

func (p *Peer) tickFollower(ctx context.Context) {
	leader, acquired, err := p.driver.AttemptAcquireLease(ctx, p.actorID, p.nodeID, p.timing.LeaseDuration)
	if err != nil {
		p.log.Warn("attempt acquire lease failed", zap.Error(err))
		return
	}
	p.mu.Lock()
	p.leaderHint = leader
	p.mu.Unlock()
	if !acquired {
		return
	}
	p.mu.Lock()
	p.state = StateLeader
	p.mu.Unlock()
	p.log.Info("became leader")
	if p.OnBecomeLeader != nil {
		p.OnBecomeLeader(ctx)
	}
}

func (p *Peer) dispose(ctx context.Context) {
	p.transitionDisposed(ctx, p.State() == StateLeader)
}

func (p *Peer) transitionDisposed(ctx context.Context, releaseLease bool) {
	p.mu.Lock()
	if p.state == StateDisposed {
		p.mu.Unlock()
		return
	}
	p.state = StateDisposed
	p.mu.Unlock()

	if releaseLease {
		if err := p.driver.ReleaseLease(ctx, p.actorID, p.nodeID); err != nil {
			p.log.Warn("release lease on dispose failed", zap.Error(err))
		}
	}
	if p.OnDispose != nil {
		p.OnDispose()
	}
	close(p.stopCh)
}

// Stop halts the renew/poll loop and waits for Run to return, without
// disposing: the lease is not released and simply expires, after which
// another node can take over.
func (p *Peer) Stop() {
	p.mu.Lock()
	if p.state == StateDisposed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.mu.Unlock()
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	<-p.done
}

// jitter returns a uniform random duration in [0, max), spreading out
// follower lease-poll ticks to avoid a thundering herd on expiry (spec
// §4.3's checkLeaseJitter).
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
