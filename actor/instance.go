package actor

import (
	"container/heap"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/serde"
)

// Store is the narrow persistence contract the Instance needs: load and
// save an opaque byte blob keyed by actor id. driver.PersistenceDriver
// implementations satisfy this structurally, with no import from actor
// back to driver.
type Store interface {
	Load(ctx context.Context, actorID string) ([]byte, error)
	Save(ctx context.Context, actorID string, data []byte) error
}

// ErrNoRecord is returned by a Store when no record exists yet for an
// actor id — a fresh actor being created for the first time.
var ErrNoRecord = fmt.Errorf("actor: no persisted record")

// Instance is one running Actor Instance (spec §4.1): one goroutine-owned
// event loop serializing every hook, action and alarm callback for a
// single actor id.
type Instance struct {
	id   string
	name string
	key  Key
	def  *Definition

	store  Store
	codec  serde.Codec
	log    *zap.Logger
	bgCtx  context.Context

	mailbox chan func()
	stopCh  chan struct{}
	stopped sync.Once

	record  PersistedRecord
	vars    any
	conns   map[string]*Conn
	schedule scheduleHeap

	dirty          bool
	flushing       bool
	flushAgain     bool
	saveTimer      *time.Timer
	saveGroup      singleflight.Group
	alarmTimer     *time.Timer
	sleepRequested bool
}

// Config configures a new Instance.
type Config struct {
	ID     string
	Name   string
	Key    Key
	Def    *Definition
	Store  Store
	Codec  serde.Codec // used to serialize the Persisted Record; bare preferred
	Logger *zap.Logger
}

// NewInstance constructs an Instance and starts its event loop, but does
// not load or create its record — call Boot for that.
func NewInstance(cfg Config) *Instance {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	inst := &Instance{
		id:      cfg.ID,
		name:    cfg.Name,
		key:     cfg.Key,
		def:     cfg.Def,
		store:   cfg.Store,
		codec:   cfg.Codec,
		log:     logger.Named("actor").With(zap.String("actor_id", cfg.ID), zap.String("actor_name", cfg.Name)),
		bgCtx:   context.Background(),
		mailbox: make(chan func(), 16),
		stopCh:  make(chan struct{}),
		conns:   make(map[string]*Conn),
	}
	go inst.loop()
	return inst
}

func (inst *Instance) loop() {
	for {
		select {
		case fn := <-inst.mailbox:
			fn()
		case <-inst.stopCh:
			// Drain anything already queued before this instance's
			// goroutine exits, so callers waiting on submit don't hang.
			for {
				select {
				case fn := <-inst.mailbox:
					fn()
				default:
					return
				}
			}
		}
	}
}

// submit runs fn on the instance's own loop goroutine and waits for its
// result, honoring ctx's deadline/cancellation both while queuing and
// while waiting.
func (inst *Instance) submit(ctx context.Context, fn func() (any, error)) (any, error) {
	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	wrapped := func() {
		v, err := fn()
		done <- outcome{v, err}
	}
	select {
	case inst.mailbox <- wrapped:
	case <-inst.stopCh:
		return nil, errorkind.New(errorkind.ActorNotFound, "actor instance stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Boot loads the actor's persisted record (or creates one via onCreate
// for a never-seen id) and runs onStart, per spec §4.1.
func (inst *Instance) Boot(ctx context.Context, input any) error {
	_, err := inst.submit(ctx, func() (any, error) {
		return nil, inst.bootLocked(ctx, input)
	})
	return err
}

func (inst *Instance) bootLocked(ctx context.Context, input any) error {
	data, err := inst.store.Load(ctx, inst.id)
	created := false
	switch {
	case err == nil:
		if decErr := inst.codec.Unmarshal(data, &inst.record); decErr != nil {
			return errorkind.Wrap(fmt.Errorf("decode persisted record: %w", decErr))
		}
	case err == ErrNoRecord:
		inst.record = PersistedRecord{Input: input, Version: 1}
		created = true
	default:
		return errorkind.Wrap(err)
	}

	for _, e := range inst.record.Schedule {
		heap.Push(&inst.schedule, e)
	}
	inst.rearmAlarm()
	inst.restoreConnsLocked()

	actx := &ActionContext{ctx: ctx, inst: inst}

	if inst.def.CreateVars != nil {
		vctx, cancel := context.WithTimeout(ctx, inst.def.Timeouts.CreateVarsTimeout)
		defer cancel()
		vars, verr := inst.def.CreateVars(&ActionContext{ctx: vctx, inst: inst})
		if verr != nil {
			return errorkind.Wrap(fmt.Errorf("createVars: %w", verr))
		}
		inst.vars = vars
	}

	if created && inst.def.Hooks.OnCreate != nil {
		if err := inst.def.Hooks.OnCreate(actx, input); err != nil {
			return errorkind.Wrap(fmt.Errorf("onCreate: %w", err))
		}
		inst.markDirty()
	}

	if inst.def.Hooks.OnStart != nil {
		if err := inst.def.Hooks.OnStart(actx); err != nil {
			// Fatal to this instance per spec §4.1: logged, surfaced to
			// the caller, retried on next load.
			inst.log.Error("onStart failed", zap.Error(err))
			return errorkind.Wrap(fmt.Errorf("onStart: %w", err))
		}
	}

	if created {
		return inst.flushLocked(ctx)
	}
	return nil
}

// ExecuteAction is the public `executeAction` operation from spec §4.1.
func (inst *Instance) ExecuteAction(ctx context.Context, conn *Conn, name string, args []any) (any, error) {
	actionCtx, cancel := context.WithTimeout(ctx, inst.def.Timeouts.ActionTimeout)
	defer cancel()

	v, err := inst.submit(actionCtx, func() (any, error) {
		return inst.executeActionLocked(actionCtx, conn, name, args)
	})
	if err != nil {
		if actionCtx.Err() == context.DeadlineExceeded {
			return nil, errorkind.New(errorkind.ActionTimedOut, fmt.Sprintf("action %q timed out", name))
		}
		return nil, err
	}
	return v, nil
}

func (inst *Instance) executeActionLocked(ctx context.Context, conn *Conn, name string, args []any) (any, error) {
	fn, ok := inst.def.Actions[name]
	if !ok {
		return nil, errorkind.Newf(errorkind.Unsupported, "no such action %q", name)
	}
	actx := &ActionContext{ctx: ctx, inst: inst, conn: conn}
	output, err := fn(actx, args)
	if err != nil {
		return nil, errorkind.Of(err)
	}
	if inst.def.Hooks.OnBeforeActionResponse != nil {
		output, err = inst.def.Hooks.OnBeforeActionResponse(actx, name, args, output)
		if err != nil {
			return nil, errorkind.Of(err)
		}
	}
	inst.scheduleSaveLocked()
	return output, nil
}

// ProcessMessage dispatches an inbound protocol.ActionRequest or
// protocol.SubscriptionRequest against this actor (spec §4.1/§4.4).
// Returns the action's output for an action request (the caller wraps it
// in a protocol.ActionResponse), nil for a subscription ack, or an error.
func (inst *Instance) ProcessMessage(ctx context.Context, conn *Conn, msg any) (any, error) {
	switch m := msg.(type) {
	case actionRequest:
		out, err := inst.ExecuteAction(ctx, conn, m.Name, m.Args)
		if err != nil {
			return nil, err
		}
		return out, nil
	case subscriptionRequest:
		_, err := inst.submit(ctx, func() (any, error) {
			if m.Subscribe {
				conn.Subscribe(m.Event)
			} else {
				conn.Unsubscribe(m.Event)
			}
			inst.markDirty()
			return nil, nil
		})
		return nil, err
	default:
		return nil, errorkind.New(errorkind.MalformedMessage, "unrecognized message shape")
	}
}

// actionRequest/subscriptionRequest mirror protocol.ActionRequest/
// SubscriptionRequest without importing the protocol package here, which
// would create actor <-> connection <-> protocol <-> actor cycles. The
// connection package adapts protocol.* into these before calling
// ProcessMessage.
type actionRequest struct {
	Name string
	Args []any
}

type subscriptionRequest struct {
	Event     string
	Subscribe bool
}

// NewActionRequest and NewSubscriptionRequest let callers outside this
// package build the message values ProcessMessage accepts.
func NewActionRequest(name string, args []any) any { return actionRequest{Name: name, Args: args} }
func NewSubscriptionRequest(event string, subscribe bool) any {
	return subscriptionRequest{Event: event, Subscribe: subscribe}
}

// Broadcast is the public entry point for broadcast from outside the
// loop (e.g. a manager-level fan-out trigger); actions call
// ActionContext.Broadcast instead, which skips the submit round trip.
func (inst *Instance) Broadcast(ctx context.Context, event string, args []any, opts BroadcastOptions) error {
	_, err := inst.submit(ctx, func() (any, error) {
		return nil, inst.broadcastLocked("", event, args, opts)
	})
	return err
}

// broadcastLocked delivers event to every subscribed connection, encoding
// the Event frame once per distinct encoding in use (spec §4.4's "cached
// per-encoding serialization"). callerConnID is the connection the
// broadcast originated from, if any; it is the connection opts.ExcludeSelf
// skips. Must run on the loop goroutine.
func (inst *Instance) broadcastLocked(callerConnID string, event string, args []any, opts BroadcastOptions) error {
	excluded := make(map[string]struct{}, len(opts.Exclude)+1)
	for _, id := range opts.Exclude {
		excluded[id] = struct{}{}
	}
	if opts.ExcludeSelf && callerConnID != "" {
		excluded[callerConnID] = struct{}{}
	}

	cache := make(map[serde.Encoding][]byte)
	var firstErr error
	for _, conn := range inst.conns {
		if !conn.Subscribed(event) {
			continue
		}
		if _, skip := excluded[conn.ID]; skip {
			continue
		}
		frame, ok := cache[conn.Encoding]
		if !ok {
			enc, err := encodeEvent(conn.Encoding, event, args)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			frame = enc
			cache[conn.Encoding] = frame
		}
		if conn.Sender != nil {
			if err := conn.Sender.Send(frame); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// encodeEvent is supplied by the connection package via RegisterEventEncoder
// so actor stays free of a direct protocol dependency while broadcast can
// still produce real wire frames.
var encodeEvent = func(enc serde.Encoding, event string, args []any) ([]byte, error) {
	return nil, fmt.Errorf("actor: no event encoder registered")
}

// RegisterEventEncoder installs the function broadcastLocked uses to turn
// (event, args) into a wire frame for a given encoding. Called once at
// process startup by the connection package, which owns the
// protocol.Event wire shape.
func RegisterEventEncoder(fn func(enc serde.Encoding, event string, args []any) ([]byte, error)) {
	encodeEvent = fn
}

// PrepareConn validates a prospective connection via onBeforeConnect
// before it is registered.
func (inst *Instance) PrepareConn(ctx context.Context, params any, r *http.Request) error {
	_, err := inst.submit(ctx, func() (any, error) {
		if inst.def.Hooks.OnBeforeConnect == nil {
			return nil, nil
		}
		actx := &ActionContext{ctx: ctx, inst: inst}
		return nil, inst.def.Hooks.OnBeforeConnect(actx, params, r)
	})
	return err
}

// CreateConn registers a new Connection and runs onConnect.
func (inst *Instance) CreateConn(ctx context.Context, id, token string, params, auth any, enc serde.Encoding, transport Transport, sender Sender) (*Conn, error) {
	cctx, cancel := context.WithTimeout(ctx, inst.def.Timeouts.OnConnectTimeout)
	defer cancel()
	v, err := inst.submit(cctx, func() (any, error) {
		conn := newConn(id, token, params, auth, enc, transport, sender)
		if inst.def.CreateConnState != nil {
			actx := &ActionContext{ctx: cctx, inst: inst}
			state, err := inst.def.CreateConnState(actx, params)
			if err != nil {
				return nil, errorkind.Wrap(fmt.Errorf("createConnState: %w", err))
			}
			conn.PersistedState = state
		}
		inst.conns[conn.ID] = conn
		if inst.def.Hooks.OnConnect != nil {
			actx := &ActionContext{ctx: cctx, inst: inst, conn: conn}
			if err := inst.def.Hooks.OnConnect(actx, conn); err != nil {
				delete(inst.conns, conn.ID)
				return nil, errorkind.Of(err)
			}
		}
		inst.markDirty()
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Conn), nil
}

// RemoveConn tears a connection down on transport close or explicit
// disconnect, running onDisconnect.
func (inst *Instance) RemoveConn(ctx context.Context, connID string) error {
	_, err := inst.submit(ctx, func() (any, error) {
		conn, ok := inst.conns[connID]
		if !ok {
			return nil, errorkind.New(errorkind.ConnNotFound, "no such connection")
		}
		delete(inst.conns, connID)
		if inst.def.Hooks.OnDisconnect != nil {
			actx := &ActionContext{ctx: inst.bgCtx, inst: inst, conn: conn}
			inst.def.Hooks.OnDisconnect(actx, conn)
		}
		inst.markDirty()
		return nil, nil
	})
	return err
}

// RawFetch gives the actor's onFetch hook first refusal on raw HTTP
// traffic under the `/raw/...` gateway path (spec §2). handled=false tells
// the caller to fall back to the normal Unsupported response. The hook
// runs synchronously on the loop goroutine like any other hook, so a
// handler that needs to hold the connection open (streaming a response
// body, for example) should write what it can and return promptly rather
// than blocking the actor's mailbox for the connection's lifetime.
func (inst *Instance) RawFetch(ctx context.Context, w http.ResponseWriter, r *http.Request) (bool, error) {
	if inst.def.Hooks.OnFetch == nil {
		return false, nil
	}
	v, err := inst.submit(ctx, func() (any, error) {
		actx := &ActionContext{ctx: ctx, inst: inst}
		return inst.def.Hooks.OnFetch(actx, w, r), nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// RawWebSocket is RawFetch's counterpart for a raw `/raw/...` request
// carrying a WebSocket upgrade. The hook owns the upgrade itself (the
// gateway never calls connection.Upgrade for a raw route); it is expected
// to hand the live socket off to its own goroutine before returning,
// exactly as Gateway.ServeConnectWebSocket hands a managed connection's
// read/write pumps off outside the submit call.
func (inst *Instance) RawWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) (bool, error) {
	if inst.def.Hooks.OnWebSocket == nil {
		return false, nil
	}
	v, err := inst.submit(ctx, func() (any, error) {
		actx := &ActionContext{ctx: ctx, inst: inst}
		return inst.def.Hooks.OnWebSocket(actx, w, r), nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Conn looks up a live connection by id (used by SSE/HTTP drivers to
// validate connToken on a follow-up request).
func (inst *Instance) Conn(ctx context.Context, connID string) (*Conn, error) {
	v, err := inst.submit(ctx, func() (any, error) {
		conn, ok := inst.conns[connID]
		if !ok {
			return nil, errorkind.New(errorkind.ConnNotFound, "no such connection")
		}
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Conn), nil
}

// markDirty flags the record as needing a save and schedules one at
// saveInterval if nothing is already pending. Must run on the loop
// goroutine.
func (inst *Instance) markDirty() {
	inst.dirty = true
	inst.scheduleSaveLocked()
}

func (inst *Instance) scheduleSaveLocked() {
	if inst.saveTimer != nil || !inst.dirty {
		return
	}
	inst.saveTimer = time.AfterFunc(inst.def.Timeouts.SaveInterval, func() {
		inst.submit(inst.bgCtx, func() (any, error) {
			inst.saveTimer = nil
			return nil, inst.flushLocked(inst.bgCtx)
		})
	})
}

// SaveState is the public `saveState` operation. It flushes synchronously
// and cancels any pending interval save: always when immediate is true,
// and only if the record is dirty when immediate is false.
func (inst *Instance) SaveState(ctx context.Context, immediate bool) error {
	_, err := inst.submit(ctx, func() (any, error) {
		if !immediate && !inst.dirty {
			return nil, nil
		}
		if inst.saveTimer != nil {
			inst.saveTimer.Stop()
			inst.saveTimer = nil
		}
		return nil, inst.flushLocked(ctx)
	})
	return err
}

// flushLocked writes the current record to the store. Must run on the loop
// goroutine, so flushes never overlap and no mutation runs during one:
// concurrent SaveState callers each get their own flush in turn, and the
// saveGroup call never has a second caller to merge with.
func (inst *Instance) flushLocked(ctx context.Context) error {
	if inst.flushing {
		inst.flushAgain = true
		return nil
	}
	inst.flushing = true
	inst.dirty = false

	inst.record.ConnStates = inst.connStatesSnapshot()
	inst.record.Subscriptions = inst.subscriptionsSnapshot()
	inst.record.Schedule = append([]ScheduleEntry(nil), inst.schedule...)

	data, encErr := inst.codec.Marshal(inst.record)
	if encErr != nil {
		inst.flushing = false
		return errorkind.Wrap(fmt.Errorf("encode persisted record: %w", encErr))
	}

	_, err, _ := inst.saveGroup.Do(inst.id, func() (any, error) {
		return nil, inst.store.Save(ctx, inst.id, data)
	})

	inst.flushing = false
	if err != nil {
		return errorkind.Wrap(err)
	}
	if inst.flushAgain {
		inst.flushAgain = false
		inst.dirty = true
		return inst.flushLocked(ctx)
	}
	return nil
}

// restoreConnsLocked rebuilds inst.conns from the persisted record on
// boot, so a connection with persisted state survives an actor restart
// (spec §3) instead of vanishing until the client happens to reconnect
// with the same id. A restored Conn carries no live Sender — it is
// demoted to TransportHTTP per PersistedConn's doc comment — so
// broadcastLocked silently skips delivery to it until the transport
// driver re-attaches a live Sender on reconnect. Must run on the loop
// goroutine, only from bootLocked.
func (inst *Instance) restoreConnsLocked() {
	for id, pc := range inst.record.ConnStates {
		conn := newConn(pc.ConnID, pc.ConnToken, pc.Params, pc.Auth, serde.Encoding(pc.Encoding), TransportHTTP, nil)
		conn.PersistedState = pc.PersistedState
		for _, event := range inst.record.Subscriptions[id] {
			conn.Subscribe(event)
		}
		inst.conns[id] = conn
	}
}

func (inst *Instance) connStatesSnapshot() map[string]PersistedConn {
	if len(inst.conns) == 0 {
		return nil
	}
	out := make(map[string]PersistedConn, len(inst.conns))
	for id, c := range inst.conns {
		if c.PersistedState == nil {
			continue
		}
		out[id] = PersistedConn{
			ConnID:         c.ID,
			ConnToken:      c.Token,
			Params:         c.Params,
			Auth:           c.Auth,
			Encoding:       string(c.Encoding),
			PersistedState: c.PersistedState,
		}
	}
	return out
}

func (inst *Instance) subscriptionsSnapshot() map[string][]string {
	if len(inst.conns) == 0 {
		return nil
	}
	out := make(map[string][]string, len(inst.conns))
	for id, c := range inst.conns {
		if names := c.subscriptionNames(); len(names) > 0 {
			out[id] = names
		}
	}
	return out
}

// Sleep flushes state, runs onStop, and stops the instance's event loop.
// Live connections are dropped; their persisted state survives for the
// next materialization (spec §4.1 "Hibernation").
func (inst *Instance) Sleep(ctx context.Context) error {
	_, err := inst.submit(ctx, func() (any, error) {
		if err := inst.flushLocked(ctx); err != nil {
			return nil, err
		}
		if inst.def.Hooks.OnStop != nil {
			inst.def.Hooks.OnStop(&ActionContext{ctx: ctx, inst: inst})
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	inst.stop()
	return nil
}

func (inst *Instance) stop() {
	inst.stopped.Do(func() {
		close(inst.stopCh)
		if inst.alarmTimer != nil {
			inst.alarmTimer.Stop()
		}
		if inst.saveTimer != nil {
			inst.saveTimer.Stop()
		}
	})
}

// SleepRequested reports whether any call since this instance was created
// has invoked ActionContext.Sleep(). The flag is never cleared.
func (inst *Instance) SleepRequested() bool { return inst.sleepRequested }

// ID, Name and Key expose the actor's identity to the Actor Driver/Manager.
func (inst *Instance) ID() string   { return inst.id }
func (inst *Instance) Name() string { return inst.name }
func (inst *Instance) Key() Key     { return inst.key }
