package actor

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ActionFunc implements one registered action. args and the returned value
// are the generic "user value" tree serde.EncodeDynamic knows how to
// serialize (maps, slices, strings, numbers, bools, nil, serde.BigInt,
// serde.Bytes).
type ActionFunc func(actx *ActionContext, args []any) (any, error)

// Hooks holds the lifecycle callbacks from spec §4.1. Every field is
// optional; a nil hook is simply skipped.
type Hooks struct {
	OnAuth                 func(ctx context.Context, r *http.Request, params any, intents []Intent) (authData any, err error)
	OnCreate               func(actx *ActionContext, input any) error
	OnStart                func(actx *ActionContext) error
	OnStop                 func(actx *ActionContext)
	OnBeforeConnect        func(actx *ActionContext, params any, r *http.Request) error
	OnConnect              func(actx *ActionContext, conn *Conn) error
	OnDisconnect           func(actx *ActionContext, conn *Conn)
	OnStateChange          func(actx *ActionContext, newState any)
	OnBeforeActionResponse func(actx *ActionContext, name string, args []any, output any) (any, error)
	// OnFetch/OnWebSocket let an actor claim raw HTTP/WS traffic itself.
	// handled=false tells the caller to fall back to normal routing.
	OnFetch     func(actx *ActionContext, w http.ResponseWriter, r *http.Request) (handled bool)
	OnWebSocket func(actx *ActionContext, w http.ResponseWriter, r *http.Request) (handled bool)
}

// Timeouts configures the durations spec §4.1 names, each with its
// documented default applied by NewDefinition when zero.
type Timeouts struct {
	CreateVarsTimeout      time.Duration
	CreateConnStateTimeout time.Duration
	OnConnectTimeout       time.Duration
	ActionTimeout          time.Duration
	SaveInterval           time.Duration
	SleepTimeout           time.Duration
}

func defaultTimeouts() Timeouts {
	return Timeouts{
		CreateVarsTimeout:      5 * time.Second,
		CreateConnStateTimeout: 5 * time.Second,
		OnConnectTimeout:       5 * time.Second,
		ActionTimeout:          60 * time.Second,
		SaveInterval:           10 * time.Second,
	}
}

// Definition is a registered actor type: its name, its hooks, its action
// table, and its timeout configuration. One Definition is shared by every
// Instance of that actor name.
type Definition struct {
	Name    string
	Hooks   Hooks
	Actions map[string]ActionFunc
	Timeouts

	// CreateVars builds the ephemeral, never-persisted `vars` value for a
	// freshly loaded instance. Optional; nil vars otherwise.
	CreateVars func(actx *ActionContext) (any, error)
	// CreateConnState builds a connection's initial PersistedState from
	// its connect params. Optional.
	CreateConnState func(actx *ActionContext, params any) (any, error)
}

// NewDefinition fills in timeout defaults for any zero-valued field.
func NewDefinition(name string) *Definition {
	return &Definition{
		Name:    name,
		Actions: make(map[string]ActionFunc),
		Timeouts: defaultTimeouts(),
	}
}

// ActionContext is the handle an action, hook, or alarm callback gets into
// its Instance. It is only ever constructed on the instance's own event
// loop goroutine.
type ActionContext struct {
	ctx  context.Context
	inst *Instance
	conn *Conn // nil for system-initiated calls (alarms, onCreate, onStart)
}

func (a *ActionContext) Context() context.Context { return a.ctx }
func (a *ActionContext) Log() *zap.Logger         { return a.inst.log }
func (a *ActionContext) ActorID() string          { return a.inst.id }
func (a *ActionContext) Name() string             { return a.inst.name }
func (a *ActionContext) Key() Key                 { return a.inst.key }

// Conn is nil when the call did not originate from a client connection
// (an alarm firing, onCreate, onStart). Spec §9 resolves this the same
// way: scheduled entries run with a system context whose Conn is nil.
func (a *ActionContext) Conn() *Conn { return a.conn }

// State returns the actor's current user state. Must only be called from
// within the instance's own loop (i.e. from inside a hook/action).
func (a *ActionContext) State() any { return a.inst.record.State }

// Vars returns the ephemeral runtime value CreateVars built, or nil.
func (a *ActionContext) Vars() any { return a.inst.vars }

// SetState replaces the actor's user state and marks it dirty for the next
// save cycle, invoking onStateChange synchronously.
func (a *ActionContext) SetState(newState any) {
	a.inst.record.State = newState
	a.inst.markDirty()
	if a.inst.def.Hooks.OnStateChange != nil {
		a.inst.def.Hooks.OnStateChange(a, newState)
	}
}

// Broadcast fans an event out to every subscribed connection. See
// Instance.broadcastLocked for delivery semantics. opts.ExcludeSelf skips
// the connection this call originated from, if any (a.conn is nil for
// system-initiated calls, so there is no self to exclude).
func (a *ActionContext) Broadcast(event string, args []any, opts BroadcastOptions) error {
	callerConnID := ""
	if a.conn != nil {
		callerConnID = a.conn.ID
	}
	return a.inst.broadcastLocked(callerConnID, event, args, opts)
}

// Schedule returns the durable-alarm handle for this actor (spec §4.5).
func (a *ActionContext) Schedule() *ScheduleHandle {
	return &ScheduleHandle{inst: a.inst}
}

// Sleep sets the flag Instance.SleepRequested reports. It does not itself
// flush, stop or hibernate the instance.
func (a *ActionContext) Sleep() {
	a.inst.sleepRequested = true
}

// BroadcastOptions narrows a broadcast's recipients.
type BroadcastOptions struct {
	ExcludeSelf bool
	Exclude     []string // connIDs
}
