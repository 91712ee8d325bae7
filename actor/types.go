// Package actor implements the Actor Instance lifecycle engine: per-actor
// single-threaded execution, hook dispatch, state persistence, connection
// registry, broadcast fan-out and durable alarms.
package actor

// Key is the ordered list of strings that, together with an actor's
// registered name, identifies it. Two gets with the same (name, key) refer
// to the same actor.
type Key []string

// String joins the key parts for logging and deterministic-id hashing.
func (k Key) String() string {
	out := ""
	for i, p := range k {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

// Intent is one of the reasons a request is touching an actor, passed to
// onAuth so it can make coarse-grained authorization decisions without
// inspecting the request body.
type Intent string

const (
	IntentGet     Intent = "get"
	IntentCreate  Intent = "create"
	IntentConnect Intent = "connect"
	IntentAction  Intent = "action"
	IntentMessage Intent = "message"
	IntentRaw     Intent = "raw"
)
