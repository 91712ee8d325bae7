// Package protocol defines the wire messages exchanged between a client
// connection and an actor, per spec §4.4. Messages are encoded as short
// flat maps (not full-blown tagged structs) and carried through whichever
// serde.Codec the connection negotiated; the map keys are the literal wire
// field names, deliberately short the way the teacher's own ws.Message
// envelope keeps its fields short.
package protocol

import "fmt"

// ActionRequest asks the actor to run a named action with the given args.
type ActionRequest struct {
	ID   string // request id, echoed back on the response so the client can match it
	Name string
	Args []any
}

// SubscriptionRequest (un)subscribes the current connection to/from an
// event name.
type SubscriptionRequest struct {
	Event     string
	Subscribe bool
}

// ActionResponse is the successful result of an ActionRequest.
type ActionResponse struct {
	ID     string
	Output any
}

// Event is a server-pushed broadcast, either to one connection or fanned
// out to every subscriber of Name.
type Event struct {
	Name string
	Args []any
}

// ErrorMessage is the wire shape of an errorkind.Error. RequestID is set
// when the error is in response to a specific ActionRequest; empty for
// connection-level errors (e.g. a malformed frame).
type ErrorMessage struct {
	Code      string
	Message   string
	Metadata  map[string]any
	RequestID string
}

// ToWire converts a typed message into the generic tree EncodeDynamic
// expects. Unknown types are a programmer error, so ToWire panics.
func ToWire(msg any) map[string]any {
	switch m := msg.(type) {
	case ActionRequest:
		return map[string]any{"i": m.ID, "n": m.Name, "a": argsOrEmpty(m.Args)}
	case SubscriptionRequest:
		return map[string]any{"e": m.Event, "s": m.Subscribe}
	case ActionResponse:
		return map[string]any{"i": m.ID, "o": m.Output}
	case Event:
		return map[string]any{"en": m.Name, "a": argsOrEmpty(m.Args)}
	case ErrorMessage:
		out := map[string]any{"c": m.Code, "m": m.Message}
		if m.Metadata != nil {
			out["md"] = m.Metadata
		}
		if m.RequestID != "" {
			out["ai"] = m.RequestID
		}
		return out
	default:
		panic(fmt.Sprintf("protocol: ToWire: unknown message type %T", msg))
	}
}

func argsOrEmpty(a []any) []any {
	if a == nil {
		return []any{}
	}
	return a
}

// FromWireInbound classifies and decodes a client-to-actor frame: an
// ActionRequest (has "n") or a SubscriptionRequest (has "e"). Anything
// else is malformed.
func FromWireInbound(tree any) (any, error) {
	m, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("protocol: inbound message is not an object")
	}
	if _, ok := m["e"]; ok {
		sub, _ := m["s"].(bool)
		event, _ := m["e"].(string)
		return SubscriptionRequest{Event: event, Subscribe: sub}, nil
	}
	if _, ok := m["n"]; ok {
		id, _ := m["i"].(string)
		name, _ := m["n"].(string)
		args, _ := m["a"].([]any)
		return ActionRequest{ID: id, Name: name, Args: args}, nil
	}
	return nil, fmt.Errorf("protocol: inbound message has neither \"n\" nor \"e\"")
}

// FromWireOutbound is the server-to-client counterpart of FromWireInbound,
// used by test helpers and the HTTP one-shot driver to parse a response
// frame back into a typed value.
func FromWireOutbound(tree any) (any, error) {
	m, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("protocol: outbound message is not an object")
	}
	if _, ok := m["c"]; ok {
		code, _ := m["c"].(string)
		msg, _ := m["m"].(string)
		md, _ := m["md"].(map[string]any)
		ai, _ := m["ai"].(string)
		return ErrorMessage{Code: code, Message: msg, Metadata: md, RequestID: ai}, nil
	}
	if _, ok := m["en"]; ok {
		name, _ := m["en"].(string)
		args, _ := m["a"].([]any)
		return Event{Name: name, Args: args}, nil
	}
	if _, ok := m["o"]; ok {
		id, _ := m["i"].(string)
		return ActionResponse{ID: id, Output: m["o"]}, nil
	}
	return nil, fmt.Errorf("protocol: outbound message matches no known shape")
}
