// Package connection implements the three Connection Protocol drivers
// (WebSocket, SSE, one-shot HTTP) that sit in front of an actor.Instance,
// sharing the wire message shapes in protocol and the encodings in serde.
package connection

import (
	"time"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/protocol"
	"github.com/statedge/actorhost/serde"
)

// maxIncomingMessageSize is the default inbound frame ceiling; anything
// larger is rejected with MessageTooLong rather than closing the
// connection.
const maxIncomingMessageSize = 64 * 1024

const (
	// HeaderConnID and HeaderConnToken identify a connection on every
	// follow-up request that isn't itself the long-lived socket (SSE's
	// POST-back channel, in particular).
	HeaderConnID    = "X-ActorHost-Conn"
	HeaderConnToken = "X-ActorHost-Conn-Token"
)

// Init wires the actor package's event encoder to this package's codec
// table, so actor.Instance.Broadcast can produce wire frames without
// actor importing protocol or serde's codec registry directly. Call this
// once at process startup before any actor accepts connections.
func Init() {
	actor.RegisterEventEncoder(func(enc serde.Encoding, event string, args []any) ([]byte, error) {
		codec, err := serde.ForEncoding(enc)
		if err != nil {
			return nil, err
		}
		return protocol.Encode(codec, protocol.Event{Name: event, Args: args})
	})
}

// encodeErrorFrame builds the wire frame for an error response in the
// connection's negotiated encoding. Used by every driver so a malformed
// frame, an oversized frame, or an action failure all produce the same
// ErrorMessage shape (spec's `Error{c,m,md,ai}`).
func encodeErrorFrame(codec serde.Codec, kindErr *errorkind.Error, requestID string) ([]byte, error) {
	return protocol.Encode(codec, protocol.ErrorMessage{
		Code:      string(kindErr.Kind),
		Message:   kindErr.Message,
		Metadata:  kindErr.Metadata,
		RequestID: requestID,
	})
}

// validateConnToken checks the (connID, connToken) identity pair a
// follow-up request carries against the live actor.Conn, returning
// IncorrectConnToken on mismatch.
func validateConnToken(conn *actor.Conn, token string) error {
	if conn.Token != token {
		return errorkind.New(errorkind.IncorrectConnToken, "connection token does not match")
	}
	return nil
}

// dialTimeout is a handshake bound for the actor's PrepareConn/CreateConn
// hooks. No driver in this package applies it; CreateConn bounds itself
// with the definition's OnConnectTimeout.
const dialTimeout = 10 * time.Second
