package connection

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/protocol"
	"github.com/statedge/actorhost/serde"
)

// SSEConn is a server-to-client-only connection driver. Client messages
// don't ride this stream at all; they arrive on a separate POST to
// /connections/message (see PostMessage), matching spec §4.4's "SSE is
// server->client only" rule.
type SSEConn struct {
	codec   serde.Codec
	flusher http.Flusher
	w       http.ResponseWriter

	mu     sync.Mutex
	closed bool
}

// NewSSEConn starts an SSE stream on w, writing the headers that tell the
// client to keep the connection open and not buffer intermediate proxies.
func NewSSEConn(w http.ResponseWriter, codec serde.Codec) (*SSEConn, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errorkind.New(errorkind.InternalError, "response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEConn{codec: codec, flusher: flusher, w: w}, nil
}

// Send implements actor.Sender by writing one SSE `data:` event per
// frame. Frames are base64-encoded since cbor/bare payloads are not valid
// UTF-8 and SSE's wire format is line-oriented text.
func (s *SSEConn) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errorkind.New(errorkind.InternalError, "connection is closed")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", base64.StdEncoding.EncodeToString(frame)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close implements actor.Sender; an SSE stream has no close handshake, so
// this only marks the driver inert. The HTTP handler ends the response
// when its handler function returns.
func (s *SSEConn) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// PostMessage handles the client-to-actor side of an SSE connection: a
// POST to /connections/message carrying HeaderConnID/HeaderConnToken and
// an encoded ActionRequest or SubscriptionRequest body.
func PostMessage(w http.ResponseWriter, r *http.Request, inst *actor.Instance, codec serde.Codec, log *zap.Logger) {
	connID := r.Header.Get(HeaderConnID)
	connToken := r.Header.Get(HeaderConnToken)
	if connID == "" || connToken == "" {
		writeHTTPError(w, codec, errorkind.New(errorkind.MalformedMessage, "missing connection headers"))
		return
	}

	conn, err := inst.Conn(r.Context(), connID)
	if err != nil {
		writeHTTPError(w, codec, errorkind.Of(err))
		return
	}
	if err := validateConnToken(conn, connToken); err != nil {
		writeHTTPError(w, codec, errorkind.Of(err))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIncomingMessageSize+1))
	if err != nil {
		writeHTTPError(w, codec, errorkind.Wrap(err))
		return
	}
	if len(body) > maxIncomingMessageSize {
		writeHTTPError(w, codec, errorkind.New(errorkind.MessageTooLong, "inbound frame exceeds the size limit"))
		return
	}

	msg, err := protocol.DecodeInbound(codec, body)
	if err != nil {
		writeHTTPError(w, codec, errorkind.New(errorkind.MalformedMessage, err.Error()))
		return
	}

	requestID := ""
	actorMsg := msg
	if ar, ok := msg.(protocol.ActionRequest); ok {
		requestID = ar.ID
		actorMsg = actor.NewActionRequest(ar.Name, ar.Args)
	} else if sr, ok := msg.(protocol.SubscriptionRequest); ok {
		actorMsg = actor.NewSubscriptionRequest(sr.Event, sr.Subscribe)
	}

	out, err := inst.ProcessMessage(r.Context(), conn, actorMsg)
	if err != nil {
		writeHTTPErrorWithRequestID(w, codec, errorkind.Of(err), requestID)
		return
	}
	if requestID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	frame, err := protocol.Encode(codec, protocol.ActionResponse{ID: requestID, Output: out})
	if err != nil {
		log.Warn("failed to encode action response", zap.Error(err))
		writeHTTPError(w, codec, errorkind.Wrap(err))
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(codec.Encoding()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

func writeHTTPError(w http.ResponseWriter, codec serde.Codec, kindErr *errorkind.Error) {
	writeHTTPErrorWithRequestID(w, codec, kindErr, "")
}

func writeHTTPErrorWithRequestID(w http.ResponseWriter, codec serde.Codec, kindErr *errorkind.Error, requestID string) {
	frame, err := encodeErrorFrame(codec, kindErr, requestID)
	w.Header().Set("Content-Type", contentTypeFor(codec.Encoding()))
	w.WriteHeader(errorkind.HTTPStatus(kindErr.Kind))
	if err == nil {
		_, _ = w.Write(frame)
	}
}

func contentTypeFor(enc serde.Encoding) string {
	switch enc {
	case serde.JSON:
		return "application/json"
	case serde.CBOR:
		return "application/cbor"
	default:
		return "application/octet-stream"
	}
}
