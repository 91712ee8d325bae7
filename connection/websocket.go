package connection

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/protocol"
	"github.com/statedge/actorhost/serde"
)

const (
	// writeWait bounds how long a single frame write may take before the
	// connection is considered stalled.
	writeWait = 10 * time.Second

	// pongWait is how long the server waits for a pong after a ping before
	// declaring the client gone.
	pongWait = 60 * time.Second

	// pingPeriod must be comfortably inside pongWait so the client has time
	// to answer before the deadline trips.
	pingPeriod = (pongWait * 9) / 10

	// sendBufferSize is the outbound buffer depth; a client slow enough to
	// fill it is disconnected rather than allowed to backpressure the
	// actor's broadcast path.
	sendBufferSize = 32
)

// upgrader performs the HTTP -> WebSocket handshake. Origin checking is
// left to the reverse proxy in front of the manager, same as the rest of
// this stack's HTTP surface.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
	// Select the standard marker sub-protocol when the client offers it.
	Subprotocols: []string{"actorhost.standard"},
}

// WebSocketConn is a live bidirectional connection driver. It implements
// actor.Sender so the owning Instance can push Event/ActionResponse/Error
// frames back without knowing about gorilla/websocket.
type WebSocketConn struct {
	conn   *websocket.Conn
	codec  serde.Codec
	send   chan []byte
	closed chan struct{}
	log    *zap.Logger
}

// Upgrade performs the WebSocket handshake and returns a driver ready to
// be handed to Run once the owning actor.Conn exists.
func Upgrade(w http.ResponseWriter, r *http.Request, codec serde.Codec, log *zap.Logger) (*WebSocketConn, error) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &WebSocketConn{
		conn:   c,
		codec:  codec,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
		log:    log.With(zap.String("remote_addr", r.RemoteAddr)),
	}, nil
}

// Send implements actor.Sender by queuing an already-encoded frame for
// writePump. Never blocks past the channel's buffer; a full buffer means
// the client is too slow and Close is called instead.
func (w *WebSocketConn) Send(frame []byte) error {
	select {
	case w.send <- frame:
		return nil
	case <-w.closed:
		return errorkind.New(errorkind.InternalError, "connection is closed")
	default:
		w.log.Warn("websocket send buffer full, dropping connection")
		_ = w.Close("send buffer full")
		return errorkind.New(errorkind.InternalError, "send buffer full")
	}
}

// Close implements actor.Sender: sends a normal-closure frame and tears
// the socket down. Safe to call more than once.
func (w *WebSocketConn) Close(reason string) error {
	select {
	case <-w.closed:
		return nil
	default:
		close(w.closed)
	}
	deadline := time.Now().Add(writeWait)
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
	return w.conn.Close()
}

// Run drives conn's lifetime once the caller has registered it with the
// actor (CreateConn): it runs the read and write pumps until the socket
// closes, then removes connID from the actor. It blocks, so callers invoke it from the HTTP handler
// goroutine that completed the upgrade.
func (w *WebSocketConn) Run(ctx context.Context, inst *actor.Instance, connID, connToken string) {
	go w.writePump()
	w.readPump(ctx, inst, connID)
}

// readPump decodes inbound frames and dispatches them to the actor. A
// frame larger than maxIncomingMessageSize is rejected with an
// error frame while the connection stays open (spec's MessageTooLong
// semantics) rather than being treated as a protocol violation.
func (w *WebSocketConn) readPump(ctx context.Context, inst *actor.Instance, connID string) {
	defer func() {
		_ = inst.RemoveConn(ctx, connID)
		w.conn.Close()
	}()

	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Read at most one byte past the limit; NextReader discards the
		// unread rest of an oversized frame on the next call.
		_, r, err := w.conn.NextReader()
		var data []byte
		if err == nil {
			data, err = io.ReadAll(io.LimitReader(r, maxIncomingMessageSize+1))
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				w.log.Warn("websocket unexpected close", zap.Error(err))
			}
			return
		}

		if len(data) > maxIncomingMessageSize {
			frame, encErr := encodeErrorFrame(w.codec, errorkind.New(errorkind.MessageTooLong,
				"inbound frame exceeds the size limit"), "")
			if encErr == nil {
				_ = w.Send(frame)
			}
			continue
		}

		w.dispatch(ctx, inst, connID, data)
	}
}

func (w *WebSocketConn) dispatch(ctx context.Context, inst *actor.Instance, connID string, data []byte) {
	msg, err := protocol.DecodeInbound(w.codec, data)
	if err != nil {
		frame, encErr := encodeErrorFrame(w.codec, errorkind.New(errorkind.MalformedMessage, err.Error()), "")
		if encErr == nil {
			_ = w.Send(frame)
		}
		return
	}

	conn, err := inst.Conn(ctx, connID)
	if err != nil {
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

	out, err := inst.ProcessMessage(ctx, conn, actorMsg)
	if err != nil {
		frame, encErr := encodeErrorFrame(w.codec, errorkind.Of(err), requestID)
		if encErr == nil {
			_ = w.Send(frame)
		}
		return
	}
	if requestID == "" {
		// Subscription toggles have no wire reply.
		return
	}
	frame, err := protocol.Encode(w.codec, protocol.ActionResponse{ID: requestID, Output: out})
	if err != nil {
		w.log.Warn("failed to encode action response", zap.Error(err))
		return
	}
	_ = w.Send(frame)
}

// writePump serializes every outgoing frame and periodic ping onto the
// socket; it is the only goroutine allowed to write to conn.
func (w *WebSocketConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = w.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := w.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				w.log.Warn("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.log.Warn("websocket ping error", zap.Error(err))
				return
			}
		case <-w.closed:
			return
		}
	}
}

// NewConnID mints a fresh connection identity; uuid.NewString matches the
// id convention used for scheduled alarm entries elsewhere in this
// module.
func NewConnID() string { return uuid.NewString() }

// NewConnToken mints a fresh, unguessable token a client must echo on
// every follow-up request for this connection.
func NewConnToken() string { return uuid.NewString() }
