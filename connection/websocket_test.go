package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/protocol"
	"github.com/statedge/actorhost/serde"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Load(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[id]
	if !ok {
		return nil, actor.ErrNoRecord
	}
	return d, nil
}

func (s *memStore) Save(ctx context.Context, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = data
	return nil
}

func echoDefinition() *actor.Definition {
	def := actor.NewDefinition("echo")
	def.Actions = map[string]actor.ActionFunc{
		"echo": func(actx *actor.ActionContext, args []any) (any, error) {
			if len(args) == 0 {
				return nil, nil
			}
			return args[0], nil
		},
	}
	return def
}

func newBootedEcho(t *testing.T) *actor.Instance {
	t.Helper()
	Init()
	codec := serde.MustForEncoding(serde.JSON)
	inst := actor.NewInstance(actor.Config{
		ID:     "echo-1",
		Name:   "echo",
		Key:    actor.Key{"echo-1"},
		Def:    echoDefinition(),
		Store:  newMemStore(),
		Codec:  codec,
		Logger: zap.NewNop(),
	})
	if err := inst.Boot(context.Background(), nil); err != nil {
		t.Fatalf("boot: %v", err)
	}
	return inst
}

func newTestServer(t *testing.T, inst *actor.Instance) *httptest.Server {
	t.Helper()
	codec := serde.MustForEncoding(serde.JSON)
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/websocket", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := Upgrade(w, r, codec, zap.NewNop())
		if err != nil {
			return
		}
		connID := NewConnID()
		connToken := NewConnToken()
		ctx := r.Context()
		conn, err := inst.CreateConn(ctx, connID, connToken, nil, nil, serde.JSON, actor.TransportWebSocket, wsConn)
		if err != nil {
			_ = wsConn.Close("create failed")
			return
		}
		_ = conn
		wsConn.Run(ctx, inst, connID, connToken)
	})
	return httptest.NewServer(mux)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/connect/websocket"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func TestOversizedFrameRejectedConnectionStaysOpen(t *testing.T) {
	inst := newBootedEcho(t)
	srv := newTestServer(t, inst)
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close()

	huge := strings.Repeat("x", 70*1024)
	req := protocol.ActionRequest{ID: "1", Name: "echo", Args: []any{huge}}
	codec := serde.MustForEncoding(serde.JSON)
	frame, err := protocol.Encode(codec, req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(frame) <= maxIncomingMessageSize {
		t.Fatalf("test frame is %d bytes, want > %d", len(frame), maxIncomingMessageSize)
	}
	if err := c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	outMsg, err := protocol.DecodeOutbound(codec, data)
	if err != nil {
		t.Fatalf("decode error reply: %v", err)
	}
	errMsg, ok := outMsg.(protocol.ErrorMessage)
	if !ok {
		t.Fatalf("expected ErrorMessage, got %T", outMsg)
	}
	if errMsg.Code != "MessageTooLong" {
		t.Fatalf("code = %q, want MessageTooLong", errMsg.Code)
	}

	// The connection must still be open: a small follow-up frame succeeds.
	small := protocol.ActionRequest{ID: "2", Name: "echo", Args: []any{"hello"}}
	frame2, err := protocol.Encode(codec, small)
	if err != nil {
		t.Fatalf("encode small: %v", err)
	}
	if err := c.WriteMessage(websocket.BinaryMessage, frame2); err != nil {
		t.Fatalf("write small: %v", err)
	}
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data2, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read ok reply: %v", err)
	}
	outMsg2, err := protocol.DecodeOutbound(codec, data2)
	if err != nil {
		t.Fatalf("decode ok reply: %v", err)
	}
	resp, ok := outMsg2.(protocol.ActionResponse)
	if !ok {
		t.Fatalf("expected ActionResponse, got %T", outMsg2)
	}
	if resp.ID != "2" || resp.Output != "hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
