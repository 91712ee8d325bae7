package manager

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/connection"
	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/serde"
)

// HTTP routing headers (spec §6, renamed from the original framework's
// X-RivetKit-* convention). A request carrying TargetHeader: "actor" plus
// ActorHeader is proxied to that actor's current host; the headers are
// stripped before the request is forwarded.
const (
	HeaderTarget     = "X-ActorHost-Target"
	HeaderActor      = "X-ActorHost-Actor"
	HeaderEncoding   = "X-ActorHost-Encoding"
	HeaderConnParams = "X-ActorHost-Conn-Params"
	HeaderAuthData   = "X-ActorHost-Auth-Data"
	HeaderConn       = "X-ActorHost-Conn"
	HeaderConnToken  = "X-ActorHost-Conn-Token"

	targetValueActor = "actor"
)

// Gateway implements the proxy mechanics from spec §4.2: sendRequest,
// openWebSocket, and the Hono-style proxyRequest/proxyWebSocket that
// forward a routed request to whichever node holds the target actor.
// resolveLocal always issues a direct in-process call — exactly as the
// spec's "In single-node deployments..." escape hatch describes — but
// that call only succeeds when the underlying ActorDriver confirms this
// node is the target actor's coordinate.Peer leader (see
// driver.CoordinatedActorDriver); a follower's resolveLocal fails with
// Unsupported rather than silently materializing a second copy of the
// actor.
type Gateway struct {
	mgr *Manager
	log *zap.Logger
}

// NewGateway builds a Gateway over mgr.
func NewGateway(mgr *Manager, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{mgr: mgr, log: log.Named("gateway")}
}

// routingFromHeaders reads the gateway routing headers off r. ok is false
// when the request carries no routing headers at all (not a gateway
// request); an error is returned only when routing was attempted but is
// incomplete or malformed.
func routingFromHeaders(r *http.Request) (actorID string, enc serde.Encoding, ok bool, err error) {
	target := r.Header.Get(HeaderTarget)
	if target == "" {
		return "", "", false, nil
	}
	if target != targetValueActor {
		return "", "", true, errorkind.Newf(errorkind.MissingActorHeader, "unsupported routing target %q", target)
	}
	actorID = r.Header.Get(HeaderActor)
	if actorID == "" {
		return "", "", true, errorkind.New(errorkind.MissingActorHeader, "missing "+HeaderActor)
	}
	enc = serde.Encoding(r.Header.Get(HeaderEncoding))
	if enc == "" {
		enc = serde.JSON
	}
	if !enc.Valid() {
		return "", "", true, errorkind.Newf(errorkind.MalformedMessage, "unknown encoding %q", enc)
	}
	return actorID, enc, true, nil
}

// stripRoutingHeaders removes the gateway routing headers from r before
// the request is handed to actor-facing code, so routing metadata never
// leaks into conn params or action args.
func stripRoutingHeaders(r *http.Request) {
	r.Header.Del(HeaderTarget)
	r.Header.Del(HeaderActor)
	r.Header.Del(HeaderEncoding)
	r.Header.Del(HeaderConnParams)
	r.Header.Del(HeaderAuthData)
}

// resolveLocal loads actorID's instance on this node via the Actor
// Driver. This is "sendRequest"/"openWebSocket": no network hop, just
// LoadOrCreate against the configured driver — which, when wrapped in a
// driver.CoordinatedActorDriver, itself refuses to materialize an actor
// this node does not hold the lease for (spec §4.3's "exactly one replica
// cluster-wide").
func (g *Gateway) resolveLocal(r *http.Request, actorID string) (*actor.Instance, error) {
	meta, err := g.mgr.GetForID(r.Context(), actorID)
	if err != nil {
		return nil, err
	}
	return g.mgr.LoadLocal(r.Context(), *meta)
}

// authorize runs onAuth "at the HTTP edge before any actor work" (spec
// §3), using the actor's registered Definition rather than a live
// Instance — onAuth is pure and must not touch actor state, so it never
// needs one. A Definition with no OnAuth hook always authorizes.
func (g *Gateway) authorize(r *http.Request, actorID string, intent actor.Intent, params any) (any, error) {
	meta, err := g.mgr.GetForID(r.Context(), actorID)
	if err != nil {
		return nil, err
	}
	def, ok := g.mgr.DefinitionFor(meta.Name)
	if !ok || def.Hooks.OnAuth == nil {
		return nil, nil
	}
	return def.Hooks.OnAuth(r.Context(), r, params, []actor.Intent{intent})
}

// authorizeByName is authorize's pre-creation counterpart: lookupByID,
// getOrCreateByID, and createActor all name an actor that may not exist
// yet, so there is no actor id to resolve a Definition through.
func (g *Gateway) authorizeByName(r *http.Request, name string, intent actor.Intent, params any) (any, error) {
	def, ok := g.mgr.DefinitionFor(name)
	if !ok || def.Hooks.OnAuth == nil {
		return nil, nil
	}
	return def.Hooks.OnAuth(r.Context(), r, params, []actor.Intent{intent})
}

// ServeAction handles one-shot HTTP actions: POST to a gateway-routed
// path ending in /action/{name}.
func (g *Gateway) ServeAction(w http.ResponseWriter, r *http.Request, actionName string) {
	actorID, enc, ok, err := routingFromHeaders(r)
	if !ok {
		writeError(w, errorkind.New(errorkind.MissingActorHeader, "request carries no routing headers"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	stripRoutingHeaders(r)

	if _, err := g.authorize(r, actorID, actor.IntentAction, nil); err != nil {
		writeError(w, errorkind.Of(err))
		return
	}

	inst, err := g.resolveLocal(r, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	codec, err := serde.ForEncoding(enc)
	if err != nil {
		writeError(w, errorkind.New(errorkind.MalformedMessage, err.Error()))
		return
	}
	connection.ServeAction(w, r, inst, actionName, codec, g.log)
}

// ServeConnectWebSocket upgrades a gateway-routed request into a live
// WebSocket Connection against the target actor.
func (g *Gateway) ServeConnectWebSocket(w http.ResponseWriter, r *http.Request) {
	info := ParseSubprotocols(websocketProtocolsOf(r))
	if info.ActorID == "" {
		writeError(w, errorkind.New(errorkind.MissingActorHeader, "missing actor.<id> sub-protocol"))
		return
	}
	enc := info.Encoding
	if enc == "" {
		enc = g.mgr.DefaultEncoding()
	}
	codec, err := serde.ForEncoding(enc)
	if err != nil {
		writeError(w, errorkind.New(errorkind.MalformedMessage, err.Error()))
		return
	}

	params, err := DecodeConnParams(info.ConnParams)
	if err != nil {
		writeError(w, errorkind.New(errorkind.MalformedMessage, "bad conn_params: "+err.Error()))
		return
	}

	if _, err := g.authorize(r, info.ActorID, actor.IntentConnect, params); err != nil {
		writeError(w, errorkind.Of(err))
		return
	}

	inst, err := g.resolveLocal(r, info.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := inst.PrepareConn(r.Context(), params, r); err != nil {
		writeError(w, err)
		return
	}

	wsConn, err := connection.Upgrade(w, r, codec, g.log)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := info.ConnID
	if connID == "" {
		connID = connection.NewConnID()
	}
	connToken := info.ConnToken
	if connToken == "" {
		connToken = connection.NewConnToken()
	}

	conn, err := inst.CreateConn(r.Context(), connID, connToken, params, nil, enc, actor.TransportWebSocket, wsConn)
	if err != nil {
		_ = wsConn.Close("create connection failed")
		return
	}
	_ = conn
	wsConn.Run(r.Context(), inst, connID, connToken)
}

// ServeConnectSSE starts a server-to-client-only event stream.
func (g *Gateway) ServeConnectSSE(w http.ResponseWriter, r *http.Request) {
	actorID, enc, ok, err := routingFromHeaders(r)
	if !ok {
		writeError(w, errorkind.New(errorkind.MissingActorHeader, "request carries no routing headers"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	stripRoutingHeaders(r)

	if _, err := g.authorize(r, actorID, actor.IntentConnect, nil); err != nil {
		writeError(w, errorkind.Of(err))
		return
	}

	inst, err := g.resolveLocal(r, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	codec, err := serde.ForEncoding(enc)
	if err != nil {
		writeError(w, errorkind.New(errorkind.MalformedMessage, err.Error()))
		return
	}

	sseConn, err := connection.NewSSEConn(w, codec)
	if err != nil {
		writeError(w, err)
		return
	}

	connID := connection.NewConnID()
	connToken := connection.NewConnToken()
	_, err = inst.CreateConn(r.Context(), connID, connToken, nil, nil, enc, actor.TransportSSE, sseConn)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(HeaderConn, connID)
	w.Header().Set(HeaderConnToken, connToken)

	<-r.Context().Done()
	_ = inst.RemoveConn(r.Context(), connID)
}

// ServePostMessage handles the client-to-actor side of an SSE connection
// (spec's `/connections/message`).
func (g *Gateway) ServePostMessage(w http.ResponseWriter, r *http.Request) {
	actorID, enc, ok, err := routingFromHeaders(r)
	if !ok {
		writeError(w, errorkind.New(errorkind.MissingActorHeader, "request carries no routing headers"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	stripRoutingHeaders(r)

	if _, err := g.authorize(r, actorID, actor.IntentMessage, nil); err != nil {
		writeError(w, errorkind.Of(err))
		return
	}

	inst, err := g.resolveLocal(r, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	codec, err := serde.ForEncoding(enc)
	if err != nil {
		writeError(w, errorkind.New(errorkind.MalformedMessage, err.Error()))
		return
	}
	connection.PostMessage(w, r, inst, codec, g.log)
}

// ServeRaw handles the per-actor `/raw/...` pass-through (spec §2): a
// registered onFetch or onWebSocket hook gets first refusal on the
// request exactly as it arrived, bypassing the action/connection
// protocol entirely. A request with no matching hook, or whose hook
// declines (handled=false), gets Unsupported.
func (g *Gateway) ServeRaw(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok, err := routingFromHeaders(r)
	if !ok {
		writeError(w, errorkind.New(errorkind.MissingActorHeader, "request carries no routing headers"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	stripRoutingHeaders(r)

	if _, err := g.authorize(r, actorID, actor.IntentRaw, nil); err != nil {
		writeError(w, errorkind.Of(err))
		return
	}

	inst, err := g.resolveLocal(r, actorID)
	if err != nil {
		writeError(w, err)
		return
	}

	if isWebSocketUpgrade(r) {
		handled, err := inst.RawWebSocket(r.Context(), w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if !handled {
			writeError(w, errorkind.New(errorkind.Unsupported, "actor does not claim raw websocket traffic"))
		}
		return
	}

	handled, err := inst.RawFetch(r.Context(), w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !handled {
		writeError(w, errorkind.New(errorkind.Unsupported, "actor does not claim raw fetch traffic"))
	}
}

// isWebSocketUpgrade reports whether r asks for a WebSocket upgrade, the
// same header pair gorilla/websocket's own Upgrader checks. Connection is
// a comma-separated header (e.g. "keep-alive, Upgrade"), so this checks
// for the token rather than an exact match.
func isWebSocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, tok := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(tok), "upgrade") {
			return true
		}
	}
	return false
}

// websocketProtocolsOf reads the comma-separated Sec-WebSocket-Protocol
// request header into a slice, the form ParseSubprotocols expects.
func websocketProtocolsOf(r *http.Request) []string {
	raw := r.Header.Get("Sec-WebSocket-Protocol")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
