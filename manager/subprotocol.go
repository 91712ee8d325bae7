package manager

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/statedge/actorhost/serde"
)

// standardSubprotocol is this implementation's name for the fixed marker
// the spec calls `rivetkit.standard` — the WebSocket equivalent of "this
// client speaks our connection protocol", selected back in the upgrade
// response when present (spec §4.2's WebSocket sub-protocol carriage).
const standardSubprotocol = "actorhost.standard"

// RoutingInfo is everything a WebSocket handshake's sub-protocol list (or
// an HTTP request's routing headers) can carry about which actor a
// request targets and how to talk to it.
type RoutingInfo struct {
	Target    string // "actor", mirroring the HTTP x-actorhost-target value
	ActorID   string
	Encoding  serde.Encoding
	ConnParams string // raw JSON, still encoded
	ConnID     string
	ConnToken  string
	Token      string // service-to-service auth token
	Standard   bool   // true if the fixed marker subprotocol was present
}

// ParseSubprotocols decodes the comma-separated-in-spirit (actually
// separately negotiated) list of WebSocket sub-protocols a client offers
// into a RoutingInfo. Each prefix carries one field; conn_params is
// URL-decoded from its carried form but left as a raw JSON string for the
// caller to unmarshal with the negotiated codec.
func ParseSubprotocols(protocols []string) RoutingInfo {
	var info RoutingInfo
	for _, p := range protocols {
		switch {
		case p == standardSubprotocol:
			info.Standard = true
		case strings.HasPrefix(p, "target."):
			info.Target = strings.TrimPrefix(p, "target.")
		case strings.HasPrefix(p, "actor."):
			info.ActorID = strings.TrimPrefix(p, "actor.")
		case strings.HasPrefix(p, "encoding."):
			info.Encoding = serde.Encoding(strings.TrimPrefix(p, "encoding."))
		case strings.HasPrefix(p, "conn_params."):
			if decoded, err := url.QueryUnescape(strings.TrimPrefix(p, "conn_params.")); err == nil {
				info.ConnParams = decoded
			}
		case strings.HasPrefix(p, "conn_id."):
			info.ConnID = strings.TrimPrefix(p, "conn_id.")
		case strings.HasPrefix(p, "conn_token."):
			info.ConnToken = strings.TrimPrefix(p, "conn_token.")
		case strings.HasPrefix(p, "token."):
			info.Token = strings.TrimPrefix(p, "token.")
		}
	}
	return info
}

// ResponseSubprotocol is the single sub-protocol the server should echo
// back in the 101 response, selecting the standard marker if the client
// offered it (spec: "the server must select rivetkit.standard in the
// response if present").
func ResponseSubprotocol(protocols []string) string {
	for _, p := range protocols {
		if p == standardSubprotocol {
			return standardSubprotocol
		}
	}
	return ""
}

// DecodeConnParams unmarshals the raw JSON ConnParams string into a
// generic value, or returns nil if none was carried.
func DecodeConnParams(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}
