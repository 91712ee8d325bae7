package connection

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/protocol"
	"github.com/statedge/actorhost/serde"
)

// ServeAction is the one-shot HTTP driver (spec §4.4: "each action is a
// request/response; no events delivered"). There is no actor.Conn behind
// this call — name and args come straight off the request, and the
// action runs with a nil Conn, same as any other system-initiated call.
func ServeAction(w http.ResponseWriter, r *http.Request, inst *actor.Instance, actionName string, codec serde.Codec, log *zap.Logger) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIncomingMessageSize+1))
	if err != nil {
		writeHTTPError(w, codec, errorkind.Wrap(err))
		return
	}
	if len(body) > maxIncomingMessageSize {
		writeHTTPError(w, codec, errorkind.New(errorkind.MessageTooLong, "inbound frame exceeds the size limit"))
		return
	}

	var args []any
	if len(body) > 0 {
		decoded, err := protocol.DecodeInbound(codec, body)
		if err != nil {
			writeHTTPError(w, codec, errorkind.New(errorkind.MalformedMessage, err.Error()))
			return
		}
		if ar, ok := decoded.(protocol.ActionRequest); ok {
			args = ar.Args
		}
	}

	out, err := inst.ExecuteAction(r.Context(), nil, actionName, args)
	if err != nil {
		writeHTTPError(w, codec, errorkind.Of(err))
		return
	}

	frame, err := protocol.Encode(codec, protocol.ActionResponse{Output: out})
	if err != nil {
		log.Warn("failed to encode action response", zap.Error(err))
		writeHTTPError(w, codec, errorkind.Wrap(err))
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(codec.Encoding()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}
