package manager

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/driver"
	"github.com/statedge/actorhost/errorkind"
)

// RouterConfig bundles what NewRouter needs, mirroring the teacher's
// RouterConfig-struct-as-constructor-argument convention.
type RouterConfig struct {
	Manager *Manager
	Gateway *Gateway
	Logger  *zap.Logger
	// CoordinateCheck, if set, is consulted by GET /health to report
	// coordinate-driver connectivity alongside process liveness.
	CoordinateCheck func(ctx context.Context) error
}

// NewRouter builds the HTTP surface from spec §4.2's table plus the
// per-actor gateway routes, on a chi.Router the same way the teacher
// assembles internal/api/router.go.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	h := &handlers{mgr: cfg.Manager, gw: cfg.Gateway, log: log, coordinateCheck: cfg.CoordinateCheck}

	r.Get("/", h.banner)
	r.Get("/health", h.health)

	r.Route("/actors", func(r chi.Router) {
		r.Get("/by-id", h.lookupByID)
		r.Put("/by-id", h.getOrCreateByID)
		r.Post("/", h.createActor)
		r.Get("/{id}", h.getActor)
	})

	r.Get("/connect/websocket", h.gw.ServeConnectWebSocket)
	r.Get("/connect/sse", h.gw.ServeConnectSSE)
	r.Post("/connections/message", h.gw.ServePostMessage)
	r.Post("/action/{name}", func(w http.ResponseWriter, r *http.Request) {
		h.gw.ServeAction(w, r, chi.URLParam(r, "name"))
	})
	r.HandleFunc("/raw/*", h.gw.ServeRaw)

	return r
}

type handlers struct {
	mgr             *Manager
	gw              *Gateway
	log             *zap.Logger
	coordinateCheck func(ctx context.Context) error
}

func (h *handlers) banner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("actorhost\n"))
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	code := http.StatusOK
	if h.coordinateCheck != nil {
		if err := h.coordinateCheck(r.Context()); err != nil {
			status["status"] = "degraded"
			status["coordinate_error"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status["coordinate"] = "connected"
		}
	}
	writeJSON(w, code, status)
}

// lookupByID handles `GET /actors/by-id?name&key`, a lookup-only call
// that never creates the actor (spec §4.2 table).
func (h *handlers) lookupByID(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	key := actor.Key(r.URL.Query()["key"])
	if name == "" {
		writeError(w, errorkind.New(errorkind.MalformedMessage, "missing name"))
		return
	}
	if _, err := h.gw.authorizeByName(r, name, actor.IntentGet, nil); err != nil {
		writeError(w, errorkind.Of(err))
		return
	}
	meta, err := h.mgr.Lookup(r.Context(), name, key)
	if err != nil {
		writeOk(w, map[string]any{"actor_id": nil})
		return
	}
	writeOk(w, map[string]any{"actor_id": meta.ActorID})
}

// byIDRequest is the body of `PUT /actors/by-id`.
type byIDRequest struct {
	Name  string   `json:"name"`
	Key   []string `json:"key"`
	Input string   `json:"input"` // base64 CBOR, per spec §4.2
}

func (h *handlers) getOrCreateByID(w http.ResponseWriter, r *http.Request) {
	var body byIDRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeError(w, errorkind.New(errorkind.MalformedMessage, "missing name"))
		return
	}
	input, err := decodeBase64Input(body.Input)
	if err != nil {
		writeError(w, errorkind.New(errorkind.MalformedMessage, "bad input: "+err.Error()))
		return
	}
	if _, err := h.gw.authorizeByName(r, body.Name, actor.IntentGet, nil); err != nil {
		writeError(w, errorkind.Of(err))
		return
	}
	meta, created, err := h.mgr.GetOrCreate(r.Context(), body.Name, actor.Key(body.Key), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOk(w, map[string]any{"actor_id": meta.ActorID, "created": created})
}

// createActorRequest is the body of `POST /actors`.
type createActorRequest struct {
	Name               string   `json:"name"`
	Key                []string `json:"key"`
	Input              string   `json:"input"`
	RunnerNameSelector string   `json:"runner_name_selector"`
	CrashPolicy        string   `json:"crash_policy"`
}

func (h *handlers) createActor(w http.ResponseWriter, r *http.Request) {
	var body createActorRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeError(w, errorkind.New(errorkind.MalformedMessage, "missing name"))
		return
	}
	input, err := decodeBase64Input(body.Input)
	if err != nil {
		writeError(w, errorkind.New(errorkind.MalformedMessage, "bad input: "+err.Error()))
		return
	}
	if _, err := h.gw.authorizeByName(r, body.Name, actor.IntentCreate, nil); err != nil {
		writeError(w, errorkind.Of(err))
		return
	}
	meta, err := h.mgr.Create(r.Context(), body.Name, actor.Key(body.Key), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCreated(w, actorResponse(meta))
}

func (h *handlers) getActor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := h.mgr.GetForID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOk(w, actorResponse(meta))
}

// actorResponse builds the `{actor: {...}}` shape spec §6 describes.
func actorResponse(meta *driver.ActorMeta) map[string]any {
	return map[string]any{
		"actor": map[string]any{
			"actor_id":  meta.ActorID,
			"name":      meta.Name,
			"key":       []string(meta.Key),
			"create_ts": meta.CreatedAt.UnixMilli(),
		},
	}
}

func decodeBase64Input(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	return data, nil
}
