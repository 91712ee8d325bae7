package manager

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/connection"
	"github.com/statedge/actorhost/driver"
	"github.com/statedge/actorhost/driver/memstore"
	"github.com/statedge/actorhost/errorkind"
	"github.com/statedge/actorhost/registry"
	"github.com/statedge/actorhost/serde"
)

func counterDefinition(hooks actor.Hooks) *actor.Definition {
	def := actor.NewDefinition("counter")
	def.Hooks = hooks
	def.Actions = map[string]actor.ActionFunc{
		"increment": func(actx *actor.ActionContext, args []any) (any, error) {
			return "incremented", nil
		},
	}
	return def
}

func newTestGateway(t *testing.T, hooks actor.Hooks) (*httptest.Server, *Manager) {
	t.Helper()
	connection.Init()

	reg := registry.New(counterDefinition(hooks))
	managerDriver := driver.NewMemManagerDriver()
	codec := serde.MustForEncoding(serde.JSON)
	actorDriver := driver.NewLocalActorDriver(reg, memstore.New(), codec, zap.NewNop())

	mgr := New(Config{
		ManagerDriver:   managerDriver,
		ActorDriver:     actorDriver,
		Registry:        reg,
		DefaultEncoding: serde.JSON,
		Logger:          zap.NewNop(),
	})
	gw := NewGateway(mgr, zap.NewNop())
	router := NewRouter(RouterConfig{Manager: mgr, Gateway: gw, Logger: zap.NewNop()})
	return httptest.NewServer(router), mgr
}

func TestServeActionRejectsWithoutRoutingHeaders(t *testing.T) {
	srv, _ := newTestGateway(t, actor.Hooks{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/action/increment", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeActionSucceedsForExistingActor(t *testing.T) {
	srv, mgr := newTestGateway(t, actor.Hooks{})
	defer srv.Close()

	meta, err := mgr.Create(context.Background(), "counter", actor.Key{"a"}, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/action/increment", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderTarget, "actor")
	req.Header.Set(HeaderActor, meta.ActorID)
	req.Header.Set(HeaderEncoding, "json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "incremented")
}

func TestServeActionRejectedByOnAuth(t *testing.T) {
	hooks := actor.Hooks{
		OnAuth: func(ctx context.Context, r *http.Request, params any, intents []actor.Intent) (any, error) {
			return nil, errorkind.New(errorkind.Unauthorized, "no token")
		},
	}
	srv, mgr := newTestGateway(t, hooks)
	defer srv.Close()

	meta, err := mgr.Create(context.Background(), "counter", actor.Key{"b"}, nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/action/increment", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderTarget, "actor")
	req.Header.Set(HeaderActor, meta.ActorID)
	req.Header.Set(HeaderEncoding, "json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLookupByIDRejectedByOnAuth(t *testing.T) {
	hooks := actor.Hooks{
		OnAuth: func(ctx context.Context, r *http.Request, params any, intents []actor.Intent) (any, error) {
			require.Equal(t, []actor.Intent{actor.IntentGet}, intents)
			return nil, errorkind.New(errorkind.Unauthorized, "no token")
		},
	}
	srv, _ := newTestGateway(t, hooks)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/actors/by-id?name=counter&key=a")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
