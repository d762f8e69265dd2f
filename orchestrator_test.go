package authclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	authclient "github.com/goliatone/go-authclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	authenticated bool
	userID        string
	refreshOK     bool
	slowWhoami    time.Duration
	lock          sync.Mutex
}

func (b *fakeBackend) handler(cfg *authclient.ClientConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == cfg.IdentityPath && b.slowWhoami > 0 {
			time.Sleep(b.slowWhoami)
		}

		b.lock.Lock()
		defer b.lock.Unlock()

		switch r.URL.Path {
		case cfg.IdentityPath:
			if !b.authenticated {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"is_authenticated": true,
				"session_ready":    true,
				"user_id":          b.userID,
				"source":           "cookie",
				"version":          "1",
			})
		case cfg.LoginPath:
			b.authenticated = true
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
			})
		case cfg.RefreshPath:
			if !b.refreshOK {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			b.authenticated = true
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "access-2",
				"refresh_token": "refresh-2",
			})
		case cfg.LogoutPath:
			b.authenticated = false
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Write([]byte(`{"value":"data"}`))
		}
	}
}

func newTestOrchestrator(t *testing.T, backend *fakeBackend, opts ...authclient.OrchestratorOption) (*authclient.Orchestrator, *authclient.Client, *countingHandler) {
	t.Helper()

	cfg := authclient.DefaultConfig("http://placeholder")
	handler := newCountingHandler(func(w http.ResponseWriter, r *http.Request) {
		backend.handler(cfg)(w, r)
	})
	cfg.BaseURL = newCountingServer(t, handler)
	cfg.DeviceID = "test-device"

	client := authclient.NewClient(cfg)
	orch := authclient.NewOrchestrator(client, cfg, opts...)
	return orch, client, handler
}

func TestInitializeIsIdempotent(t *testing.T) {
	backend := &fakeBackend{authenticated: true, userID: "user-1"}
	orch, _, handler := newTestOrchestrator(t, backend)

	first := orch.Initialize(context.Background())
	second := orch.Initialize(context.Background())
	third := orch.Initialize(context.Background())

	assert.True(t, first.Authenticated)
	assert.Equal(t, first, second)
	assert.Equal(t, second, third)
	assert.Equal(t, 1, handler.count("/v1/whoami"), "repeat Initialize must not re-check")
}

func TestCheckAuthPublishesToSubscribers(t *testing.T) {
	backend := &fakeBackend{authenticated: true, userID: "user-1"}
	orch, _, _ := newTestOrchestrator(t, backend)

	var got []authclient.AuthState
	unsubscribe := orch.Subscribe(func(s authclient.AuthState) {
		got = append(got, s)
	})
	defer unsubscribe()

	state := orch.CheckAuth(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, state, got[0])
	assert.Equal(t, "user-1", state.UserID)
	assert.True(t, state.SessionReady)
	assert.True(t, state.WhoamiOK)

	unsubscribe()
	orch.CheckAuth(context.Background())
	assert.Len(t, got, 1, "disposed subscriber must not fire")
}

func TestCheckAuthNeverThrowsNegativeSnapshot(t *testing.T) {
	cfg := authclient.DefaultConfig("http://127.0.0.1:1") // nothing listens here
	cfg.MaxRetries = 0
	client := authclient.NewClient(cfg)
	orch := authclient.NewOrchestrator(client, cfg)

	state := orch.CheckAuth(context.Background())
	assert.False(t, state.Authenticated)
	assert.False(t, state.SessionReady)
	assert.NotEmpty(t, state.Err)
}

func TestSessionReadyImpliesAuthenticated(t *testing.T) {
	backend := &fakeBackend{authenticated: false}
	orch, _, _ := newTestOrchestrator(t, backend)

	state := orch.CheckAuth(context.Background())
	assert.False(t, state.Authenticated)
	assert.False(t, state.SessionReady, "SessionReady must never hold without Authenticated")
}

func TestLoginBumpsEpochAndInvalidatesCache(t *testing.T) {
	backend := &fakeBackend{authenticated: false, userID: "user-1", refreshOK: true}
	orch, client, handler := newTestOrchestrator(t, backend)

	// Prime the cache pre-login.
	_, err := client.Get(context.Background(), "/v1/profile")
	require.NoError(t, err)
	cached, err := client.Get(context.Background(), "/v1/profile")
	require.NoError(t, err)
	assert.True(t, cached.FromCache)

	epochBefore := client.Epoch().Current()
	_, err = orch.Login(context.Background(), "admin@example.com", "secret", false)
	require.NoError(t, err)
	assert.Equal(t, epochBefore+1, client.Epoch().Current(), "login bumps the epoch exactly once")

	// Identical GET after login must miss the old namespace.
	after, err := client.Get(context.Background(), "/v1/profile")
	require.NoError(t, err)
	assert.False(t, after.FromCache, "pre-login cache entry served post-login")
	assert.Equal(t, 2, handler.count("/v1/profile"))
}

func TestBootstrapRefreshGuardIsOneTry(t *testing.T) {
	backend := &fakeBackend{authenticated: false, refreshOK: false}
	session := authclient.NewMemorySessionStore()
	orch, _, handler := newTestOrchestrator(t, backend, authclient.WithSessionStore(session))

	orch.Initialize(context.Background())
	assert.Equal(t, 1, handler.count("/v1/auth/refresh"), "first load gets one refresh attempt")

	// Simulate in-app re-initialization: Cleanup resets the orchestrator
	// but the session store survives, so the guard holds.
	orch.Cleanup()
	orch.Initialize(context.Background())
	assert.Equal(t, 1, handler.count("/v1/auth/refresh"), "guard blocks repeat automatic attempts")
}

func TestBootstrapRefreshGuardResetsWithNewSession(t *testing.T) {
	backend := &fakeBackend{authenticated: false, refreshOK: false}
	orch1, _, handler1 := newTestOrchestrator(t, backend)
	orch1.Initialize(context.Background())
	require.Equal(t, 1, handler1.count("/v1/auth/refresh"))

	// A genuine new page load means a fresh session store and a fresh
	// orchestrator; the guard allows exactly one more attempt.
	orch2, _, handler2 := newTestOrchestrator(t, backend)
	orch2.Initialize(context.Background())
	assert.Equal(t, 1, handler2.count("/v1/auth/refresh"))
}

func TestLogoutClearsTokensAndPublishes(t *testing.T) {
	backend := &fakeBackend{authenticated: true, userID: "user-1"}
	orch, client, _ := newTestOrchestrator(t, backend)

	require.NoError(t, client.TokenStore().SetTokens("access", "refresh"))

	var published []authclient.AuthState
	defer orch.Subscribe(func(s authclient.AuthState) {
		published = append(published, s)
	})()

	epochBefore := client.Epoch().Current()
	state := orch.Logout(context.Background())

	assert.False(t, state.Authenticated)
	assert.Equal(t, epochBefore+1, client.Epoch().Current())
	_, ok := client.TokenStore().AccessToken()
	assert.False(t, ok)
	require.NotEmpty(t, published)
	assert.False(t, published[len(published)-1].Authenticated)
}

func TestConcurrentCheckAuthSharesOneFlight(t *testing.T) {
	backend := &fakeBackend{authenticated: true, userID: "user-1", slowWhoami: 50 * time.Millisecond}
	orch, _, handler := newTestOrchestrator(t, backend)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orch.CheckAuth(context.Background())
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, handler.count("/v1/whoami"), 2,
		"concurrent CheckAuth callers must coalesce instead of fanning out")
}

func TestLoginCommandValidatesPayload(t *testing.T) {
	backend := &fakeBackend{authenticated: false}
	orch, _, handler := newTestOrchestrator(t, backend)
	cmd := authclient.NewLoginHandler(orch)

	err := cmd.Execute(context.Background(), authclient.LoginMessage{})
	require.Error(t, err)
	assert.Equal(t, 0, handler.count("/v1/auth/login"), "invalid payload must not hit the network")

	err = cmd.Execute(context.Background(), authclient.LoginMessage{
		Identifier: "admin@example.com",
		Password:   "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, handler.count("/v1/auth/login"))
	assert.True(t, orch.GetState().Authenticated)
}

func TestLogoutCommand(t *testing.T) {
	backend := &fakeBackend{authenticated: true, userID: "user-1"}
	orch, _, handler := newTestOrchestrator(t, backend)

	err := authclient.NewLogoutHandler(orch).Execute(context.Background(), authclient.LogoutMessage{Reason: "remote"})
	require.NoError(t, err)
	assert.Equal(t, 1, handler.count("/v1/auth/logout"))
	assert.False(t, orch.GetState().Authenticated)
}
