package authclient_test

import (
	"context"
	"testing"

	authclient "github.com/goliatone/go-authclient"
	"github.com/stretchr/testify/assert"
)

func TestAuthStateString(t *testing.T) {
	state := authclient.AuthState{
		Authenticated: true,
		SessionReady:  true,
		UserID:        "user-1",
		Source:        authclient.SourceCookie,
		WhoamiOK:      true,
	}

	rep := state.String()
	assert.Contains(t, rep, "user-1")
	assert.Contains(t, rep, "cookie")
	assert.True(t, state.IsAuthenticated())
	assert.True(t, state.Ready())
}

func TestStateContextRoundTrip(t *testing.T) {
	state := authclient.AuthState{Authenticated: true, UserID: "user-1"}

	ctx := authclient.WithState(context.Background(), state)
	got, ok := authclient.StateFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, state, got)

	_, ok = authclient.StateFromContext(context.Background())
	assert.False(t, ok)
}

func TestTokenStoreLifecycle(t *testing.T) {
	store := authclient.NewMemoryTokenStore()

	_, ok := store.AccessToken()
	assert.False(t, ok)

	assert.NoError(t, store.SetTokens("access", "refresh"))
	access, ok := store.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "access", access)
	refresh, ok := store.RefreshToken()
	assert.True(t, ok)
	assert.Equal(t, "refresh", refresh)

	assert.NoError(t, store.Clear())
	_, ok = store.AccessToken()
	assert.False(t, ok)
	_, ok = store.RefreshToken()
	assert.False(t, ok)
}
