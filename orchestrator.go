package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

// refreshGuardKey is the session-scoped sentinel for the one-try page-load
// refresh guard. A fresh SessionStore resets it; in-app navigation does not.
const refreshGuardKey = "authclient:bootstrap_refresh_attempted"

// OrchestratorOption customizes Orchestrator construction.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger overrides the logger.
func WithOrchestratorLogger(logger Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOrchestratorActivitySink sets the sink receiving auth lifecycle events.
func WithOrchestratorActivitySink(sink ActivitySink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sink = normalizeActivitySink(sink)
	}
}

// WithSessionStore overrides the session-scoped store backing the one-try
// refresh guard.
func WithSessionStore(store SessionStore) OrchestratorOption {
	return func(o *Orchestrator) {
		if store != nil {
			o.session = store
		}
	}
}

// WithOrchestratorClock injects a custom clock (useful for tests).
func WithOrchestratorClock(clock func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if clock != nil {
			o.now = clock
		}
	}
}

// Orchestrator is the single source of truth for authentication state and
// the only permitted caller of the identity-check endpoint. It owns epoch
// bumping: every login, logout, and refresh advances the epoch before the
// corresponding AuthState is published.
type Orchestrator struct {
	client  *Client
	cfg     Config
	tokens  TokenStore
	session SessionStore
	logger  Logger
	sink    ActivitySink
	now     func() time.Time

	mu          sync.RWMutex
	state       AuthState
	subscribers map[string]func(AuthState)
	initialized bool

	flight singleflight.Group
}

var _ StateReader = (*Orchestrator)(nil)
var _ Refresher = (*Orchestrator)(nil)

// NewOrchestrator builds an Orchestrator on top of client and registers
// itself as the client's Refresher.
func NewOrchestrator(client *Client, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		cfg:         cfg,
		tokens:      client.TokenStore(),
		session:     NewMemorySessionStore(),
		logger:      defLogger{},
		sink:        noopActivitySink{},
		now:         time.Now,
		subscribers: map[string]func(AuthState){},
	}
	o.state = newAuthState(false, false, "", SourceMissing, false, "", time.Time{})

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	client.SetRefresher(o)

	return o
}

// Initialize performs exactly one identity check on first call and is a
// no-op afterwards, so any number of mounting consumers can call it safely.
func (o *Orchestrator) Initialize(ctx context.Context) AuthState {
	o.mu.Lock()
	if o.initialized {
		state := o.state
		o.mu.Unlock()
		return state
	}
	o.initialized = true
	o.mu.Unlock()

	state := o.CheckAuth(ctx)

	// A 401 on first load gets a single bootstrap refresh attempt; the
	// session-scoped sentinel stops repeated attempts from turning a dead
	// refresh token into a request loop.
	if !state.Authenticated && o.guardAllowsBootstrapRefresh() {
		if err := o.Refresh(ctx); err != nil {
			o.logger.Info("bootstrap refresh failed: %v", err)
			return state
		}
		state = o.CheckAuth(ctx)
	}

	return state
}

// CheckAuth forces a fresh identity check and publishes the outcome.
// Concurrent callers share a single outstanding check. Failures never
// propagate to subscribers; they publish a negative snapshot instead.
func (o *Orchestrator) CheckAuth(ctx context.Context) AuthState {
	result, _, _ := o.flight.Do("whoami", func() (any, error) {
		return o.checkAuth(ctx), nil
	})
	return result.(AuthState)
}

func (o *Orchestrator) checkAuth(ctx context.Context) AuthState {
	resp, err := o.client.Do(ctx, &Request{
		Method:        http.MethodGet,
		Path:          o.cfg.GetIdentityPath(),
		identityCheck: true,
	})

	var state AuthState
	switch {
	case err != nil:
		state = newAuthState(false, false, "", SourceMissing, false, err.Error(), o.now())
	case resp.StatusCode == http.StatusUnauthorized:
		state = newAuthState(false, false, "", SourceMissing, true, "", o.now())
	case !resp.OK():
		state = newAuthState(false, false, "", SourceMissing, false,
			fmt.Sprintf("identity check returned status %d", resp.StatusCode), o.now())
	default:
		var payload whoamiResponse
		if jerr := json.Unmarshal(resp.Body, &payload); jerr != nil {
			state = newAuthState(false, false, "", SourceMissing, false,
				"could not decode identity response: "+jerr.Error(), o.now())
		} else {
			state = newAuthState(
				payload.IsAuthenticated,
				payload.SessionReady,
				payload.UserID,
				payload.credentialSource(),
				true,
				"",
				o.now(),
			)
		}
	}

	o.record(ctx, ActivityEvent{
		EventType: ActivityEventIdentityCheck,
		UserID:    state.UserID,
		Epoch:     o.client.Epoch().Current(),
	})

	o.publish(state)
	return state
}

// GetState returns the last published snapshot without network I/O.
func (o *Orchestrator) GetState() AuthState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Subscribe registers fn for every state publish and returns its disposer.
func (o *Orchestrator) Subscribe(fn func(AuthState)) func() {
	if fn == nil {
		return func() {}
	}

	id := newContextID()
	o.mu.Lock()
	o.subscribers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

// Cleanup drops all subscribers. Safe to call multiple times.
func (o *Orchestrator) Cleanup() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = map[string]func(AuthState){}
	o.initialized = false
}

// Login authenticates against the backend, stores the credential pair in
// header mode, bumps the epoch, and publishes the post-login state.
func (o *Orchestrator) Login(ctx context.Context, identifier, password string, extended bool) (AuthState, error) {
	body, err := json.Marshal(loginRequest{
		Identifier:      identifier,
		Password:        password,
		ExtendedSession: extended,
	})
	if err != nil {
		return o.GetState(), goerrors.Wrap(err, goerrors.CategoryInternal, "could not encode login payload")
	}

	resp, err := o.client.Do(ctx, &Request{
		Method:   http.MethodPost,
		Path:     o.cfg.GetLoginPath(),
		Body:     body,
		SkipAuth: true,
	})
	if err != nil {
		o.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"identifier": identifier, "error": err.Error()},
		})
		return o.GetState(), err
	}

	if !resp.OK() {
		o.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"identifier": identifier, "status": resp.StatusCode},
		})
		return o.GetState(), goerrors.New("login rejected", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}

	if o.cfg.GetCredentialMode() == ModeHeader {
		var pair tokenPairResponse
		if jerr := json.Unmarshal(resp.Body, &pair); jerr != nil {
			return o.GetState(), goerrors.Wrap(jerr, goerrors.CategoryInternal, "could not decode token response")
		}
		if serr := o.tokens.SetTokens(pair.AccessToken, pair.RefreshToken); serr != nil {
			return o.GetState(), serr
		}
	}

	o.bumpEpoch(ctx, "login")

	o.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Epoch:     o.client.Epoch().Current(),
		Metadata:  map[string]any{"identifier": identifier},
	})

	return o.CheckAuth(ctx), nil
}

// Logout tells the backend best-effort, always clears local credentials,
// bumps the epoch, and publishes the signed-out state.
func (o *Orchestrator) Logout(ctx context.Context) AuthState {
	// SkipAuth keeps a stale session from triggering the 401 refresh path
	// mid-logout; the bearer is attached by hand in header mode.
	req := &Request{
		Method:   http.MethodPost,
		Path:     o.cfg.GetLogoutPath(),
		SkipAuth: true,
	}
	if o.cfg.GetCredentialMode() == ModeHeader {
		if token, ok := o.tokens.AccessToken(); ok {
			req.Header = http.Header{"Authorization": []string{"Bearer " + token}}
		}
	}
	if _, err := o.client.Do(ctx, req); err != nil {
		o.logger.Warn("server logout failed, clearing local state anyway: %v", err)
	}

	if err := o.tokens.Clear(); err != nil {
		o.logger.Error("token store clear failed: %v", err)
	}

	o.bumpEpoch(ctx, "logout")

	o.record(ctx, ActivityEvent{EventType: ActivityEventLogout, Epoch: o.client.Epoch().Current()})

	state := newAuthState(false, false, "", SourceMissing, false, "", o.now())
	o.publish(state)
	return state
}

// Refresh satisfies the Refresher interface: it exchanges the stored
// refresh token for a new pair and bumps the epoch on success. The Client
// calls it at most once per 401.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	var body []byte
	if o.cfg.GetCredentialMode() == ModeHeader {
		refresh, ok := o.tokens.RefreshToken()
		if !ok {
			return ErrNoCredentials
		}
		encoded, err := json.Marshal(refreshRequest{RefreshToken: refresh})
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not encode refresh payload")
		}
		body = encoded
	}

	resp, err := o.client.Do(ctx, &Request{
		Method:   http.MethodPost,
		Path:     o.cfg.GetRefreshPath(),
		Body:     body,
		SkipAuth: true,
	})
	if err != nil {
		return goerrors.Wrap(err, ErrRefreshFailed.Category, ErrRefreshFailed.Message).
			WithTextCode(ErrRefreshFailed.TextCode)
	}
	if !resp.OK() {
		return withMetadata(ErrRefreshFailed, map[string]any{"status": resp.StatusCode})
	}

	if o.cfg.GetCredentialMode() == ModeHeader {
		var pair tokenPairResponse
		if jerr := json.Unmarshal(resp.Body, &pair); jerr != nil {
			return goerrors.Wrap(jerr, goerrors.CategoryInternal, "could not decode refresh response")
		}
		if serr := o.tokens.SetTokens(pair.AccessToken, pair.RefreshToken); serr != nil {
			return serr
		}
	}

	o.bumpEpoch(ctx, "refresh")
	return nil
}

// guardAllowsBootstrapRefresh consumes the one-try sentinel. The first call
// per session store returns true; every later call returns false.
func (o *Orchestrator) guardAllowsBootstrapRefresh() bool {
	if _, attempted := o.session.Get(refreshGuardKey); attempted {
		return false
	}
	if err := o.session.Set(refreshGuardKey, o.now().Format(time.RFC3339)); err != nil {
		o.logger.Warn("could not persist refresh guard sentinel: %v", err)
	}
	return true
}

// bumpEpoch advances the generation synchronously, before any state publish
// for the same event, so no reader can observe a post-auth state paired
// with a pre-auth epoch.
func (o *Orchestrator) bumpEpoch(ctx context.Context, reason string) {
	next := o.client.BumpEpoch()
	o.record(ctx, ActivityEvent{
		EventType: ActivityEventEpochBump,
		Epoch:     next,
		Metadata:  map[string]any{"reason": reason},
	})
}

func (o *Orchestrator) publish(state AuthState) {
	o.mu.Lock()
	o.state = state
	listeners := make([]func(AuthState), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func (o *Orchestrator) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = o.now()
	}
	if err := normalizeActivitySink(o.sink).Record(ctx, event); err != nil {
		o.logger.Warn("orchestrator activity sink error: %v", err)
	}
}

type whoamiResponse struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	SessionReady    bool   `json:"session_ready"`
	UserID          string `json:"user_id"`
	Source          string `json:"source"`
	Version         string `json:"version"`
}

func (w whoamiResponse) credentialSource() CredentialSource {
	switch w.Source {
	case string(SourceCookie):
		return SourceCookie
	case string(SourceHeader):
		return SourceHeader
	default:
		return SourceMissing
	}
}

type loginRequest struct {
	Identifier      string `json:"identifier"`
	Password        string `json:"password"`
	ExtendedSession bool   `json:"extended_session,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
