package authclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialMode selects how credentials travel to the backend.
type CredentialMode string

const (
	// ModeCookie relies on the browser-style cookie jar; no Authorization
	// header is attached.
	ModeCookie CredentialMode = "cookie"
	// ModeHeader attaches "Authorization: Bearer <token>" from the token
	// store; the cookie jar is not consulted.
	ModeHeader CredentialMode = "header"
)

// CredentialSource identifies which channel produced an AuthState.
type CredentialSource string

const (
	SourceCookie  CredentialSource = "cookie"
	SourceHeader  CredentialSource = "header"
	SourceMissing CredentialSource = "missing"
)

// Config holds client options
type Config interface {
	GetBaseURL() string
	GetCredentialMode() CredentialMode
	GetIdentityPath() string
	GetLoginPath() string
	GetLogoutPath() string
	GetRefreshPath() string
	GetCacheTTL() time.Duration
	GetMaxRetries() int
	GetDeviceID() string
}

// Doer is the transport the Client wraps. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenStore persists the credential pair for header-mode transports.
// Implementations must be safe for concurrent use.
type TokenStore interface {
	AccessToken() (string, bool)
	RefreshToken() (string, bool)
	SetTokens(access, refresh string) error
	Clear() error
}

// SessionStore is an ephemeral per-session KV used for sentinels such as
// the one-try page-load refresh guard. A fresh store means a fresh session.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Refresher exchanges the stored refresh token for a new credential pair.
// The Orchestrator provides the canonical implementation; the Client calls
// it at most once per 401.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function into a Refresher.
type RefresherFunc func(ctx context.Context) error

// Refresh satisfies the Refresher interface.
func (f RefresherFunc) Refresh(ctx context.Context) error {
	if f == nil {
		return ErrRefreshFailed
	}
	return f(ctx)
}

// StateReader is the read-only view consumers get of the Orchestrator.
type StateReader interface {
	GetState() AuthState
	Subscribe(fn func(AuthState)) func()
}

// DefaultLogger returns the stdout fallback logger used when no Logger is
// configured.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHCLIENT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHCLIENT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func newContextID() string {
	return uuid.New().String()
}
