package authclient

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeGuardViolation = "IDENTITY_GUARD_VIOLATION"
	textCodeRefreshFailed  = "TOKEN_REFRESH_FAILED"
	textCodeRetryExhausted = "RETRY_BUDGET_EXHAUSTED"
	textCodeTokenExpired   = "TOKEN_EXPIRED"
	textCodeTokenMalformed = "TOKEN_MALFORMED"
	textCodeNoCredentials  = "NO_CREDENTIALS"
)

// ErrGuardViolation is returned when a call site other than the Orchestrator
// tries to reach the identity-check endpoint through the Client.
var ErrGuardViolation = goerrors.New("identity check must go through the orchestrator", goerrors.CategoryOperation).
	WithTextCode(textCodeGuardViolation).
	WithCode(goerrors.CodeBadRequest)

// ErrRefreshFailed is returned when the single post-401 refresh attempt
// fails; local credentials have been cleared by the time callers see it.
var ErrRefreshFailed = goerrors.New("token refresh failed", goerrors.CategoryAuth).
	WithTextCode(textCodeRefreshFailed).
	WithCode(goerrors.CodeUnauthorized)

// ErrRetryExhausted is returned when a transient failure outlives the
// bounded backoff budget.
var ErrRetryExhausted = goerrors.New("retries exhausted for transient failure", goerrors.CategoryOperation).
	WithTextCode(textCodeRetryExhausted).
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired is the error for expired access tokens.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is the error for tokens we cannot parse.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryValidation).
	WithTextCode(textCodeTokenMalformed).
	WithCode(goerrors.CodeBadRequest)

// ErrNoCredentials is returned when header mode is configured but the token
// store holds no access token.
var ErrNoCredentials = goerrors.New("no credentials available", goerrors.CategoryAuth).
	WithTextCode(textCodeNoCredentials).
	WithCode(goerrors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, textCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, textCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsGuardViolation reports whether err carries the identity-guard text code.
func IsGuardViolation(err error) bool {
	return hasTextCode(err, textCodeGuardViolation)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// withMetadata attaches metadata to a copy of a shared sentinel. Attaching
// to the sentinel itself would mean concurrent error paths writing into one
// global map, and fields leaking between unrelated failures.
func withMetadata(sentinel *goerrors.Error, metadata map[string]any) error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	return clone.WithMetadata(metadata)
}
