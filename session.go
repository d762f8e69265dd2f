package authclient

import (
	"fmt"
	"time"
)

// AuthState is the immutable snapshot the Orchestrator publishes to
// subscribers. Consumers read it; only the Orchestrator constructs it.
type AuthState struct {
	Authenticated bool             `json:"is_authenticated"`
	SessionReady  bool             `json:"session_ready"`
	UserID        string           `json:"user_id,omitempty"`
	Source        CredentialSource `json:"source"`
	WhoamiOK      bool             `json:"whoami_ok"`
	Err           string           `json:"error,omitempty"`
	LastChecked   time.Time        `json:"last_checked"`
}

// newAuthState normalizes the SessionReady implies Authenticated invariant
// at construction so no snapshot can ever violate it.
func newAuthState(authenticated, sessionReady bool, userID string, source CredentialSource, whoamiOK bool, errMsg string, at time.Time) AuthState {
	if !authenticated {
		sessionReady = false
	}
	if source == "" {
		source = SourceMissing
	}
	return AuthState{
		Authenticated: authenticated,
		SessionReady:  sessionReady,
		UserID:        userID,
		Source:        source,
		WhoamiOK:      whoamiOK,
		Err:           errMsg,
		LastChecked:   at,
	}
}

// IsAuthenticated reports whether the last identity check succeeded.
func (s AuthState) IsAuthenticated() bool {
	return s.Authenticated
}

// Ready reports whether a full session (token acquired and verified) is
// established. Ready implies IsAuthenticated.
func (s AuthState) Ready() bool {
	return s.SessionReady
}

func (s AuthState) String() string {
	return fmt.Sprintf(
		"authenticated=%t ready=%t user=%s source=%s whoami=%t err=%q checked=%s",
		s.Authenticated,
		s.SessionReady,
		s.UserID,
		s.Source,
		s.WhoamiOK,
		s.Err,
		s.LastChecked.Format(time.RFC1123),
	)
}
