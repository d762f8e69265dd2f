package authclient

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

type LogoutMessage struct {
	Reason string `json:"reason,omitempty"`
}

func (e LogoutMessage) Type() string { return "authclient.logout" }

// LogoutHandler clears the session through the Orchestrator. Local
// credentials are dropped even when the server round trip fails.
type LogoutHandler struct {
	orchestrator *Orchestrator
}

// NewLogoutHandler returns a handler bound to orchestrator.
func NewLogoutHandler(orchestrator *Orchestrator) *LogoutHandler {
	return &LogoutHandler{orchestrator: orchestrator}
}

func (h *LogoutHandler) Execute(ctx context.Context, event LogoutMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during logout",
		)
	default:
		h.orchestrator.Logout(ctx)
		return nil
	}
}
