package authclient

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type LoginMessage struct {
	Identifier      string `json:"identifier"`
	Password        string `json:"password"`
	ExtendedSession bool   `json:"extended_session"`
}

func (e LoginMessage) Type() string { return "authclient.login" }

// Validate rejects empty credentials before a network call is spent.
func (e LoginMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Identifier, validation.Required),
		validation.Field(&e.Password, validation.Required),
	)
}

// LoginHandler drives the login flow through the Orchestrator so the
// epoch bump and state publish stay in one place.
type LoginHandler struct {
	orchestrator *Orchestrator
}

// NewLoginHandler returns a handler bound to orchestrator.
func NewLoginHandler(orchestrator *Orchestrator) *LoginHandler {
	return &LoginHandler{orchestrator: orchestrator}
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during login",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload")
	}

	if _, err := h.orchestrator.Login(ctx, event.Identifier, event.Password, event.ExtendedSession); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryAuth, "login failed")
	}

	return nil
}
