package authclient

import "context"

var stateCtxKey = &contextKey{"auth_state"}

type contextKey struct {
	name string
}

// WithState sets the AuthState snapshot in the given context
func WithState(ctx context.Context, state AuthState) context.Context {
	return context.WithValue(ctx, stateCtxKey, state)
}

// StateFromContext finds the AuthState snapshot from the context.
func StateFromContext(ctx context.Context) (AuthState, bool) {
	raw, ok := ctx.Value(stateCtxKey).(AuthState)
	return raw, ok
}
