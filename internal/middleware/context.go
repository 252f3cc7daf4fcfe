package middleware

import (
	"context"

	"deliverytech-api/internal/model"
)

type contextKey string

const (
	identityContextKey  contextKey = "identity"
	authFaultContextKey contextKey = "auth_fault"
	requestIDContextKey contextKey = "request_id"
)

// IdentityFromContext returns the identity published by Authenticate. The
// value is a copy; callers cannot alter what later stages see.
// IdentityFromContext returns a private copy of the request identity.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok {
		return model.Identity{}, false
	}
	return identity.Clone(), true
}

// WithIdentity publishes identity unless one is already present.
func WithIdentity(ctx context.Context, identity model.Identity) context.Context {
	if _, exists := IdentityFromContext(ctx); exists {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey, identity.Clone())
}

func withAuthFault(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, authFaultContextKey, err)
}

// AuthFaultFromContext reports an unexpected failure recorded while
// authenticating the request, such as the user store being unreachable.
func AuthFaultFromContext(ctx context.Context) error {
	err, _ := ctx.Value(authFaultContextKey).(error)
	return err
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
