package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"deliverytech-api/internal/metrics"
	"deliverytech-api/internal/model"
	"deliverytech-api/internal/service"
)

const bearerScheme = "bearer"

type tokenVerifier interface {
	ParseAndVerify(raw string) (*service.AccessClaims, error)
}

type identityResolver interface {
	Resolve(ctx context.Context, email string) (model.Identity, error)
}

type AuthMiddleware struct {
	verifier tokenVerifier
	resolver identityResolver
	metrics  *metrics.Metrics
}

func NewAuthMiddleware(verifier tokenVerifier, resolver identityResolver, m *metrics.Metrics) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, resolver: resolver, metrics: m}
}

// Authenticate publishes the request identity when the bearer token is
// valid and its user is active. It never writes a response: every failure
// leaves the request anonymous and the policy decides.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(m.authenticate(r)))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (ctx context.Context) {
	ctx = r.Context()
	log := slog.With("request_id", RequestIDFromContext(ctx), "path", r.URL.Path)

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error("authentication panicked", "error", fmt.Sprintf("%v", recovered))
			m.metrics.AuthOutcome(metrics.OutcomeFault)
			ctx = withAuthFault(r.Context(), fmt.Errorf("authentication panic: %v", recovered))
		}
	}()

	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		m.metrics.AuthOutcome(metrics.OutcomeAnonymous)
		return ctx
	}

	claims, err := m.verifier.ParseAndVerify(raw)
	if err != nil {
		log.Debug("bearer token rejected", "reason", authErrorKind(err))
		m.metrics.AuthOutcome(metrics.OutcomeTokenRejected)
		return ctx
	}

	identity, err := m.resolver.Resolve(ctx, claims.Subject)
	if err != nil {
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			log.Warn("token subject rejected", "reason", authErr.Kind.String(), "user_id", claims.UserID)
			m.metrics.AuthOutcome(metrics.OutcomeUserRejected)
			return ctx
		}

		log.Error("identity resolution failed", "error", err)
		m.metrics.AuthOutcome(metrics.OutcomeFault)
		return withAuthFault(ctx, err)
	}

	m.metrics.AuthOutcome(metrics.OutcomeAuthenticated)
	return WithIdentity(ctx, identity)
}

// bearerToken extracts the token from an Authorization header. The scheme
// is case-insensitive; a blank token counts as no token.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func authErrorKind(err error) string {
	var authErr *model.AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind.String()
	}
	return "unknown"
}
