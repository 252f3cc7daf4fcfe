package middleware

import (
	"log/slog"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"deliverytech-api/internal/metrics"
	"deliverytech-api/internal/model"
	"deliverytech-api/pkg/apierror"
)

type requirementKind int

const (
	requirePublic requirementKind = iota
	requireAuthenticated
	requireRoles
)

// Requirement is what a route demands of the request identity.
type Requirement struct {
	kind  requirementKind
	roles []model.Role
}

func Public() Requirement {
	return Requirement{kind: requirePublic}
}

func Authenticated() Requirement {
	return Requirement{kind: requireAuthenticated}
}

func Roles(roles ...model.Role) Requirement {
	return Requirement{kind: requireRoles, roles: roles}
}

func (r Requirement) IsPublic() bool {
	return r.kind == requirePublic
}

func (r Requirement) String() string {
	switch r.kind {
	case requirePublic:
		return "public"
	case requireAuthenticated:
		return "authenticated"
	default:
		names := make([]string, 0, len(r.roles))
		for _, role := range r.roles {
			names = append(names, string(role))
		}
		return "roles(" + strings.Join(names, ",") + ")"
	}
}

// Rule binds a path pattern, optionally restricted to some methods, to a
// requirement. A pattern is either an exact path or "prefix/**", which
// matches the prefix itself and everything below it.
type Rule struct {
	Methods     []string
	Pattern     string
	Requirement Requirement
}

func (r Rule) matches(method string, p string) bool {
	if len(r.Methods) > 0 && !slices.Contains(r.Methods, method) {
		return false
	}

	if prefix, ok := strings.CutSuffix(r.Pattern, "/**"); ok {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	return p == r.Pattern
}

// DefaultRules is the route table of the API, evaluated first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/api/v1/auth/**", Requirement: Public()},
		{Pattern: "/api/v1/admin/**", Requirement: Roles(model.RoleAdmin)},
		{Methods: []string{http.MethodGet, http.MethodHead}, Pattern: "/api/v1/products/**", Requirement: Public()},
		{Pattern: "/api/v1/orders/**", Requirement: Roles(model.RoleCliente, model.RoleRestaurante, model.RoleEntregador)},
		{Pattern: "/api/v1/deliveries/**", Requirement: Authenticated()},
		{Pattern: "/api/v1/restaurants/**", Requirement: Authenticated()},
		{Pattern: "/health", Requirement: Public()},
		{Pattern: "/metrics", Requirement: Public()},
		{Pattern: "/api/v1/debug/**", Requirement: Public()},
	}
}

// Policy gates every request before routing. Unmatched paths fall back to
// the fallback requirement.
type Policy struct {
	rules    []Rule
	fallback Requirement
	metrics  *metrics.Metrics
}

func NewPolicy(rules []Rule, fallback Requirement, m *metrics.Metrics) *Policy {
	return &Policy{rules: rules, fallback: fallback, metrics: m}
}

func DefaultPolicy(m *metrics.Metrics) *Policy {
	return NewPolicy(DefaultRules(), Authenticated(), m)
}

func (p *Policy) RequirementFor(method string, rawPath string) Requirement {
	cleaned := cleanPath(rawPath)
	for _, rule := range p.rules {
		if rule.matches(method, cleaned) {
			return rule.Requirement
		}
	}
	return p.fallback
}

// Decide returns nil to allow, or the error to answer with. A missing
// identity is always 401 (503 after an authentication fault), so the role
// check only runs for authenticated requests.
func Decide(req Requirement, identity *model.Identity, fault error) *apierror.APIError {
	if req.kind == requirePublic {
		return nil
	}

	if identity == nil {
		if fault != nil {
			return apierror.New(apierror.CodeUnavailable, "authentication temporarily unavailable", "", http.StatusServiceUnavailable)
		}
		return apierror.Unauthorized()
	}

	if req.kind == requireRoles && !identity.HasRole(req.roles...) {
		return apierror.Forbidden()
	}
	return nil
}

func (p *Policy) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := routingPath(r)
		req := p.RequirementFor(r.Method, target)

		var identity *model.Identity
		if id, ok := IdentityFromContext(r.Context()); ok {
			identity = &id
		}

		apiErr := Decide(req, identity, AuthFaultFromContext(r.Context()))
		if apiErr == nil {
			p.metrics.PolicyDecision(metrics.DecisionAllow)
			next.ServeHTTP(w, r)
			return
		}

		p.metrics.PolicyDecision(decisionLabel(apiErr.HTTPStatus))
		attrs := []any{
			"request_id", RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", target,
			"requirement", req.String(),
			"status", apiErr.HTTPStatus,
		}
		if identity != nil {
			attrs = append(attrs, "user_id", identity.UserID, "role", string(identity.Role))
		}
		slog.Debug("request denied by policy", attrs...)

		if apiErr.HTTPStatus == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", `Bearer realm="deliverytech"`)
		}
		writeAPIError(w, apiErr)
	})
}

func decisionLabel(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return metrics.DecisionUnauthorized
	case http.StatusForbidden:
		return metrics.DecisionForbidden
	default:
		return metrics.DecisionUnavailable
	}
}

// routingPath is the path chi dispatches on: the route path set by
// CleanPath, else the escaped form when the URL carries one. Rules are
// always matched against it, never against the decoded r.URL.Path.
func routingPath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath != "" {
		return rctx.RoutePath
	}
	if r.URL.RawPath != "" {
		return r.URL.RawPath
	}
	return r.URL.Path
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
