package handler

import (
	"context"
	"net/http"

	"deliverytech-api/internal/model"
)

type HealthChecker interface {
	Health(ctx context.Context) error
}

type DebugHandler struct {
	db HealthChecker
}

func NewDebugHandler(db HealthChecker) *DebugHandler {
	return &DebugHandler{db: db}
}

func (h *DebugHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "ok"}

	if h.db != nil {
		if err := h.db.Health(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			writeSuccess(w, http.StatusServiceUnavailable, status, nil)
			return
		}
	}

	writeSuccess(w, http.StatusOK, status, nil)
}

type whoAmIResponse struct {
	Authenticated bool            `json:"authenticated"`
	Identity      *model.Identity `json:"identity,omitempty"`
	Authorities   []string        `json:"authorities"`
}

// WhoAmI reports the identity the request resolved to, or anonymous.
func (h *DebugHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(r)
	if !ok {
		writeSuccess(w, http.StatusOK, whoAmIResponse{Authorities: []string{"ROLE_ANONYMOUS"}}, nil)
		return
	}

	writeSuccess(w, http.StatusOK, whoAmIResponse{
		Authenticated: true,
		Identity:      identity,
		Authorities:   identity.Authorities(),
	}, nil)
}
