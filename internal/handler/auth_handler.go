package handler

import (
	"net/http"

	"deliverytech-api/internal/model"
	"deliverytech-api/internal/service"
	"deliverytech-api/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), payload, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Refresh(r.Context(), payload.RefreshToken, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

// Logout accepts an empty body when the caller is authenticated; all of the
// caller's sessions are revoked then.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeOptionalJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	identity, _ := identityFromRequest(r)
	revoked, err := h.service.Logout(r.Context(), identity, payload.RefreshToken, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]int64{"revoked": revoked}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(r)
	if !ok {
		writeError(w, apierror.Unauthorized())
		return
	}

	writeSuccess(w, http.StatusOK, model.MeResponse{
		Identity:    *identity,
		Authorities: identity.Authorities(),
	}, nil)
}
