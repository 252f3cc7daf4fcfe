package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"deliverytech-api/internal/model"
	"deliverytech-api/internal/service"
	"deliverytech-api/pkg/apierror"
)

type AdminHandler struct {
	service *service.UserService
}

func NewAdminHandler(service *service.UserService) *AdminHandler {
	return &AdminHandler{service: service}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, users, nil)
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateUserRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Create(r.Context(), payload, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, nil)
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "user id")
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.UpdateUserStatusRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.Active == nil {
		writeError(w, apierror.BadRequest("active is required", "active"))
		return
	}

	user, err := h.service.SetActive(r.Context(), id, *payload.Active, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *AdminHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "user id")
	if err != nil {
		writeError(w, err)
		return
	}

	revoked, err := h.service.RevokeSessions(r.Context(), id, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]int64{"revoked": revoked}, nil)
}
