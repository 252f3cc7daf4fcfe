package handler

import (
	"net/http"
	"strconv"

	"deliverytech-api/internal/middleware"
	"deliverytech-api/internal/model"
)

func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{IP: middleware.ClientIP(r)}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return actor
	}

	actor.UserID = strconv.FormatInt(identity.UserID, 10)
	actor.Email = identity.Email
	actor.Role = string(identity.Role)

	return actor
}

func identityFromRequest(r *http.Request) (*model.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return &identity, true
}
