package service

import (
	"context"
	"errors"
	"fmt"

	"deliverytech-api/internal/model"
)

type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
}

// IdentityResolver turns a verified token subject into the current identity
// of that user. It reads the store on every call; nothing is cached.
type IdentityResolver struct {
	users UserFinder
}

func NewIdentityResolver(users UserFinder) *IdentityResolver {
	return &IdentityResolver{users: users}
}

// Resolve fails with UnknownUser or InactiveUser. Store faults come back
// wrapped and are not auth errors.
func (r *IdentityResolver) Resolve(ctx context.Context, email string) (model.Identity, error) {
	user, err := r.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.Identity{}, model.NewAuthError(model.KindUnknownUser, err)
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	if !user.Active {
		return model.Identity{}, model.NewAuthError(model.KindInactiveUser, fmt.Errorf("user %d is inactive", user.ID))
	}

	return model.NewIdentity(user), nil
}
