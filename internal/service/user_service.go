package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"deliverytech-api/internal/event"
	"deliverytech-api/internal/model"
	"deliverytech-api/pkg/apierror"
)

const minPasswordLength = 8

// UserService holds the administrative operations on accounts.
type UserService struct {
	users   UserStore
	hasher  PasswordHasher
	refresh *RefreshTokenService
	bus     event.Bus
}

func NewUserService(users UserStore, hasher PasswordHasher, refresh *RefreshTokenService, bus event.Bus) *UserService {
	return &UserService{users: users, hasher: hasher, refresh: refresh, bus: bus}
}

func (s *UserService) List(ctx context.Context) (model.AuthUserList, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return model.AuthUserList{}, err
	}

	out := make([]model.AuthUser, 0, len(users))
	for _, u := range users {
		out = append(out, model.NewAuthUser(u))
	}
	return model.AuthUserList{Users: out}, nil
}

func (s *UserService) Create(ctx context.Context, req model.CreateUserRequest, actor model.AuditActor) (model.AuthUser, error) {
	email := strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return model.AuthUser{}, apierror.BadRequest("invalid email", email)
	}
	if len(req.Password) < minPasswordLength {
		return model.AuthUser{}, apierror.BadRequest(fmt.Sprintf("password must have at least %d characters", minPasswordLength), "")
	}
	if !req.Role.Valid() {
		return model.AuthUser{}, apierror.BadRequest("invalid role", string(req.Role))
	}
	if req.Role == model.RoleRestaurante && req.RestaurantID == nil {
		return model.AuthUser{}, apierror.BadRequest("restaurant_id is required for RESTAURANTE", "restaurant_id")
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return model.AuthUser{}, err
	}
	if exists {
		return model.AuthUser{}, apierror.New(apierror.CodeConflict, "email already registered", email, http.StatusConflict)
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.AuthUser{}, err
	}

	created, err := s.users.Create(ctx, model.User{
		Email:        email,
		PasswordHash: digest,
		Role:         req.Role,
		Active:       true,
		RestaurantID: req.RestaurantID,
	})
	if errors.Is(err, model.ErrUserAlreadyExists) {
		return model.AuthUser{}, apierror.New(apierror.CodeConflict, "email already registered", email, http.StatusConflict)
	}
	if err != nil {
		return model.AuthUser{}, err
	}

	publishEvent(s.bus, event.TypeUserCreated, actor, userResource(created.ID), map[string]any{
		"email": created.Email,
		"role":  created.Role,
	}, "")
	return model.NewAuthUser(created), nil
}

// SetActive flips the active flag. Deactivation also revokes every refresh
// token; outstanding access tokens stop resolving on their next request.
func (s *UserService) SetActive(ctx context.Context, id int64, active bool, actor model.AuditActor) (model.AuthUser, error) {
	user, err := s.users.SetActive(ctx, id, active)
	if err != nil {
		return model.AuthUser{}, err
	}

	var revoked int64
	if !active {
		revoked, err = s.refresh.RevokeAll(ctx, id)
		if err != nil {
			return model.AuthUser{}, err
		}
	}

	publishEvent(s.bus, event.TypeUserStatusChanged, actor, userResource(id), map[string]any{
		"active":  active,
		"revoked": revoked,
	}, "")
	return model.NewAuthUser(user), nil
}

func (s *UserService) RevokeSessions(ctx context.Context, id int64, actor model.AuditActor) (int64, error) {
	if _, err := s.users.FindByID(ctx, id); err != nil {
		return 0, err
	}

	n, err := s.refresh.RevokeAll(ctx, id)
	if err != nil {
		return 0, err
	}

	publishEvent(s.bus, event.TypeSessionsRevoked, actor, userResource(id), map[string]any{"revoked": n}, "")
	return n, nil
}

// EnsureAdmin creates the bootstrap administrator when it does not exist.
// An empty password disables the bootstrap.
func (s *UserService) EnsureAdmin(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		slog.Info("admin bootstrap skipped, ADMIN_EMAIL or ADMIN_PASSWORD not set")
		return nil
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check bootstrap admin: %w", err)
	}
	if exists {
		return nil
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	created, err := s.users.Create(ctx, model.User{
		Email:        email,
		PasswordHash: digest,
		Role:         model.RoleAdmin,
		Active:       true,
	})
	if errors.Is(err, model.ErrUserAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	slog.Info("bootstrap admin created", "user", created)
	return nil
}

func userResource(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}
