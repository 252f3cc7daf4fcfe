package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"deliverytech-api/internal/event"
	"deliverytech-api/internal/model"
	"deliverytech-api/pkg/apierror"
)

const tokenTypeBearer = "Bearer"

type UserStore interface {
	UserFinder
	FindByID(ctx context.Context, id int64) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	SetActive(ctx context.Context, id int64, active bool) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
}

// errInvalidCredentials is the single answer for unknown email, wrong
// password and inactive account.
func errInvalidCredentials() *apierror.APIError {
	return apierror.New(apierror.CodeInvalidCredentials, "invalid email or password", "", http.StatusUnauthorized)
}

type AuthService struct {
	users   UserStore
	hasher  PasswordHasher
	codec   *TokenCodec
	refresh *RefreshTokenService
	bus     event.Bus
}

func NewAuthService(users UserStore, hasher PasswordHasher, codec *TokenCodec, refresh *RefreshTokenService, bus event.Bus) *AuthService {
	return &AuthService{
		users:   users,
		hasher:  hasher,
		codec:   codec,
		refresh: refresh,
		bus:     bus,
	}
}

func (s *AuthService) Login(ctx context.Context, req model.LoginRequest, actor model.AuditActor) (model.LoginResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return model.LoginResult{}, apierror.BadRequest("email and password are required", "")
	}
	actor.Email = email

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.hasher.Verify(req.Password, dummyDigest)
		s.publishFailure(event.TypeLoginFailed, actor, "unknown email")
		return model.LoginResult{}, errInvalidCredentials()
	}
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("login: %w", err)
	}

	actor.UserID = strconv.FormatInt(user.ID, 10)
	actor.Role = string(user.Role)

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.publishFailure(event.TypeLoginFailed, actor, "wrong password")
		return model.LoginResult{}, errInvalidCredentials()
	}
	if !user.Active {
		s.publishFailure(event.TypeLoginFailed, actor, "inactive account")
		return model.LoginResult{}, errInvalidCredentials()
	}

	accessToken, err := s.codec.IssueFor(user)
	if err != nil {
		return model.LoginResult{}, err
	}

	refreshToken, err := s.refresh.Create(ctx, user.ID)
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("login: %w", err)
	}

	slog.Info("login succeeded", "user", user)
	s.publish(event.TypeLoginSucceeded, actor, "", nil)

	result := newLoginResult(user, accessToken)
	result.RefreshToken = refreshToken.Token
	return result, nil
}

// Refresh mints a new access token from a refresh token. The refresh token
// itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, value string, actor model.AuditActor) (model.LoginResult, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.LoginResult{}, apierror.BadRequest("refresh_token is required", "refresh_token")
	}

	token, err := s.refresh.Redeem(ctx, value)
	if err != nil {
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			eventType := event.TypeRefreshRejected
			if authErr.Kind == model.KindRefreshExpired {
				eventType = event.TypeRefreshExpired
			}
			s.publishFailure(eventType, actor, authErr.Kind.String())
		}
		return model.LoginResult{}, err
	}

	user, err := s.users.FindByID(ctx, token.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.LoginResult{}, errInvalidCredentials()
	}
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("refresh: %w", err)
	}

	actor.UserID = strconv.FormatInt(user.ID, 10)
	actor.Email = user.Email
	actor.Role = string(user.Role)

	if !user.Active {
		s.publishFailure(event.TypeRefreshRejected, actor, "inactive account")
		return model.LoginResult{}, errInvalidCredentials()
	}

	accessToken, err := s.codec.IssueFor(user)
	if err != nil {
		return model.LoginResult{}, err
	}

	s.publish(event.TypeTokenRefreshed, actor, "", nil)
	return newLoginResult(user, accessToken), nil
}

// Logout revokes one refresh token when given, otherwise every refresh token
// of the authenticated identity. A token owned by someone else is reported
// as not found.
func (s *AuthService) Logout(ctx context.Context, identity *model.Identity, refreshToken string, actor model.AuditActor) (int64, error) {
	refreshToken = strings.TrimSpace(refreshToken)

	if refreshToken != "" {
		if identity != nil {
			token, err := s.refresh.Find(ctx, refreshToken)
			if err != nil {
				return 0, err
			}
			if token.UserID != identity.UserID {
				return 0, model.NewAuthError(model.KindRefreshNotFound, model.ErrTokenNotFound)
			}
		}
		if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
			return 0, err
		}
		s.publish(event.TypeLogout, actor, "", map[string]any{"revoked": 1})
		return 1, nil
	}

	if identity == nil {
		return 0, apierror.BadRequest("refresh_token is required", "refresh_token")
	}

	n, err := s.refresh.RevokeAll(ctx, identity.UserID)
	if err != nil {
		return 0, err
	}
	s.publish(event.TypeLogout, actor, "", map[string]any{"revoked": n})
	return n, nil
}

func newLoginResult(user model.User, accessToken string) model.LoginResult {
	return model.LoginResult{
		AccessToken:  accessToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
		Role:         user.Role,
		UserID:       user.ID,
		RestaurantID: user.RestaurantID,
	}
}

func (s *AuthService) publish(t event.Type, actor model.AuditActor, resource string, payload any) {
	publishEvent(s.bus, t, actor, resource, payload, "")
}

func (s *AuthService) publishFailure(t event.Type, actor model.AuditActor, reason string) {
	publishEvent(s.bus, t, actor, "", nil, reason)
}

func publishEvent(bus event.Bus, t event.Type, actor model.AuditActor, resource string, payload any, failure string) {
	if bus == nil {
		return
	}
	bus.Publish(event.Event{
		Type:       t,
		Payload:    payload,
		ActorID:    actor.UserID,
		ActorEmail: actor.Email,
		ActorRole:  actor.Role,
		ClientIP:   actor.IP,
		Resource:   resource,
		Failed:     failure != "",
		Error:      failure,
	})
}
