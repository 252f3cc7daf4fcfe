package model

import (
	"log/slog"
	"time"
)

type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleCliente     Role = "CLIENTE"
	RoleRestaurante Role = "RESTAURANTE"
	RoleEntregador  Role = "ENTREGADOR"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCliente, RoleRestaurante, RoleEntregador:
		return true
	}
	return false
}

// Authority is the granted-authority name derived from the role.
func (r Role) Authority() string {
	return "ROLE_" + string(r)
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	RestaurantID *int64    `json:"restaurant_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LogValue keeps the password digest out of every log line.
func (u User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("id", u.ID),
		slog.String("email", u.Email),
		slog.String("role", string(u.Role)),
		slog.Bool("active", u.Active),
	)
}

// Identity is the authenticated principal of a single request. Copies made
// with Clone share no memory, so a holder cannot change what others see.
type Identity struct {
	UserID       int64  `json:"user_id"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	RestaurantID *int64 `json:"restaurant_id,omitempty"`
}

func NewIdentity(u User) Identity {
	return Identity{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		RestaurantID: u.RestaurantID,
	}.Clone()
}

func (i Identity) Clone() Identity {
	if i.RestaurantID != nil {
		id := *i.RestaurantID
		i.RestaurantID = &id
	}
	return i
}

func (i Identity) Authorities() []string {
	return []string{i.Role.Authority()}
}

func (i Identity) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if i.Role == role {
			return true
		}
	}
	return false
}

type RefreshToken struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiredAt reports whether the token is no longer usable at now.
// A token whose expiry equals now is already expired.
func (t RefreshToken) ExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

type AuthUser struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	Active       bool   `json:"active"`
	RestaurantID *int64 `json:"restaurant_id,omitempty"`
}

func NewAuthUser(u User) AuthUser {
	return AuthUser{
		ID:           u.ID,
		Email:        u.Email,
		Role:         u.Role,
		Active:       u.Active,
		RestaurantID: u.RestaurantID,
	}
}

type AuthUserList struct {
	Users []AuthUser `json:"users"`
}

type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Role         Role   `json:"role"`
	UserID       int64  `json:"user_id"`
	RestaurantID *int64 `json:"restaurant_id,omitempty"`
}

type MeResponse struct {
	Identity
	Authorities []string `json:"authorities"`
}
