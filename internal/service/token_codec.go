package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"deliverytech-api/internal/model"
)

// AccessTokenTTL is fixed; it is not part of the configuration surface.
const AccessTokenTTL = 24 * time.Hour

// AccessClaims are the claims carried by an access token. Subject holds the
// user's email.
type AccessClaims struct {
	UserID       int64      `json:"uid"`
	Role         model.Role `json:"role"`
	RestaurantID *int64     `json:"restaurant_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 access tokens with a single key.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

func NewTokenCodec(secret string) *TokenCodec {
	return NewTokenCodecWithClock(secret, time.Now)
}

// NewTokenCodecWithClock uses now for both issuance and expiry checks.
func NewTokenCodecWithClock(secret string, now func() time.Time) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}
}

// Issue signs an access token for subject. iat is the codec clock truncated
// to seconds, exp is iat plus AccessTokenTTL.
func (c *TokenCodec) Issue(subject string, claims AccessClaims) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("issue token: empty subject")
	}

	issuedAt := c.now().UTC().Truncate(time.Second)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(AccessTokenTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueFor issues a token for a stored user.
func (c *TokenCodec) IssueFor(u model.User) (string, error) {
	return c.Issue(u.Email, AccessClaims{
		UserID:       u.ID,
		Role:         u.Role,
		RestaurantID: u.RestaurantID,
	})
}

// ParseAndVerify returns the verified claims or an *model.AuthError of kind
// TokenMalformed, TokenSignatureInvalid or TokenExpired.
func (c *TokenCodec) ParseAndVerify(raw string) (claims *AccessClaims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = model.NewAuthError(model.KindTokenMalformed, fmt.Errorf("parse panic: %v", r))
		}
	}()

	parsed := &AccessClaims{}
	_, err = c.parser.ParseWithClaims(raw, parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}

	if strings.TrimSpace(parsed.Subject) == "" {
		return nil, model.NewAuthError(model.KindTokenMalformed, errors.New("empty subject"))
	}

	return parsed, nil
}

// classifyJWTError maps jwt/v5 errors onto the closed kind set. The parser
// verifies the signature before validating claims, so an expired error is
// only ever reported for an authentic token. Its expiry rule is now < exp,
// which makes exp == now expired.
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return model.NewAuthError(model.KindTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.NewAuthError(model.KindTokenExpired, err)
	default:
		return model.NewAuthError(model.KindTokenMalformed, err)
	}
}
