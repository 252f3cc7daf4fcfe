package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"deliverytech-api/internal/metrics"
	"deliverytech-api/internal/model"
)

// RefreshTokenStore is implemented by the Postgres and Redis repositories.
// Delete must be an atomic delete-if-present reporting whether this call
// removed the record.
type RefreshTokenStore interface {
	Create(ctx context.Context, token model.RefreshToken) error
	FindByToken(ctx context.Context, token string) (model.RefreshToken, error)
	Delete(ctx context.Context, token string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type RefreshTokenService struct {
	store   RefreshTokenStore
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewRefreshTokenService(store RefreshTokenStore, ttl time.Duration, m *metrics.Metrics) *RefreshTokenService {
	return &RefreshTokenService{store: store, ttl: ttl, now: time.Now, metrics: m}
}

// WithClock replaces the time source; used by tests.
func (s *RefreshTokenService) WithClock(now func() time.Time) *RefreshTokenService {
	s.now = now
	return s
}

// Create persists a new token for userID. The value is a random UUIDv4.
func (s *RefreshTokenService) Create(ctx context.Context, userID int64) (model.RefreshToken, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.now().UTC()
	token := model.RefreshToken{
		Token:     value.String(),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if err := s.store.Create(ctx, token); err != nil {
		return model.RefreshToken{}, err
	}
	return token, nil
}

// Find returns RefreshNotFound when no record exists.
func (s *RefreshTokenService) Find(ctx context.Context, value string) (model.RefreshToken, error) {
	token, err := s.store.FindByToken(ctx, value)
	if errors.Is(err, model.ErrTokenNotFound) {
		s.metrics.RefreshOutcome("not_found")
		return model.RefreshToken{}, model.NewAuthError(model.KindRefreshNotFound, err)
	}
	if err != nil {
		return model.RefreshToken{}, err
	}
	return token, nil
}

// Verify deletes an expired token and fails with RefreshExpired. A caller
// that loses the delete race to a concurrent Verify gets the same error.
func (s *RefreshTokenService) Verify(ctx context.Context, token model.RefreshToken) (model.RefreshToken, error) {
	if !token.ExpiredAt(s.now()) {
		s.metrics.RefreshOutcome("valid")
		return token, nil
	}

	removed, err := s.store.Delete(ctx, token.Token)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("delete expired refresh token: %w", err)
	}

	slog.Debug("refresh token expired", "user_id", token.UserID, "removed", removed)
	s.metrics.RefreshOutcome("expired")
	return model.RefreshToken{}, model.NewAuthError(model.KindRefreshExpired,
		fmt.Errorf("expired at %s", token.ExpiresAt.UTC().Format(time.RFC3339)))
}

// Redeem is Find followed by Verify.
func (s *RefreshTokenService) Redeem(ctx context.Context, value string) (model.RefreshToken, error) {
	token, err := s.Find(ctx, value)
	if err != nil {
		return model.RefreshToken{}, err
	}
	return s.Verify(ctx, token)
}

// Revoke deletes a single token; RefreshNotFound if it was already gone.
func (s *RefreshTokenService) Revoke(ctx context.Context, value string) error {
	removed, err := s.store.Delete(ctx, value)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !removed {
		return model.NewAuthError(model.KindRefreshNotFound, model.ErrTokenNotFound)
	}
	return nil
}

// RevokeAll deletes every refresh token owned by userID.
func (s *RefreshTokenService) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return n, nil
}

func (s *RefreshTokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	s.metrics.RefreshPurged(n)
	return n, nil
}

// StartCleanupTicker runs PurgeExpired every interval until ctx is cancelled.
func (s *RefreshTokenService) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.purgeAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeAndLog(ctx)
		}
	}
}

func (s *RefreshTokenService) purgeAndLog(ctx context.Context) {
	n, err := s.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("refresh token cleanup failed", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Info("purged expired refresh tokens", "count", n)
	}
}
