package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"deliverytech-api/internal/model"
)

const (
	redisTokenPrefix = "refresh:token:"
	redisUserPrefix  = "refresh:user:"

	// Expired tokens are kept this long so a late refresh attempt still
	// reports RefreshExpired instead of RefreshNotFound.
	expiredRetention = 7 * 24 * time.Hour
	minKeyTTL        = time.Minute
)

// RedisTokenRepository is the REFRESH_STORE=redis backend. DEL is atomic,
// so only one of several concurrent deletes observes a removed key.
type RedisTokenRepository struct {
	client *redis.Client
}

func NewRedisTokenRepository(client *redis.Client) *RedisTokenRepository {
	return &RedisTokenRepository{client: client}
}

func tokenKey(token string) string {
	return redisTokenPrefix + token
}

func userKey(userID int64) string {
	return redisUserPrefix + strconv.FormatInt(userID, 10)
}

func (r *RedisTokenRepository) Create(ctx context.Context, token model.RefreshToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode refresh token: %w", err)
	}

	ttl := time.Until(token.ExpiresAt) + expiredRetention
	if ttl < minKeyTTL {
		ttl = minKeyTTL
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey(token.Token), payload, ttl)
		pipe.SAdd(ctx, userKey(token.UserID), token.Token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (r *RedisTokenRepository) FindByToken(ctx context.Context, token string) (model.RefreshToken, error) {
	raw, err := r.client.Get(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}

	var t model.RefreshToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.RefreshToken{}, fmt.Errorf("decode refresh token: %w", err)
	}
	return t, nil
}

func (r *RedisTokenRepository) Delete(ctx context.Context, token string) (bool, error) {
	existing, err := r.FindByToken(ctx, token)
	if errors.Is(err, model.ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, tokenKey(token))
		pipe.SRem(ctx, userKey(existing.UserID), token)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}
	return del.Val() == 1, nil
}

func (r *RedisTokenRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	members, err := r.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list user refresh tokens: %w", err)
	}

	if len(members) == 0 {
		return 0, nil
	}

	// Only the members read above leave the index; a token created since
	// stays indexed for the next revoke-all.
	indexed := make([]any, 0, len(members))
	cmds := make([]*redis.IntCmd, 0, len(members))
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, member := range members {
			cmds = append(cmds, pipe.Del(ctx, tokenKey(member)))
			indexed = append(indexed, member)
		}
		pipe.SRem(ctx, userKey(userID), indexed...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}

	var deleted int64
	for _, cmd := range cmds {
		deleted += cmd.Val()
	}
	return deleted, nil
}

// DeleteExpired walks the per-user indexes, dropping expired tokens and
// index entries whose key already left through its TTL.
func (r *RedisTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	iter := r.client.Scan(ctx, 0, redisUserPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		members, err := r.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return deleted, fmt.Errorf("list user refresh tokens: %w", err)
		}

		for _, member := range members {
			t, err := r.FindByToken(ctx, member)
			switch {
			case errors.Is(err, model.ErrTokenNotFound):
				if err := r.client.SRem(ctx, indexKey, member).Err(); err != nil {
					return deleted, fmt.Errorf("drop stale index entry: %w", err)
				}
			case err != nil:
				return deleted, err
			case t.ExpiredAt(now):
				removed, err := r.Delete(ctx, member)
				if err != nil {
					return deleted, err
				}
				if removed {
					deleted++
				}
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan refresh token indexes: %w", err)
	}
	return deleted, nil
}
