package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jukebox-rooms/internal/errs"
)

const (
	fieldAccess    = "access"
	fieldRefresh   = "refresh"
	fieldExpiresMs = "expires_ms"
)

type TokenInfo struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// TokenStore keeps each Spotify user's tokens in a hash keyed by profile id.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func tokenKey(userID string) string {
	return "spotify:tokens:" + userID
}

func expiresField(at time.Time) string {
	if at.IsZero() {
		return "0"
	}
	return strconv.FormatInt(at.UnixMilli(), 10)
}

func encodeTokens(t *TokenInfo) map[string]any {
	return map[string]any{
		fieldAccess:    t.AccessToken,
		fieldRefresh:   t.RefreshToken,
		fieldExpiresMs: expiresField(t.ExpiresAt),
	}
}

// decodeTokens turns an HGETALL reply back into tokens. An empty reply means
// the user never logged in.
func decodeTokens(userID string, fields map[string]string) (*TokenInfo, error) {
	if len(fields) == 0 || fields[fieldAccess] == "" {
		return nil, errs.Unauthorized("no tokens for user %s", userID)
	}

	token := &TokenInfo{
		AccessToken:  fields[fieldAccess],
		RefreshToken: fields[fieldRefresh],
	}
	if raw := fields[fieldExpiresMs]; raw != "" && raw != "0" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt expiry for user %s: %w", userID, err)
		}
		token.ExpiresAt = time.UnixMilli(ms).UTC()
	}
	return token, nil
}

// StoreTokens replaces everything cached for userID.
func (s *TokenStore) StoreTokens(ctx context.Context, userID string, token *TokenInfo) error {
	key := tokenKey(userID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeTokens(token))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

func (s *TokenStore) GetTokens(ctx context.Context, userID string) (*TokenInfo, error) {
	fields, err := s.client.HGetAll(ctx, tokenKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	return decodeTokens(userID, fields)
}

func (s *TokenStore) DeleteToken(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, tokenKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

// RefreshToken overwrites the access token and expiry in place. The refresh
// token is only touched when the provider rotated it.
func (s *TokenStore) RefreshToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	fields := map[string]any{
		fieldAccess:    accessToken,
		fieldExpiresMs: expiresField(expiresAt),
	}
	if refreshToken != "" {
		fields[fieldRefresh] = refreshToken
	}
	if err := s.client.HSet(ctx, tokenKey(userID), fields).Err(); err != nil {
		return fmt.Errorf("failed to refresh tokens: %w", err)
	}
	return nil
}
