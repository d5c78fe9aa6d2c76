package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/pkg/jwt"
	"github.com/jukebox-rooms/pkg/redis"
)

const sessionCookie = "auth_token"

// TokenStore caches Spotify tokens per profile id.
type TokenStore interface {
	StoreTokens(ctx context.Context, userID string, token *redis.TokenInfo) error
	GetTokens(ctx context.Context, userID string) (*redis.TokenInfo, error)
	RefreshToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
	DeleteToken(ctx context.Context, userID string) error
}

// sessionToken reads the JWT from the session cookie, a bearer header, or
// the token query parameter used by websocket clients.
func sessionToken(c *gin.Context) string {
	if cookie, err := c.Cookie(sessionCookie); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
	}
	return c.Query("token")
}

// AuthMiddleware resolves the session to a Spotify user. An expired access
// token is refreshed inline before the request proceeds.
func AuthMiddleware(sessions *jwt.Manager, tokens TokenStore, provider core.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := sessionToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No session token"})
			return
		}

		claims, err := sessions.ValidateToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		ctx := c.Request.Context()
		tokenInfo, err := tokens.GetTokens(ctx, claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token not found"})
			return
		}

		if tokenInfo.Expired(time.Now()) {
			pair, err := provider.Refresh(ctx, tokenInfo.AccessToken, tokenInfo.RefreshToken)
			if err != nil {
				log.Warn().Str("module", "auth").Str("user", claims.UserID).Err(err).Msg("inline token refresh failed")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
				return
			}
			if err := tokens.RefreshToken(ctx, claims.UserID, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt); err != nil {
				log.Error().Str("module", "auth").Str("user", claims.UserID).Err(err).Msg("failed to store refreshed token")
			}
			tokenInfo.AccessToken = pair.AccessToken
			if pair.RefreshToken != "" {
				tokenInfo.RefreshToken = pair.RefreshToken
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("access_token", tokenInfo.AccessToken)
		c.Set("refresh_token", tokenInfo.RefreshToken)
		c.Next()
	}
}
