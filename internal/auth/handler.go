package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/pkg/jwt"
	"github.com/jukebox-rooms/pkg/redis"
)

const stateCookie = "oauth_state"

// AuthURLBuilder produces the provider's consent page URL.
type AuthURLBuilder interface {
	GetAuthURL(state string) string
}

// RoomCredentials lets a fresh login reactivate the owner's rooms.
type RoomCredentials interface {
	SetTokensByOwner(ctx context.Context, ownerID, accessToken, refreshToken string) (int64, error)
}

type Handler struct {
	urls         AuthURLBuilder
	provider     core.AuthProvider
	player       core.Player
	tokens       TokenStore
	rooms        RoomCredentials
	sessions     *jwt.Manager
	frontendURL  string
	secureCookie bool
}

type Config struct {
	FrontendURL  string
	SecureCookie bool
}

func NewHandler(urls AuthURLBuilder, provider core.AuthProvider, player core.Player, tokens TokenStore, rooms RoomCredentials, sessions *jwt.Manager, cfg Config) *Handler {
	frontendURL := cfg.FrontendURL
	if frontendURL == "" {
		frontendURL = "/"
	}
	return &Handler{
		urls:         urls,
		provider:     provider,
		player:       player,
		tokens:       tokens,
		rooms:        rooms,
		sessions:     sessions,
		frontendURL:  frontendURL,
		secureCookie: cfg.SecureCookie,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		// Public routes
		auth.GET("/login", h.login)
		auth.GET("/callback", h.callback)

		// Protected routes (require authentication)
		protected := auth.Group("", h.Middleware())
		protected.GET("/me", h.me)
		protected.POST("/logout", h.logout)
		protected.GET("/me/top-tracks", h.getTopTracks)
	}
}

// Middleware is AuthMiddleware bound to this handler's collaborators.
func (h *Handler) Middleware() gin.HandlerFunc {
	return AuthMiddleware(h.sessions, h.tokens, h.provider)
}

func (h *Handler) setCookie(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) login(c *gin.Context) {
	state := uuid.New().String()
	h.setCookie(c, stateCookie, state, 600)
	c.JSON(http.StatusOK, gin.H{"url": h.urls.GetAuthURL(state)})
}

func (h *Handler) callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if expected, err := c.Cookie(stateCookie); err != nil || expected == "" || expected != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
		return
	}
	h.setCookie(c, stateCookie, "", -1)

	ctx := c.Request.Context()
	pair, err := h.provider.ExchangeCode(ctx, code, "")
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	profile, err := h.player.GetProfile(ctx, pair.AccessToken)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	tokenInfo := &redis.TokenInfo{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.UTC(),
	}
	if err := h.tokens.StoreTokens(ctx, profile.ID, tokenInfo); err != nil {
		log.Error().Str("module", "auth").Str("user", profile.ID).Err(err).Msg("failed to store tokens")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store tokens"})
		return
	}

	// A room whose credential was invalidated becomes active again.
	if n, err := h.rooms.SetTokensByOwner(ctx, profile.ID, pair.AccessToken, pair.RefreshToken); err != nil {
		log.Error().Str("module", "auth").Str("user", profile.ID).Err(err).Msg("failed to update room credentials")
	} else if n > 0 {
		log.Info().Str("module", "auth").Str("user", profile.ID).Int64("rooms", n).Msg("room credentials restored")
	}

	session, err := h.sessions.GenerateToken(profile.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	h.setCookie(c, sessionCookie, session, 0)
	c.Redirect(http.StatusFound, h.frontendURL)
}

func (h *Handler) me(c *gin.Context) {
	profile, err := h.player.GetProfile(c.Request.Context(), c.GetString("access_token"))
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.tokens.DeleteToken(c.Request.Context(), c.GetString("user_id")); err != nil {
		log.Warn().Str("module", "auth").Err(err).Msg("failed to delete tokens")
	}
	h.setCookie(c, sessionCookie, "", -1)
	c.Status(http.StatusNoContent)
}

func (h *Handler) getTopTracks(c *gin.Context) {
	tracks, err := h.player.GetTopTracks(c.Request.Context(), c.GetString("access_token"))
	if err != nil {
		c.JSON(errs.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tracks)
}
