package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/internal/scheduler"
	"github.com/jukebox-rooms/pkg/models"
)

type Store interface {
	SetTokensByOwner(ctx context.Context, ownerID, accessToken, refreshToken string) (int64, error)
}

// TokenCache mirrors refreshed tokens for the request path, keyed by owner.
type TokenCache interface {
	RefreshToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
}

type Refresher struct {
	rooms  core.RoomSource
	auth   core.AuthProvider
	player core.Player
	store  Store
	cache  TokenCache
}

func NewRefresher(rooms core.RoomSource, auth core.AuthProvider, player core.Player, store Store, cache TokenCache) *Refresher {
	return &Refresher{
		rooms:  rooms,
		auth:   auth,
		player: player,
		store:  store,
		cache:  cache,
	}
}

// Tick rotates the access token of every in-progress room.
func (r *Refresher) Tick(ctx context.Context) error {
	var rooms []models.Room
	for _, room := range r.rooms.Rooms() {
		if room.InProgress() {
			rooms = append(rooms, room)
		}
	}
	scheduler.ForEachRoom(ctx, "credentials", rooms, r.RefreshRoom)
	return nil
}

// RefreshRoom exchanges the room's refresh token and stores the new access
// token on every room owned by the same profile.
func (r *Refresher) RefreshRoom(ctx context.Context, room models.Room) error {
	tokens, err := r.auth.Refresh(ctx, room.AccessToken, room.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	profile, err := r.player.GetProfile(ctx, tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to resolve profile: %w", err)
	}

	n, err := r.store.SetTokensByOwner(ctx, profile.ID, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.RefreshToken(ctx, profile.ID, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt); err != nil {
			log.Warn().Str("module", "credentials").Str("owner", profile.ID).Err(err).Msg("failed to update token cache")
		}
	}

	log.Info().Str("module", "credentials").Str("pin", room.Pin).Str("owner", profile.ID).Int64("rooms", n).Msg("access token refreshed")
	return nil
}
