package core

import (
	"context"
	"time"

	"github.com/jukebox-rooms/pkg/models"
)

// Playback is the external player's view of what is playing for a room owner.
type Playback struct {
	URI        string    `json:"uri"`
	ProgressMs int       `json:"progress_ms"`
	IsPlaying  bool      `json:"is_playing"`
	ContextURI string    `json:"context_uri"`
	ObservedAt time.Time `json:"observed_at"`
}

// TrackID is the id of the playing track, derived from its URI.
func (p Playback) TrackID() string { return models.TrackIDFromURI(p.URI) }

// ProgressAt estimates the playback position at t.
func (p Playback) ProgressAt(t time.Time) int {
	if !p.IsPlaying || p.ObservedAt.IsZero() {
		return p.ProgressMs
	}
	return p.ProgressMs + int(t.Sub(p.ObservedAt).Milliseconds())
}

type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Player is the external music player. GetCurrentPlayback returns (nil, nil)
// when nothing is playing.
type Player interface {
	GetCurrentPlayback(ctx context.Context, token string) (*Playback, error)
	Play(ctx context.Context, token, trackURI string) error
	Enqueue(ctx context.Context, token, trackURI string) error
	Skip(ctx context.Context, token string) (bool, error)
	GetTopTracks(ctx context.Context, token string) ([]models.Track, error)
	GetPlaylistTracks(ctx context.Context, token, playlistID string) ([]models.Track, error)
	GetProfile(ctx context.Context, token string) (*Profile, error)
}

type AuthProvider interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenPair, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error)
}

// Publisher is a fire-and-forget message bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

type RoomStore interface {
	ListActiveRooms(ctx context.Context) ([]models.Room, error)
	GetRoom(ctx context.Context, pin string) (*models.Room, error)
	FindRoomByOwner(ctx context.Context, ownerID string) (*models.Room, error)
	CreateRoom(ctx context.Context, room *models.Room, tracks []models.Track) error
	SetCurrentIndex(ctx context.Context, pin string, currentIndex, lastPlayedIndex int) error
	SetTokensByOwner(ctx context.Context, ownerID, accessToken, refreshToken string) (int64, error)
	ClearAccessToken(ctx context.Context, pin string) error
	ListRoomsCreatedBefore(ctx context.Context, before time.Time) ([]models.Room, error)
	DeleteRooms(ctx context.Context, pins ...string) error
}

type TrackStore interface {
	// ListTracks returns the room's tracks ordered by ascending index.
	ListTracks(ctx context.Context, pin string) ([]models.Track, error)
	// AppendTracks adds tracks after the current last index, skipping ids
	// already in the room, and returns the rows that were added.
	AppendTracks(ctx context.Context, pin string, tracks []models.Track) ([]models.Track, error)
	// SetTrackIndexes applies trackID -> index updates atomically.
	SetTrackIndexes(ctx context.Context, pin string, indexes map[string]int) error
}

type VoteStore interface {
	ListVotes(ctx context.Context, pin string) ([]models.Vote, error)
	UpsertVote(ctx context.Context, vote *models.Vote) error
	DeleteVote(ctx context.Context, pin, voterID, trackID string) error
	DeleteVotesForTrack(ctx context.Context, pin, trackID string) (int64, error)
}

type Store interface {
	RoomStore
	TrackStore
	VoteStore
}

// RoomSource yields the current set of active rooms.
type RoomSource interface {
	Rooms() []models.Room
}
