package room

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/internal/votes"
	"github.com/jukebox-rooms/pkg/events"
	"github.com/jukebox-rooms/pkg/models"
)

const (
	pinLength      = 4
	pinCharset     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	pinMaxAttempts = 10
)

// Service implements the request-path room operations. Every mutation is
// safe to retry.
type Service struct {
	store     core.Store
	player    core.Player
	votes     *votes.Aggregator
	publisher core.Publisher
	newPin    func() string
	now       func() time.Time
}

func NewService(store core.Store, player core.Player, publisher core.Publisher) *Service {
	return &Service{
		store:     store,
		player:    player,
		votes:     votes.NewAggregator(store),
		publisher: publisher,
		newPin:    generatePin,
		now:       time.Now,
	}
}

type CreateRoomInput struct {
	OwnerID      string
	AccessToken  string
	RefreshToken string
	// PlaylistID seeds the queue from a playlist; empty means the owner's
	// top tracks.
	PlaylistID string
}

// CreateRoom opens a room for the owner, seeded with tracks from the player.
// An owner that already has a room gets it back with its credentials
// refreshed.
func (s *Service) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.Room, error) {
	if in.OwnerID == "" || in.AccessToken == "" {
		return nil, errs.Validation("owner and access token are required")
	}

	existing, err := s.store.FindRoomByOwner(ctx, in.OwnerID)
	switch {
	case err == nil:
		if _, err := s.store.SetTokensByOwner(ctx, in.OwnerID, in.AccessToken, in.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to update room credentials: %w", err)
		}
		existing.AccessToken = in.AccessToken
		return existing, nil
	case !errs.IsNotFound(err):
		return nil, fmt.Errorf("failed to look up owner room: %w", err)
	}

	imported, err := s.importTracks(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for attempt := 0; attempt < pinMaxAttempts; attempt++ {
		room := &models.Room{
			Pin:             s.newPin(),
			OwnerID:         in.OwnerID,
			AccessToken:     in.AccessToken,
			RefreshToken:    in.RefreshToken,
			CurrentIndex:    -1,
			LastPlayedIndex: -1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		tracks := make([]models.Track, len(imported))
		for i, t := range imported {
			t.Pin = room.Pin
			t.Index = i
			tracks[i] = t
		}

		err := s.store.CreateRoom(ctx, room, tracks)
		if errs.IsConflict(err) {
			log.Debug().Str("module", "room").Str("pin", room.Pin).Msg("pin collision, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}

		log.Info().Str("module", "room").Str("pin", room.Pin).Str("owner", in.OwnerID).Int("tracks", len(tracks)).Msg("room created")
		return room, nil
	}
	return nil, errs.Conflict("could not allocate a room pin after %d attempts", pinMaxAttempts)
}

func (s *Service) importTracks(ctx context.Context, in CreateRoomInput) ([]models.Track, error) {
	var (
		tracks []models.Track
		err    error
	)
	if in.PlaylistID != "" {
		tracks, err = s.player.GetPlaylistTracks(ctx, in.AccessToken, in.PlaylistID)
	} else {
		tracks, err = s.player.GetTopTracks(ctx, in.AccessToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to import tracks: %w", err)
	}

	tracks = dedupe(tracks)
	if len(tracks) == 0 {
		return nil, errs.Unprocessable("no tracks to import")
	}
	return tracks, nil
}

func (s *Service) GetRoom(ctx context.Context, pin string) (*models.Room, error) {
	pin, err := normalizePin(pin)
	if err != nil {
		return nil, err
	}
	return s.store.GetRoom(ctx, pin)
}

func (s *Service) GetTracks(ctx context.Context, pin string) ([]models.Track, error) {
	room, err := s.GetRoom(ctx, pin)
	if err != nil {
		return nil, err
	}
	return s.store.ListTracks(ctx, room.Pin)
}

// GetVotes returns the room's live votes and the net score per track.
func (s *Service) GetVotes(ctx context.Context, pin string) ([]models.Vote, map[string]int, error) {
	room, err := s.GetRoom(ctx, pin)
	if err != nil {
		return nil, nil, err
	}
	list, err := s.votes.GetVotes(ctx, room.Pin)
	if err != nil {
		return nil, nil, err
	}
	return list, votes.Tally(list), nil
}

// AddTracks appends tracks to the end of the queue. Ids already in the room
// are skipped, so repeating a request adds nothing.
func (s *Service) AddTracks(ctx context.Context, pin string, tracks []models.Track) ([]models.Track, error) {
	pin, err := normalizePin(pin)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errs.Validation("at least one track is required")
	}
	for i := range tracks {
		tracks[i].ID = models.TrackIDFromURI(tracks[i].ID)
		if tracks[i].ID == "" {
			return nil, errs.Validation("track %d has no id", i)
		}
	}

	added, err := s.store.AppendTracks(ctx, pin, dedupe(tracks))
	if err != nil {
		return nil, fmt.Errorf("failed to add tracks: %w", err)
	}
	if len(added) > 0 {
		s.publisher.Publish(ctx, events.TracksAddedTopic(pin), events.TracksAddedPayload{Pin: pin, Tracks: added})
	}
	return added, nil
}

// RecordVote stores the vote and publishes the room's updated vote set.
// Votes on the pinned tracks are accepted without effect.
func (s *Service) RecordVote(ctx context.Context, pin, voterID, trackID string, state models.VoteState) error {
	pin, err := normalizePin(pin)
	if err != nil {
		return err
	}

	recorded, err := s.votes.RecordVote(ctx, pin, voterID, models.TrackIDFromURI(trackID), state)
	if err != nil {
		return err
	}
	if !recorded {
		return nil
	}

	list, err := s.votes.GetVotes(ctx, pin)
	if err != nil {
		log.Error().Str("module", "room").Str("pin", pin).Err(err).Msg("failed to load votes for publishing")
		return nil
	}
	s.publisher.Publish(ctx, events.VotesTopic(pin), events.VotesPayload{
		Pin:    pin,
		Votes:  list,
		Scores: votes.Tally(list),
	})
	return nil
}

// Skip advances the owner's player to the next track. The synchronizer
// picks up the change on its next tick.
func (s *Service) Skip(ctx context.Context, pin, userID string) error {
	room, err := s.playableRoom(ctx, pin, userID)
	if err != nil {
		return err
	}

	ok, err := s.player.Skip(ctx, room.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to skip: %w", err)
	}
	if !ok {
		return errs.Unprocessable("player refused to skip")
	}
	return nil
}

// Restart starts the queue from the first track. It is rejected while the
// owner's player is playing.
func (s *Service) Restart(ctx context.Context, pin, userID string) error {
	room, err := s.playableRoom(ctx, pin, userID)
	if err != nil {
		return err
	}

	pb, err := s.player.GetCurrentPlayback(ctx, room.AccessToken)
	if err != nil && !errs.IsNotFound(err) {
		return fmt.Errorf("failed to read playback: %w", err)
	}
	if pb != nil && pb.IsPlaying {
		return errs.Conflict("room %s is already playing", room.Pin)
	}

	tracks, err := s.store.ListTracks(ctx, room.Pin)
	if err != nil {
		return fmt.Errorf("failed to list tracks: %w", err)
	}
	if len(tracks) == 0 {
		return errs.Unprocessable("room %s has no tracks", room.Pin)
	}

	first := tracks[0]
	if err := s.player.Play(ctx, room.AccessToken, first.URI()); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	if len(tracks) > 1 {
		if err := s.player.Enqueue(ctx, room.AccessToken, tracks[1].URI()); err != nil {
			log.Warn().Str("module", "room").Str("pin", room.Pin).Err(err).Msg("failed to enqueue next track")
		}
	}

	if err := s.store.SetCurrentIndex(ctx, room.Pin, 0, -1); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	s.publisher.Publish(ctx, events.TrackActiveTopic(room.Pin), events.TrackActivePayload{
		Pin:          room.Pin,
		CurrentIndex: 0,
		TrackID:      first.ID,
		URI:          first.URI(),
		IsPlaying:    true,
	})
	return nil
}

// CloseRoom deletes the room with its tracks and votes.
func (s *Service) CloseRoom(ctx context.Context, pin, userID string) error {
	room, err := s.ownedRoom(ctx, pin, userID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRooms(ctx, room.Pin); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	log.Info().Str("module", "room").Str("pin", room.Pin).Msg("room closed")
	return nil
}

func (s *Service) ownedRoom(ctx context.Context, pin, userID string) (*models.Room, error) {
	pin, err := normalizePin(pin)
	if err != nil {
		return nil, err
	}
	room, err := s.store.GetRoom(ctx, pin)
	if err != nil {
		return nil, err
	}
	if userID == "" || room.OwnerID != userID {
		return nil, errs.Unauthorized("only the room owner may do this")
	}
	return room, nil
}

// playableRoom is ownedRoom for operations that drive the owner's player.
func (s *Service) playableRoom(ctx context.Context, pin, userID string) (*models.Room, error) {
	room, err := s.ownedRoom(ctx, pin, userID)
	if err != nil {
		return nil, err
	}
	if !room.Active() {
		return nil, errs.Unauthorized("room %s has no valid credential", room.Pin)
	}
	return room, nil
}

func normalizePin(pin string) (string, error) {
	pin = strings.ToUpper(strings.TrimSpace(pin))
	if len(pin) != pinLength {
		return "", errs.Validation("pin must be %d characters", pinLength)
	}
	return pin, nil
}

func generatePin() string {
	pin := make([]byte, pinLength)
	for i := range pin {
		pin[i] = pinCharset[rand.IntN(len(pinCharset))]
	}
	return string(pin)
}

func dedupe(tracks []models.Track) []models.Track {
	seen := make(map[string]bool, len(tracks))
	out := tracks[:0:0]
	for _, t := range tracks {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
