package votes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/pkg/models"
)

type Store interface {
	core.VoteStore
	GetRoom(ctx context.Context, pin string) (*models.Room, error)
	ListTracks(ctx context.Context, pin string) ([]models.Track, error)
}

type Aggregator struct {
	store Store
	now   func() time.Time
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// RecordVote upserts the (pin, voter, track) vote. A "none" state removes the
// row. Votes on the pinned window are accepted but not stored; recorded is
// false in that case.
func (a *Aggregator) RecordVote(ctx context.Context, pin, voterID, trackID string, state models.VoteState) (recorded bool, err error) {
	if voterID == "" || trackID == "" {
		return false, errs.Validation("voter and track are required")
	}
	if !state.Valid() {
		return false, errs.Validation("invalid vote state %q", state)
	}

	room, err := a.store.GetRoom(ctx, pin)
	if err != nil {
		return false, fmt.Errorf("failed to get room: %w", err)
	}
	tracks, err := a.store.ListTracks(ctx, pin)
	if err != nil {
		return false, fmt.Errorf("failed to list tracks: %w", err)
	}

	track, ok := findTrack(tracks, trackID)
	if !ok {
		return false, errs.NotFound("track %s not in room %s", trackID, pin)
	}
	if InPinnedWindow(track.Index, room.CurrentIndex) {
		log.Debug().Str("module", "votes").Str("pin", pin).Str("track", trackID).Msg("dropping vote on pinned track")
		return false, nil
	}

	if state == models.VoteNone {
		if err := a.store.DeleteVote(ctx, pin, voterID, trackID); err != nil {
			return false, fmt.Errorf("failed to delete vote: %w", err)
		}
		return true, nil
	}

	now := a.now()
	vote := &models.Vote{
		ID:        uuid.New(),
		Pin:       pin,
		VoterID:   voterID,
		TrackID:   trackID,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.UpsertVote(ctx, vote); err != nil {
		return false, fmt.Errorf("failed to store vote: %w", err)
	}
	return true, nil
}

func (a *Aggregator) GetVotes(ctx context.Context, pin string) ([]models.Vote, error) {
	votes, err := a.store.ListVotes(ctx, pin)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return votes, nil
}

// Scores returns the net score per voted track of a room.
func (a *Aggregator) Scores(ctx context.Context, pin string) (map[string]int, error) {
	votes, err := a.GetVotes(ctx, pin)
	if err != nil {
		return nil, err
	}
	return Tally(votes), nil
}

func (a *Aggregator) DeleteVotesForTrack(ctx context.Context, pin, trackID string) error {
	n, err := a.store.DeleteVotesForTrack(ctx, pin, trackID)
	if err != nil {
		return fmt.Errorf("failed to delete votes for track %s: %w", trackID, err)
	}
	if n > 0 {
		log.Debug().Str("module", "votes").Str("pin", pin).Str("track", trackID).Int64("deleted", n).Msg("cleared votes")
	}
	return nil
}

// Tally computes upvotes minus downvotes per track id.
func Tally(votes []models.Vote) map[string]int {
	scores := make(map[string]int)
	for _, v := range votes {
		scores[v.TrackID] += v.State.Weight()
	}
	return scores
}

// InPinnedWindow reports whether index is the current track or the one after
// it. Nothing is pinned before playback starts.
func InPinnedWindow(index, currentIndex int) bool {
	if currentIndex < 0 {
		return false
	}
	return index == currentIndex || index == currentIndex+1
}

func findTrack(tracks []models.Track, id string) (models.Track, bool) {
	for _, t := range tracks {
		if t.ID == id {
			return t, true
		}
	}
	return models.Track{}, false
}
