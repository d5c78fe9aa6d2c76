package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/internal/scheduler"
	"github.com/jukebox-rooms/internal/votes"
	"github.com/jukebox-rooms/pkg/events"
	"github.com/jukebox-rooms/pkg/models"
)

type Store interface {
	GetRoom(ctx context.Context, pin string) (*models.Room, error)
	ListTracks(ctx context.Context, pin string) ([]models.Track, error)
	ListVotes(ctx context.Context, pin string) ([]models.Vote, error)
	SetTrackIndexes(ctx context.Context, pin string, indexes map[string]int) error
}

// PlaybackState is the part of the playback synchronizer the engine needs:
// the last observed playback per room and the cursor-recompute path.
type PlaybackState interface {
	Snapshot(pin string) (core.Playback, bool)
	RecomputeCursor(ctx context.Context, pin, trackID string) error
}

type Engine struct {
	rooms        core.RoomSource
	store        Store
	playback     PlaybackState
	publisher    core.Publisher
	noSyncMargin time.Duration
	now          func() time.Time
}

func NewEngine(rooms core.RoomSource, store Store, playback PlaybackState, publisher core.Publisher, noSyncMargin time.Duration) *Engine {
	return &Engine{
		rooms:        rooms,
		store:        store,
		playback:     playback,
		publisher:    publisher,
		noSyncMargin: noSyncMargin,
		now:          time.Now,
	}
}

// Tick reorders every active, in-progress room once.
func (e *Engine) Tick(ctx context.Context) error {
	var rooms []models.Room
	for _, room := range e.rooms.Rooms() {
		if room.InProgress() {
			rooms = append(rooms, room)
		}
	}
	scheduler.ForEachRoom(ctx, "queue", rooms, func(ctx context.Context, room models.Room) error {
		_, err := e.ReorderRoom(ctx, room.Pin)
		return err
	})
	return nil
}

// ReorderRoom applies the vote-driven order to one room and returns the
// number of tracks whose index changed.
func (e *Engine) ReorderRoom(ctx context.Context, pin string) (int, error) {
	room, err := e.store.GetRoom(ctx, pin)
	if err != nil {
		return 0, fmt.Errorf("failed to get room: %w", err)
	}
	if !room.Active() || !room.InProgress() {
		return 0, nil
	}

	tracks, err := e.store.ListTracks(ctx, pin)
	if err != nil {
		return 0, fmt.Errorf("failed to list tracks: %w", err)
	}
	if !e.safeToReorder(pin, room.CurrentIndex, tracks) {
		return 0, nil
	}

	roomVotes, err := e.store.ListVotes(ctx, pin)
	if err != nil {
		return 0, fmt.Errorf("failed to list votes: %w", err)
	}
	if len(roomVotes) == 0 {
		return 0, nil
	}

	plan := Reorder(tracks, votes.Tally(roomVotes), room.CurrentIndex)
	if plan.Reorders() == 0 {
		return 0, nil
	}

	if err := e.store.SetTrackIndexes(ctx, pin, plan.Moves); err != nil {
		return 0, fmt.Errorf("failed to persist reorder: %w", err)
	}

	if plan.CurrentMoved(room.CurrentIndex) {
		if err := e.playback.RecomputeCursor(ctx, pin, plan.CurrentTrackID); err != nil {
			log.Error().Str("module", "queue").Str("pin", pin).Err(err).Msg("failed to recompute cursor after reorder")
		}
	}

	log.Info().Str("module", "queue").Str("pin", pin).Int("reorders", plan.Reorders()).Msg("queue reordered")
	e.publisher.Publish(ctx, events.TracksReorderedTopic(pin), events.TracksReorderedPayload{
		Pin:      pin,
		Reorders: plan.Reorders(),
		Tracks:   plan.Order,
	})
	return plan.Reorders(), nil
}

// safeToReorder is false while a track transition may be in flight: no
// playback has been observed yet, the observed track is not the room's
// current one, or the current track ends within the no-sync margin.
func (e *Engine) safeToReorder(pin string, currentIndex int, tracks []models.Track) bool {
	snap, ok := e.playback.Snapshot(pin)
	if !ok {
		return false
	}

	var current *models.Track
	for i := range tracks {
		if tracks[i].Index == currentIndex {
			current = &tracks[i]
			break
		}
	}
	if current == nil || current.ID != snap.TrackID() {
		return false
	}

	remaining := time.Duration(current.DurationMs-snap.ProgressAt(e.now())) * time.Millisecond
	return remaining > e.noSyncMargin
}
