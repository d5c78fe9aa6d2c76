package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/internal/core"
	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/internal/scheduler"
	"github.com/jukebox-rooms/pkg/events"
	"github.com/jukebox-rooms/pkg/models"
)

type Store interface {
	GetRoom(ctx context.Context, pin string) (*models.Room, error)
	ListTracks(ctx context.Context, pin string) ([]models.Track, error)
	SetCurrentIndex(ctx context.Context, pin string, currentIndex, lastPlayedIndex int) error
	ClearAccessToken(ctx context.Context, pin string) error
}

type VoteCleaner interface {
	DeleteVotesForTrack(ctx context.Context, pin, trackID string) error
}

type Change int

const (
	NoChange Change = iota
	TrackChanged
	PlayStateChanged
	DriftDetected
)

func (c Change) String() string {
	switch c {
	case TrackChanged:
		return "track_changed"
	case PlayStateChanged:
		return "play_state_changed"
	case DriftDetected:
		return "drift_detected"
	default:
		return "no_change"
	}
}

// Classify compares a freshly observed playback against the previous
// snapshot. prev is nil on the first observation of a room.
func Classify(prev *core.Playback, next core.Playback, driftThreshold time.Duration) Change {
	switch {
	case prev == nil || prev.URI != next.URI:
		return TrackChanged
	case prev.IsPlaying != next.IsPlaying:
		return PlayStateChanged
	}

	drift := next.ProgressMs - prev.ProgressAt(next.ObservedAt)
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Millisecond > driftThreshold {
		return DriftDetected
	}
	return NoChange
}

// Synchronizer polls the external player for every active room and keeps
// the room's cursor in line with what is actually playing.
type Synchronizer struct {
	rooms          core.RoomSource
	player         core.Player
	store          Store
	votes          VoteCleaner
	publisher      core.Publisher
	driftThreshold time.Duration
	now            func() time.Time

	snapshots sync.Map // pin -> core.Playback
}

func NewSynchronizer(rooms core.RoomSource, player core.Player, store Store, votes VoteCleaner, publisher core.Publisher, driftThreshold time.Duration) *Synchronizer {
	return &Synchronizer{
		rooms:          rooms,
		player:         player,
		store:          store,
		votes:          votes,
		publisher:      publisher,
		driftThreshold: driftThreshold,
		now:            time.Now,
	}
}

// Snapshot returns the last playback observed for pin.
func (s *Synchronizer) Snapshot(pin string) (core.Playback, bool) {
	v, ok := s.snapshots.Load(pin)
	if !ok {
		return core.Playback{}, false
	}
	return v.(core.Playback), true
}

// Tick polls every active room once.
func (s *Synchronizer) Tick(ctx context.Context) error {
	rooms := s.rooms.Rooms()
	s.prune(rooms)
	scheduler.ForEachRoom(ctx, "playback", rooms, func(ctx context.Context, room models.Room) error {
		_, err := s.SyncRoom(ctx, room)
		return err
	})
	return nil
}

func (s *Synchronizer) prune(active []models.Room) {
	keep := make(map[string]bool, len(active))
	for _, r := range active {
		keep[r.Pin] = true
	}
	s.snapshots.Range(func(key, _ any) bool {
		if !keep[key.(string)] {
			s.snapshots.Delete(key)
		}
		return true
	})
}

// SyncRoom runs one poll-compare-reconcile step for a room.
func (s *Synchronizer) SyncRoom(ctx context.Context, room models.Room) (Change, error) {
	logger := log.With().Str("module", "playback").Str("pin", room.Pin).Logger()

	pb, err := s.player.GetCurrentPlayback(ctx, room.AccessToken)
	switch {
	case errs.IsUnauthorized(err):
		logger.Warn().Err(err).Msg("player rejected credential, invalidating")
		s.snapshots.Delete(room.Pin)
		if err := s.store.ClearAccessToken(ctx, room.Pin); err != nil {
			return NoChange, fmt.Errorf("failed to invalidate credential: %w", err)
		}
		return NoChange, nil
	case errs.IsNotFound(err):
		logger.Debug().Err(err).Msg("no active device")
		return NoChange, nil
	case err != nil:
		return NoChange, fmt.Errorf("failed to get playback: %w", err)
	case pb == nil:
		return NoChange, nil
	}

	next := *pb
	next.ObservedAt = s.now()

	var prev *core.Playback
	if p, ok := s.Snapshot(room.Pin); ok {
		prev = &p
	}

	change := Classify(prev, next, s.driftThreshold)
	if change == NoChange {
		s.snapshots.Store(room.Pin, next)
		return change, nil
	}

	// The registry copy can trail a cursor committed by RecomputeCursor.
	committed, err := s.store.GetRoom(ctx, room.Pin)
	if err != nil {
		return NoChange, fmt.Errorf("failed to get room: %w", err)
	}
	room.CurrentIndex = committed.CurrentIndex
	room.LastPlayedIndex = committed.LastPlayedIndex

	switch change {
	case TrackChanged:
		index, err := s.advance(ctx, room, prev, next)
		if err != nil {
			return change, err
		}
		s.snapshots.Store(room.Pin, next)
		s.publishActive(ctx, room.Pin, index, next)
	case PlayStateChanged, DriftDetected:
		s.snapshots.Store(room.Pin, next)
		logger.Debug().Str("change", change.String()).Msg("publishing corrected playback")
		s.publishActive(ctx, room.Pin, room.CurrentIndex, next)
	}
	return change, nil
}

// advance moves the room's cursor to the newly playing track, clears the
// votes of the track that was playing before and queues the following track
// in the player. It returns the new cursor.
func (s *Synchronizer) advance(ctx context.Context, room models.Room, prev *core.Playback, next core.Playback) (int, error) {
	tracks, err := s.store.ListTracks(ctx, room.Pin)
	if err != nil {
		return room.CurrentIndex, fmt.Errorf("failed to list tracks: %w", err)
	}

	previousID := ""
	if prev != nil {
		previousID = prev.TrackID()
	} else if t, ok := trackAt(tracks, room.CurrentIndex); ok {
		previousID = t.ID
	}

	if previousID != "" && previousID != next.TrackID() {
		if err := s.votes.DeleteVotesForTrack(ctx, room.Pin, previousID); err != nil {
			return room.CurrentIndex, err
		}
	}

	index := indexOf(tracks, next.TrackID())
	if index < 0 {
		log.Warn().Str("module", "playback").Str("pin", room.Pin).Str("uri", next.URI).Msg("playing track is not in the room queue")
		return room.CurrentIndex, nil
	}

	if index != room.CurrentIndex {
		lastPlayed := room.LastPlayedIndex
		if room.CurrentIndex >= 0 {
			lastPlayed = room.CurrentIndex
		}
		if err := s.store.SetCurrentIndex(ctx, room.Pin, index, lastPlayed); err != nil {
			return room.CurrentIndex, fmt.Errorf("failed to persist current index: %w", err)
		}
		log.Info().Str("module", "playback").Str("pin", room.Pin).Int("from", room.CurrentIndex).Int("to", index).Msg("cursor advanced")
	}

	if upcoming, ok := trackAt(tracks, index+1); ok && prev != nil {
		if err := s.player.Enqueue(ctx, room.AccessToken, upcoming.URI()); err != nil {
			log.Warn().Str("module", "playback").Str("pin", room.Pin).Err(err).Msg("failed to enqueue next track")
		}
	}
	return index, nil
}

// RecomputeCursor points the room's cursor at trackID's committed index.
func (s *Synchronizer) RecomputeCursor(ctx context.Context, pin, trackID string) error {
	room, err := s.store.GetRoom(ctx, pin)
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}
	tracks, err := s.store.ListTracks(ctx, pin)
	if err != nil {
		return fmt.Errorf("failed to list tracks: %w", err)
	}

	index := indexOf(tracks, trackID)
	if index < 0 {
		return errs.NotFound("track %s not in room %s", trackID, pin)
	}
	if index == room.CurrentIndex {
		return nil
	}
	if err := s.store.SetCurrentIndex(ctx, pin, index, room.LastPlayedIndex); err != nil {
		return fmt.Errorf("failed to persist current index: %w", err)
	}

	if snap, ok := s.Snapshot(pin); ok {
		s.publishActive(ctx, pin, index, snap)
	}
	return nil
}

func (s *Synchronizer) publishActive(ctx context.Context, pin string, index int, pb core.Playback) {
	s.publisher.Publish(ctx, events.TrackActiveTopic(pin), events.TrackActivePayload{
		Pin:          pin,
		CurrentIndex: index,
		TrackID:      pb.TrackID(),
		URI:          pb.URI,
		ProgressMs:   pb.ProgressMs,
		IsPlaying:    pb.IsPlaying,
	})
}

func indexOf(tracks []models.Track, id string) int {
	for _, t := range tracks {
		if t.ID == id {
			return t.Index
		}
	}
	return -1
}

func trackAt(tracks []models.Track, index int) (models.Track, bool) {
	if index < 0 {
		return models.Track{}, false
	}
	for _, t := range tracks {
		if t.Index == index {
			return t, true
		}
	}
	return models.Track{}, false
}
