package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jukebox-rooms/internal/errs"
	"github.com/jukebox-rooms/pkg/models"
)

// MemStore is an in-memory core.Store. WriteCount counts every mutation
// so tests can assert that a code path did not touch the store.
type MemStore struct {
	mu     sync.Mutex
	rooms  map[string]models.Room
	tracks map[string][]models.Track
	votes  map[string][]models.Vote
	writes int
}

func NewMemStore() *MemStore {
	return &MemStore{
		rooms:  make(map[string]models.Room),
		tracks: make(map[string][]models.Track),
		votes:  make(map[string][]models.Vote),
	}
}

// SeedRoom stores a room with tracks named after ids, indexed in order.
func (s *MemStore) SeedRoom(room models.Room, trackIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	s.rooms[room.Pin] = room
	tracks := make([]models.Track, 0, len(trackIDs))
	for i, id := range trackIDs {
		tracks = append(tracks, models.Track{Pin: room.Pin, ID: id, Index: i, Name: id, DurationMs: 180000})
	}
	s.tracks[room.Pin] = tracks
}

func (s *MemStore) SeedVote(pin, voterID, trackID string, state models.VoteState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[pin] = append(s.votes[pin], models.Vote{
		ID: uuid.New(), Pin: pin, VoterID: voterID, TrackID: trackID, State: state,
	})
}

// TrackOrder returns track ids ordered by index.
func (s *MemStore) TrackOrder(pin string) []string {
	tracks, _ := s.ListTracks(context.Background(), pin)
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

func (s *MemStore) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Rooms makes MemStore usable as a core.RoomSource.
func (s *MemStore) Rooms() []models.Room {
	rooms, _ := s.ListActiveRooms(context.Background())
	return rooms
}

func (s *MemStore) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Room
	for _, r := range s.rooms {
		if r.Active() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pin < out[j].Pin })
	return out, nil
}

func (s *MemStore) GetRoom(ctx context.Context, pin string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[pin]
	if !ok {
		return nil, errs.NotFound("room %s not found", pin)
	}
	return &r, nil
}

func (s *MemStore) FindRoomByOwner(ctx context.Context, ownerID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.OwnerID == ownerID {
			return &r, nil
		}
	}
	return nil, errs.NotFound("no room owned by %s", ownerID)
}

func (s *MemStore) CreateRoom(ctx context.Context, room *models.Room, tracks []models.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Pin]; ok {
		return errs.Conflict("room %s already exists", room.Pin)
	}
	s.writes++
	s.rooms[room.Pin] = *room
	s.tracks[room.Pin] = append([]models.Track(nil), tracks...)
	return nil
}

func (s *MemStore) SetCurrentIndex(ctx context.Context, pin string, currentIndex, lastPlayedIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[pin]
	if !ok {
		return errs.NotFound("room %s not found", pin)
	}
	s.writes++
	r.CurrentIndex = currentIndex
	r.LastPlayedIndex = lastPlayedIndex
	s.rooms[pin] = r
	return nil
}

func (s *MemStore) SetTokensByOwner(ctx context.Context, ownerID, accessToken, refreshToken string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	var n int64
	for pin, r := range s.rooms {
		if r.OwnerID != ownerID {
			continue
		}
		r.AccessToken = accessToken
		if refreshToken != "" {
			r.RefreshToken = refreshToken
		}
		s.rooms[pin] = r
		n++
	}
	return n, nil
}

func (s *MemStore) ClearAccessToken(ctx context.Context, pin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[pin]
	if !ok {
		return errs.NotFound("room %s not found", pin)
	}
	s.writes++
	r.AccessToken = ""
	s.rooms[pin] = r
	return nil
}

func (s *MemStore) ListRoomsCreatedBefore(ctx context.Context, before time.Time) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Room
	for _, r := range s.rooms {
		if r.CreatedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemStore) DeleteRooms(ctx context.Context, pins ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	for _, pin := range pins {
		delete(s.rooms, pin)
		delete(s.tracks, pin)
		delete(s.votes, pin)
	}
	return nil
}

func (s *MemStore) ListTracks(ctx context.Context, pin string) ([]models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Track(nil), s.tracks[pin]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *MemStore) AppendTracks(ctx context.Context, pin string, tracks []models.Track) ([]models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[pin]; !ok {
		return nil, errs.NotFound("room %s not found", pin)
	}
	existing := make(map[string]bool)
	next := 0
	for _, t := range s.tracks[pin] {
		existing[t.ID] = true
		if t.Index >= next {
			next = t.Index + 1
		}
	}
	var added []models.Track
	for _, t := range tracks {
		if existing[t.ID] {
			continue
		}
		existing[t.ID] = true
		t.Pin = pin
		t.Index = next
		next++
		added = append(added, t)
	}
	if len(added) > 0 {
		s.writes++
		s.tracks[pin] = append(s.tracks[pin], added...)
	}
	return added, nil
}

func (s *MemStore) SetTrackIndexes(ctx context.Context, pin string, indexes map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	tracks := s.tracks[pin]
	for i := range tracks {
		if idx, ok := indexes[tracks[i].ID]; ok {
			tracks[i].Index = idx
		}
	}
	return nil
}

func (s *MemStore) ListVotes(ctx context.Context, pin string) ([]models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Vote(nil), s.votes[pin]...), nil
}

func (s *MemStore) UpsertVote(ctx context.Context, vote *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	votes := s.votes[vote.Pin]
	for i := range votes {
		if votes[i].VoterID == vote.VoterID && votes[i].TrackID == vote.TrackID {
			votes[i].State = vote.State
			return nil
		}
	}
	s.votes[vote.Pin] = append(votes, *vote)
	return nil
}

func (s *MemStore) DeleteVote(ctx context.Context, pin, voterID, trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.votes[pin] = filterVotes(s.votes[pin], func(v models.Vote) bool {
		return v.VoterID == voterID && v.TrackID == trackID
	})
	return nil
}

func (s *MemStore) DeleteVotesForTrack(ctx context.Context, pin, trackID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	before := len(s.votes[pin])
	s.votes[pin] = filterVotes(s.votes[pin], func(v models.Vote) bool { return v.TrackID == trackID })
	return int64(before - len(s.votes[pin])), nil
}

func filterVotes(votes []models.Vote, drop func(models.Vote) bool) []models.Vote {
	out := votes[:0]
	for _, v := range votes {
		if !drop(v) {
			out = append(out, v)
		}
	}
	return out
}
