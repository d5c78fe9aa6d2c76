package registry

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/pkg/models"
)

type RoomLister interface {
	ListActiveRooms(ctx context.Context) ([]models.Room, error)
}

type snapshot struct {
	rooms []models.Room
	byPin map[string]models.Room
}

// Registry caches the rooms that currently hold an access credential. Every
// refresh swaps in a complete new snapshot; readers never see a partial one.
type Registry struct {
	store   RoomLister
	current atomic.Pointer[snapshot]
}

func New(store RoomLister) *Registry {
	r := &Registry{store: store}
	r.current.Store(&snapshot{byPin: map[string]models.Room{}})
	return r
}

// Rooms returns a copy of the active room set.
func (r *Registry) Rooms() []models.Room {
	return slices.Clone(r.current.Load().rooms)
}

func (r *Registry) Get(pin string) (models.Room, bool) {
	room, ok := r.current.Load().byPin[pin]
	return room, ok
}

func (r *Registry) Len() int {
	return len(r.current.Load().rooms)
}

// Refresh reloads the active set from the store. On error the previous
// snapshot is kept.
func (r *Registry) Refresh(ctx context.Context) error {
	rooms, err := r.store.ListActiveRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active rooms: %w", err)
	}

	next := &snapshot{
		rooms: make([]models.Room, 0, len(rooms)),
		byPin: make(map[string]models.Room, len(rooms)),
	}
	for _, room := range rooms {
		if !room.Active() {
			continue
		}
		next.rooms = append(next.rooms, room)
		next.byPin[room.Pin] = room
	}

	prev := r.current.Swap(next)
	if len(prev.rooms) != len(next.rooms) {
		log.Info().Str("module", "registry").Int("before", len(prev.rooms)).Int("after", len(next.rooms)).Msg("active rooms changed")
	}
	return nil
}

// Watch refreshes the registry each time a change notification arrives,
// until ctx is done or changes is closed. Bursts of notifications that queue
// up while a refresh is running collapse into a single refresh.
func (r *Registry) Watch(ctx context.Context, changes <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
		}

	drain:
		for {
			select {
			case _, ok := <-changes:
				if !ok {
					break drain
				}
			default:
				break drain
			}
		}

		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Error().Str("module", "registry").Err(err).Msg("refresh after change notification failed")
		}
	}
}
