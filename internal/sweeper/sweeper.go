package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jukebox-rooms/pkg/models"
)

type Store interface {
	ListRoomsCreatedBefore(ctx context.Context, before time.Time) ([]models.Room, error)
	DeleteRooms(ctx context.Context, pins ...string) error
}

// Sweeper deletes rooms, with their tracks and votes, once they are older
// than maxLifetime.
type Sweeper struct {
	store       Store
	maxLifetime time.Duration
	now         func() time.Time
}

func New(store Store, maxLifetime time.Duration) *Sweeper {
	return &Sweeper{store: store, maxLifetime: maxLifetime, now: time.Now}
}

func (s *Sweeper) Tick(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep returns the pins it deleted.
func (s *Sweeper) Sweep(ctx context.Context) ([]string, error) {
	cutoff := s.now().Add(-s.maxLifetime)
	rooms, err := s.store.ListRoomsCreatedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired rooms: %w", err)
	}
	if len(rooms) == 0 {
		return nil, nil
	}

	pins := make([]string, len(rooms))
	for i, r := range rooms {
		pins[i] = r.Pin
	}
	if err := s.store.DeleteRooms(ctx, pins...); err != nil {
		return nil, fmt.Errorf("failed to delete expired rooms: %w", err)
	}

	log.Info().Str("module", "sweeper").Strs("pins", pins).Time("cutoff", cutoff).Msg("deleted expired rooms")
	return pins, nil
}
