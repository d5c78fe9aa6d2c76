// Package scheduler runs the reconciliation loops. Each loop waits a fixed
// delay after an iteration completes before starting the next one, so a slow
// iteration delays the schedule instead of overlapping with itself.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/jukebox-rooms/pkg/models"
)

// Run calls fn immediately and then again delay after each call returns,
// until ctx is cancelled. Errors from fn are logged and never stop the loop.
func Run(ctx context.Context, name string, delay time.Duration, fn func(context.Context) error) {
	logger := log.With().Str("module", "scheduler").Str("loop", name).Logger()
	logger.Info().Dur("delay", delay).Msg("loop started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("loop stopped")
			return
		case <-timer.C:
		}

		var pc panics.Catcher
		pc.Try(func() {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("iteration failed")
			}
		})
		if r := pc.Recovered(); r != nil {
			logger.Error().Err(r.AsError()).Msg("iteration panicked")
		}

		timer.Reset(delay)
	}
}

// ForEachRoom runs fn for every room concurrently and returns once all of
// them have settled. A failing or panicking room is logged and does not
// affect its siblings.
func ForEachRoom(ctx context.Context, name string, rooms []models.Room, fn func(context.Context, models.Room) error) {
	var wg conc.WaitGroup
	for _, room := range rooms {
		wg.Go(func() {
			var pc panics.Catcher
			pc.Try(func() {
				if err := fn(ctx, room); err != nil {
					log.Error().Str("module", name).Str("pin", room.Pin).Err(err).Msg("room task failed")
				}
			})
			if r := pc.Recovered(); r != nil {
				log.Error().Str("module", name).Str("pin", room.Pin).Err(r.AsError()).Msg("room task panicked")
			}
		})
	}
	wg.Wait()
}
