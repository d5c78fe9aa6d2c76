package queue

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jukebox-rooms/pkg/models"
)

func makeTracks(ids ...string) []models.Track {
	tracks := make([]models.Track, len(ids))
	for i, id := range ids {
		tracks[i] = models.Track{Pin: "ABCD", ID: id, Index: i}
	}
	return tracks
}

func ids(tracks []models.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}

func TestReorderUpvotedTrackLandsAfterPinnedWindow(t *testing.T) {
	tracks := makeTracks("t0", "t1", "t2", "t3", "t4")

	plan := Reorder(tracks, map[string]int{"t3": 2}, 0)

	assert.Equal(t, []string{"t0", "t1", "t3", "t2", "t4"}, ids(plan.Order))
	assert.Equal(t, map[string]int{"t3": 2, "t2": 3}, plan.Moves)
	assert.Equal(t, 2, plan.Reorders())
	assert.False(t, plan.CurrentMoved(0))
}

func TestReorderPositiveBlockByScore(t *testing.T) {
	tracks := makeTracks("t0", "t1", "t2", "a", "b", "t5")

	plan := Reorder(tracks, map[string]int{"a": 2, "b": 1}, 0)
	assert.Equal(t, []string{"t0", "t1", "a", "b", "t2", "t5"}, ids(plan.Order))

	plan = Reorder(tracks, map[string]int{"a": 1, "b": 2}, 0)
	assert.Equal(t, []string{"t0", "t1", "b", "a", "t2", "t5"}, ids(plan.Order))
}

func TestReorderTiesKeepOriginalOrder(t *testing.T) {
	tracks := makeTracks("t0", "t1", "x", "y", "z")

	plan := Reorder(tracks, map[string]int{"z": 1, "y": 1}, 0)
	assert.Equal(t, []string{"t0", "t1", "y", "z", "x"}, ids(plan.Order))

	plan = Reorder(tracks, map[string]int{"z": -1, "x": -1}, 0)
	assert.Equal(t, []string{"t0", "t1", "y", "x", "z"}, ids(plan.Order))
}

func TestReorderNegativeOnly(t *testing.T) {
	tracks := makeTracks("t0", "t1", "a", "b", "c", "d")

	plan := Reorder(tracks, map[string]int{"a": -3, "b": -1}, 0)

	assert.Equal(t, []string{"t0", "t1", "c", "d", "b", "a"}, ids(plan.Order))
}

func TestReorderPinnedWindowNeverMoves(t *testing.T) {
	tracks := makeTracks("t0", "t1", "t2", "t3", "t4", "t5")

	plan := Reorder(tracks, map[string]int{"t2": -5, "t3": -1, "t4": 4, "t5": 3}, 2)

	assert.Equal(t, "t2", plan.Order[2].ID)
	assert.Equal(t, "t3", plan.Order[3].ID)
	assert.Equal(t, []string{"t0", "t1", "t2", "t3", "t4", "t5"}, ids(plan.Order))
	assert.Zero(t, plan.Reorders())
}

func TestReorderPinnedWindowAtEndOfQueue(t *testing.T) {
	tracks := makeTracks("t0", "t1", "t2")

	plan := Reorder(tracks, map[string]int{"t0": 1, "t2": -1}, 2)

	assert.Equal(t, []string{"t1", "t2", "t0"}, ids(plan.Order))
	assert.Equal(t, 1, plan.CurrentIndex)
	assert.True(t, plan.CurrentMoved(2))
}

func TestReorderZeroScoreStaysInPlace(t *testing.T) {
	tracks := makeTracks("t0", "t1", "t2", "t3")

	plan := Reorder(tracks, map[string]int{"t2": 0, "t3": 1}, 0)

	assert.Equal(t, []string{"t0", "t1", "t3", "t2"}, ids(plan.Order))
}

func TestReorderWithoutVotesIsNoop(t *testing.T) {
	tracks := makeTracks("t0", "t1", "t2")

	plan := Reorder(tracks, nil, 0)

	assert.Zero(t, plan.Reorders())
	assert.Equal(t, []string{"t0", "t1", "t2"}, ids(plan.Order))
}

func TestReorderUnknownCursorIsNoop(t *testing.T) {
	tracks := makeTracks("t0", "t1", "t2")

	plan := Reorder(tracks, map[string]int{"t2": 3}, 7)

	assert.Zero(t, plan.Reorders())
	assert.False(t, plan.CurrentMoved(7))
}

func TestReorderInputOrderDoesNotMatter(t *testing.T) {
	tracks := makeTracks("t0", "t1", "t2", "t3", "t4")
	shuffled := []models.Track{tracks[3], tracks[0], tracks[4], tracks[2], tracks[1]}

	plan := Reorder(shuffled, map[string]int{"t4": 1}, 0)

	assert.Equal(t, []string{"t0", "t1", "t4", "t2", "t3"}, ids(plan.Order))
}

func TestReorderPropertiesRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 500; round++ {
		n := 1 + rng.Intn(12)
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("t%d", i)
		}
		tracks := makeTracks(names...)
		current := rng.Intn(n)

		scores := make(map[string]int)
		for _, name := range names {
			if rng.Intn(2) == 0 {
				scores[name] = rng.Intn(7) - 3
			}
		}

		plan := Reorder(tracks, scores, current)
		require.Len(t, plan.Order, n)

		seen := make(map[string]bool)
		for i, tr := range plan.Order {
			assert.Equal(t, i, tr.Index, "indices must be dense")
			assert.False(t, seen[tr.ID], "duplicate track %s", tr.ID)
			seen[tr.ID] = true
		}

		curID := names[current]
		assert.Equal(t, curID, plan.CurrentTrackID)
		curPos := plan.CurrentIndex
		assert.Equal(t, curID, plan.Order[curPos].ID)
		if current+1 < n {
			require.Less(t, curPos+1, n)
			assert.Equal(t, names[current+1], plan.Order[curPos+1].ID, "next track must follow current")
		}

		changed := 0
		for i, tr := range plan.Order {
			orig := 0
			fmt.Sscanf(tr.ID, "t%d", &orig)
			if orig != i {
				changed++
				assert.Equal(t, i, plan.Moves[tr.ID])
			}
		}
		assert.Equal(t, changed, plan.Reorders())
	}
}
