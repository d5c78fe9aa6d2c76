package queue

import (
	"sort"

	"github.com/jukebox-rooms/pkg/models"
)

// Plan is the outcome of reordering one room's queue.
type Plan struct {
	// Order is the full queue with Index rewritten to 0..n-1.
	Order []models.Track
	// Moves holds new indexes keyed by track id, only for tracks whose index changed.
	Moves map[string]int
	// CurrentTrackID is the track at the room's cursor before the reorder.
	CurrentTrackID string
	// CurrentIndex is the cursor track's position in Order.
	CurrentIndex int
}

func (p Plan) Reorders() int { return len(p.Moves) }

// CurrentMoved reports whether the playing track ended up at a new index.
func (p Plan) CurrentMoved(previous int) bool {
	return p.CurrentTrackID != "" && p.CurrentIndex != previous
}

type scoredTrack struct {
	track models.Track
	score int
}

// Reorder computes the vote-driven order for a room's queue. The playing
// track and the one after it keep their relative place. Every other track
// with a non-zero score is pulled out: positive tracks are reinserted right
// after the pinned pair, best score first, and negative tracks go to the end,
// least negative first. Ties keep the original relative order.
//
// If currentIndex does not match any track the queue is returned unchanged.
func Reorder(tracks []models.Track, scores map[string]int, currentIndex int) Plan {
	sorted := make([]models.Track, len(tracks))
	copy(sorted, tracks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	cursor := -1
	for i, t := range sorted {
		if t.Index == currentIndex {
			cursor = i
			break
		}
	}
	if cursor < 0 {
		return Plan{Order: sorted, Moves: map[string]int{}, CurrentIndex: currentIndex}
	}

	pinned := map[string]bool{sorted[cursor].ID: true}
	lastPinned := sorted[cursor].ID
	if cursor+1 < len(sorted) {
		pinned[sorted[cursor+1].ID] = true
		lastPinned = sorted[cursor+1].ID
	}

	var working []models.Track
	var positive, negative []scoredTrack
	for _, t := range sorted {
		score := scores[t.ID]
		switch {
		case pinned[t.ID] || score == 0:
			working = append(working, t)
		case score > 0:
			positive = append(positive, scoredTrack{t, score})
		default:
			negative = append(negative, scoredTrack{t, score})
		}
	}

	byScoreDesc := func(s []scoredTrack) func(i, j int) bool {
		return func(i, j int) bool { return s[i].score > s[j].score }
	}
	sort.SliceStable(positive, byScoreDesc(positive))
	sort.SliceStable(negative, byScoreDesc(negative))

	anchor := 0
	for i, t := range working {
		if t.ID == lastPinned {
			anchor = i + 1
			break
		}
	}

	order := make([]models.Track, 0, len(sorted))
	order = append(order, working[:anchor]...)
	for _, st := range positive {
		order = append(order, st.track)
	}
	order = append(order, working[anchor:]...)
	for _, st := range negative {
		order = append(order, st.track)
	}

	plan := Plan{
		Order:          order,
		Moves:          make(map[string]int),
		CurrentTrackID: sorted[cursor].ID,
	}
	for i := range order {
		if order[i].Index != i {
			plan.Moves[order[i].ID] = i
			order[i].Index = i
		}
		if order[i].ID == plan.CurrentTrackID {
			plan.CurrentIndex = i
		}
	}
	return plan
}
