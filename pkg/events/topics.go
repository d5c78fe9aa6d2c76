package events

import (
	"fmt"
	"strings"

	"github.com/jukebox-rooms/pkg/models"
)

func TrackActiveTopic(pin string) string    { return fmt.Sprintf("room/%s/tracks/active", pin) }
func TracksReorderedTopic(pin string) string { return fmt.Sprintf("room/%s/tracks/reordered", pin) }
func TracksAddedTopic(pin string) string     { return fmt.Sprintf("room/%s/tracks/added", pin) }
func VotesTopic(pin string) string           { return fmt.Sprintf("room/%s/votes", pin) }

// PinFromTopic returns the pin segment of a room topic, or "" if topic is not
// of the form room/{pin}/...
func PinFromTopic(topic string) string {
	parts := strings.SplitN(topic, "/", 3)
	if len(parts) < 3 || parts[0] != "room" {
		return ""
	}
	return parts[1]
}

// Event payload types
type TrackActivePayload struct {
	Pin          string `json:"pin"`
	CurrentIndex int    `json:"current_index"`
	TrackID      string `json:"track_id"`
	URI          string `json:"uri"`
	ProgressMs   int    `json:"progress_ms"`
	IsPlaying    bool   `json:"is_playing"`
}

type TracksReorderedPayload struct {
	Pin      string         `json:"pin"`
	Reorders int            `json:"reorders"`
	Tracks   []models.Track `json:"tracks"`
}

type TracksAddedPayload struct {
	Pin    string         `json:"pin"`
	Tracks []models.Track `json:"tracks"`
}

type VotesPayload struct {
	Pin    string         `json:"pin"`
	Votes  []models.Vote  `json:"votes"`
	Scores map[string]int `json:"scores"`
}
