package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const trackURIPrefix = "spotify:track:"

type Room struct {
	Pin             string    `json:"pin" gorm:"primaryKey;size:4"`
	OwnerID         string    `json:"owner_id" gorm:"size:128;index;not null"`
	AccessToken     string    `json:"-" gorm:"size:512"`
	RefreshToken    string    `json:"-" gorm:"size:512"`
	CurrentIndex    int       `json:"current_index" gorm:"not null;default:-1"`
	LastPlayedIndex int       `json:"last_played_index" gorm:"not null;default:-1"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Active reports whether the room holds a usable access credential.
func (r Room) Active() bool { return r.AccessToken != "" }

// InProgress reports whether playback has been started for the room.
func (r Room) InProgress() bool { return r.CurrentIndex >= 0 }

// Track is one entry of a room's queue. ID is the Spotify track id; indices are
// dense and 0-based per pin. (pin, index) is not unique at the schema level:
// reorders rewrite indices row by row inside a transaction.
type Track struct {
	Pin        string    `json:"pin" gorm:"primaryKey;size:4"`
	ID         string    `json:"id" gorm:"primaryKey;size:64"`
	Index      int       `json:"index" gorm:"column:position;index;not null"`
	Name       string    `json:"name" gorm:"size:512"`
	Artists    string    `json:"artists" gorm:"size:1024"`
	DurationMs int       `json:"duration_ms"`
	Image      string    `json:"image" gorm:"size:1024"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (t Track) URI() string { return trackURIPrefix + t.ID }

// TrackIDFromURI extracts the track id from a "spotify:track:<id>" URI. Any
// other input is returned unchanged.
func TrackIDFromURI(uri string) string {
	if id, ok := strings.CutPrefix(uri, trackURIPrefix); ok {
		return id
	}
	return uri
}

type VoteState string

const (
	VoteUp   VoteState = "upvote"
	VoteDown VoteState = "downvote"
	VoteNone VoteState = "none"
)

func (s VoteState) Valid() bool {
	switch s {
	case VoteUp, VoteDown, VoteNone:
		return true
	}
	return false
}

// Weight is the contribution of a vote to its track's score.
func (s VoteState) Weight() int {
	switch s {
	case VoteUp:
		return 1
	case VoteDown:
		return -1
	}
	return 0
}

type Vote struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:char(36)"`
	Pin       string    `json:"pin" gorm:"size:4;not null;uniqueIndex:idx_vote_voter_track,priority:1"`
	VoterID   string    `json:"voter_id" gorm:"size:128;not null;uniqueIndex:idx_vote_voter_track,priority:2"`
	TrackID   string    `json:"track_id" gorm:"size:64;not null;uniqueIndex:idx_vote_voter_track,priority:3"`
	State     VoteState `json:"state" gorm:"size:16;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
