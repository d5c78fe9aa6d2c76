package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinFromTopic(t *testing.T) {
	assert.Equal(t, "ABCD", PinFromTopic(TrackActiveTopic("ABCD")))
	assert.Equal(t, "WXYZ", PinFromTopic(VotesTopic("WXYZ")))
	assert.Equal(t, "", PinFromTopic("song-votes"))
	assert.Equal(t, "", PinFromTopic("rooms/ABCD/votes"))
}

func TestNewMessageKeysByPin(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := NewMessage(TracksReorderedTopic("QRST"), TracksReorderedPayload{Pin: "QRST", Reorders: 2}, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("QRST"), msg.Key)

	var event Event
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "room/QRST/tracks/reordered", event.Topic)
	assert.Equal(t, "QRST", event.Pin)
	assert.True(t, now.Equal(event.Timestamp))
	assert.NotEmpty(t, event.ID)
	assert.JSONEq(t, `{"pin":"QRST","reorders":2,"tracks":null}`, string(event.Payload))
}

func TestNewMessageRejectsUnencodablePayload(t *testing.T) {
	_, err := NewMessage(VotesTopic("ABCD"), make(chan int), time.Now())
	assert.Error(t, err)
}
