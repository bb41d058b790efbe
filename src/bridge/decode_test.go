package bridge

import (
	"testing"
	"time"

	"github.com/loomchat/realtime/src/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValid(t *testing.T) {
	ev, err := decode(TopicMessage,
		`{"event":"message.created","channel_id":"c1","user_id":"u1","data":{"text":"hi"}}`)
	require.Nil(t, err)
	assert.Equal(t, event.MessageCreated, ev.Type)
	assert.Equal(t, "c1", ev.ChannelID)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "hi", ev.Data["text"])
	assert.False(t, ev.Timestamp.IsZero())
}

func TestDecodeCarriesTimestamp(t *testing.T) {
	ev, err := decode(TopicMessage,
		`{"event":"message.created","channel_id":"c1","user_id":"u1","ts":"2026-08-30T12:00:00Z"}`)
	require.Nil(t, err)
	want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	assert.True(t, ev.Timestamp.Equal(want))
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := decode(TopicMessage, `{"event":`)
	require.NotNil(t, err)
	assert.Equal(t, event.CodeParseError, err.Code)
}

func TestDecodeRejectsUnknownEventType(t *testing.T) {
	_, err := decode(TopicMessage,
		`{"event":"message.scrambled","channel_id":"c1","user_id":"u1"}`)
	require.NotNil(t, err)
	assert.Equal(t, event.CodeParseError, err.Code)
	assert.Contains(t, err.Message, "message.scrambled")
}

func TestDecodeRejectsMissingIdentifiers(t *testing.T) {
	_, err := decode(TopicMessage, `{"event":"message.created","user_id":"u1"}`)
	require.NotNil(t, err)
	assert.Equal(t, event.CodeParseError, err.Code)

	_, err = decode(TopicMessage, `{"event":"message.created","channel_id":"c1"}`)
	require.NotNil(t, err)
	assert.Equal(t, event.CodeParseError, err.Code)
}
