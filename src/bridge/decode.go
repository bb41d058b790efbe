package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/loomchat/realtime/src/event"
)

// notification is the wire shape the persistence layer publishes. Anything
// that does not decode into this shape, or names an event type outside the
// closed enumeration, is quarantined at this boundary.
type notification struct {
	Event     string         `json:"event"`
	ChannelID string         `json:"channel_id"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"ts,omitzero"`
	Data      map[string]any `json:"data,omitempty"`
}

// decode parses a raw notification payload into a typed ChannelEvent.
func decode(topic, payload string) (event.ChannelEvent, *event.Error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return event.ChannelEvent{}, event.Wrap(event.CodeParseError,
			fmt.Sprintf("malformed notification on topic %q", topic), err)
	}
	t := event.Type(n.Event)
	if !event.KnownType(t) {
		return event.ChannelEvent{}, event.E(event.CodeParseError,
			fmt.Sprintf("unknown event type %q on topic %q", n.Event, topic))
	}
	if n.ChannelID == "" || n.UserID == "" {
		return event.ChannelEvent{}, event.E(event.CodeParseError,
			fmt.Sprintf("notification on topic %q missing channel or user id", topic))
	}

	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return event.ChannelEvent{
		Type:      t,
		ChannelID: n.ChannelID,
		UserID:    n.UserID,
		Timestamp: ts,
		Data:      n.Data,
	}, nil
}
