package event

import "time"

// Type identifies the kind of a channel event. The set is closed: anything
// arriving from outside the process that does not match one of these values
// is rejected at the decode boundary.
type Type string

const (
	ChannelCreated  Type = "channel.created"
	ChannelUpdated  Type = "channel.updated"
	ChannelArchived Type = "channel.archived"
	ChannelDeleted  Type = "channel.deleted"

	MemberJoined  Type = "channel.member_joined"
	MemberLeft    Type = "channel.member_left"
	MemberUpdated Type = "channel.member_updated"

	MessageCreated       Type = "message.created"
	MessageUpdated       Type = "message.updated"
	MessageDeleted       Type = "message.deleted"
	ThreadMessageCreated Type = "message.thread_created"

	ReactionAdded   Type = "reaction.added"
	ReactionRemoved Type = "reaction.removed"

	TypingStarted   Type = "typing.started"
	TypingStopped   Type = "typing.stopped"
	PresenceChanged Type = "presence.changed"
)

var knownTypes = map[Type]bool{
	ChannelCreated:       true,
	ChannelUpdated:       true,
	ChannelArchived:      true,
	ChannelDeleted:       true,
	MemberJoined:         true,
	MemberLeft:           true,
	MemberUpdated:        true,
	MessageCreated:       true,
	MessageUpdated:       true,
	MessageDeleted:       true,
	ThreadMessageCreated: true,
	ReactionAdded:        true,
	ReactionRemoved:      true,
	TypingStarted:        true,
	TypingStopped:        true,
	PresenceChanged:      true,
}

// KnownType reports whether t is part of the closed event enumeration.
func KnownType(t Type) bool { return knownTypes[t] }

// ChannelEvent is the unit of realtime delivery. It is constructed at the
// point of origin, immutable thereafter, and discarded after fan-out.
type ChannelEvent struct {
	Type      Type           `json:"type"`
	ChannelID string         `json:"channel_id"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// New builds a ChannelEvent stamped with the current time.
func New(t Type, channelID, userID string, data map[string]any) ChannelEvent {
	return ChannelEvent{
		Type:      t,
		ChannelID: channelID,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Validate checks the identifiers required for routing.
func (e ChannelEvent) Validate() error {
	if e.ChannelID == "" {
		return E(CodeInvalidRequest, "event channel id is required")
	}
	if e.UserID == "" {
		return E(CodeInvalidRequest, "event user id is required")
	}
	return nil
}
