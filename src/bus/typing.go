package bus

import "github.com/loomchat/realtime/src/event"

// StartTyping marks a user as typing in a channel and emits TYPING_STARTED.
// Idempotent: a user already typing causes no state change and no event.
// Timeout policy belongs to the emitting side; the bus never expires entries.
func (b *Bus) StartTyping(channelID, userID string) error {
	if err := validatePair(channelID, userID); err != nil {
		return err
	}

	b.mu.Lock()
	if b.typing[channelID][userID] {
		b.mu.Unlock()
		return nil
	}
	if b.typing[channelID] == nil {
		b.typing[channelID] = make(map[string]bool)
	}
	b.typing[channelID][userID] = true
	b.mu.Unlock()

	if err := b.Emit(event.New(event.TypingStarted, channelID, userID, nil)); err != nil {
		return event.Wrap(event.CodeTypingStartFailed, "emit typing started", err)
	}
	return nil
}

// StopTyping clears a user's typing state and emits TYPING_STOPPED.
// Stopping a user who is not typing is a no-op.
func (b *Bus) StopTyping(channelID, userID string) error {
	if err := validatePair(channelID, userID); err != nil {
		return err
	}

	b.mu.Lock()
	if !b.typing[channelID][userID] {
		b.mu.Unlock()
		return nil
	}
	delete(b.typing[channelID], userID)
	if len(b.typing[channelID]) == 0 {
		delete(b.typing, channelID)
	}
	b.mu.Unlock()

	if err := b.Emit(event.New(event.TypingStopped, channelID, userID, nil)); err != nil {
		return event.Wrap(event.CodeTypingStopFailed, "emit typing stopped", err)
	}
	return nil
}

// UpdatePresence emits PRESENCE_CHANGED for a user in a channel. Presence is
// not deduplicated: every call emits.
func (b *Bus) UpdatePresence(channelID, userID string, isOnline bool) error {
	if err := validatePair(channelID, userID); err != nil {
		return err
	}

	ev := event.New(event.PresenceChanged, channelID, userID, map[string]any{"isOnline": isOnline})
	if err := b.Emit(ev); err != nil {
		return event.Wrap(event.CodePresenceUpdateFailed, "emit presence changed", err)
	}
	return nil
}

func validatePair(channelID, userID string) error {
	if channelID == "" {
		return event.E(event.CodeInvalidRequest, "channel id is required")
	}
	if userID == "" {
		return event.E(event.CodeInvalidRequest, "user id is required")
	}
	return nil
}
