package bus

import "sort"

// OnSubscribe registers a callback invoked after each new subscription.
func (b *Bus) OnSubscribe(cb func(channelID, userID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSubscribe = append(b.onSubscribe, cb)
}

// OnUnsubscribe registers a callback invoked after subscriptions are removed.
func (b *Bus) OnUnsubscribe(cb func(channelID, userID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUnsubscribe = append(b.onUnsubscribe, cb)
}

// Channels returns channel IDs with their live subscription counts.
func (b *Bus) Channels() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make(map[string]int, len(b.subs))
	for ch, subs := range b.subs {
		result[ch] = len(subs)
	}
	return result
}

// SubscriberCount returns the number of live subscriptions on a channel.
func (b *Bus) SubscriberCount(channelID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channelID])
}

// TypingUsers returns the IDs of users currently typing in a channel, sorted.
func (b *Bus) TypingUsers(channelID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.typing[channelID]))
	for id := range b.typing[channelID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
