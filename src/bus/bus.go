package bus

import (
	"errors"
	"sync"

	"github.com/loomchat/realtime/src/event"
	"github.com/rs/zerolog"
)

// ErrClosed is returned when emitting on a stopped bus.
var ErrClosed = errors.New("event bus closed")

// Sink is the capability the bus needs to push events to one client
// connection. Deliver must not block; a sink that cannot accept an event
// returns an error and the event is dropped for that sink only.
type Sink interface {
	Deliver(ev event.ChannelEvent) error
}

type subscription struct {
	userID string
	sink   Sink
}

// Bus fans channel-scoped events out to subscribed client sinks and tracks
// ephemeral typing state. One instance per process; handlers and the
// notification bridge all emit through it.
type Bus struct {
	subs   map[string][]subscription // channelID -> subscriptions
	typing map[string]map[string]bool

	broadcast chan event.ChannelEvent
	done      chan struct{}
	stopOnce  sync.Once

	onSubscribe   []func(channelID, userID string)
	onUnsubscribe []func(channelID, userID string)

	mu     sync.RWMutex
	logger zerolog.Logger
}

// New creates a Bus. Call Run in a goroutine to start delivery.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:      make(map[string][]subscription),
		typing:    make(map[string]map[string]bool),
		broadcast: make(chan event.ChannelEvent, 256),
		done:      make(chan struct{}),
		logger:    logger.With().Str("component", "bus").Logger(),
	}
}

// Run starts the delivery loop. Events queued by Emit are fanned out here,
// one at a time, which gives all subscribers of a channel a single
// per-process delivery order.
func (b *Bus) Run() {
	for {
		select {
		case ev := <-b.broadcast:
			b.deliver(ev)
		case <-b.done:
			return
		}
	}
}

// Stop halts the delivery loop. Idempotent.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Subscribe registers a sink for all events on a channel. Duplicate
// (channel, user) subscriptions are allowed and all of them are delivered to.
func (b *Bus) Subscribe(channelID, userID string, sink Sink) error {
	if channelID == "" {
		return event.E(event.CodeInvalidRequest, "channel id is required")
	}
	if userID == "" {
		return event.E(event.CodeInvalidRequest, "user id is required")
	}
	if sink == nil {
		return event.E(event.CodeInvalidRequest, "sink is required")
	}

	b.mu.Lock()
	b.subs[channelID] = append(b.subs[channelID], subscription{userID: userID, sink: sink})
	cbs := b.onSubscribe
	b.mu.Unlock()

	b.logger.Debug().Str("channel_id", channelID).Str("user_id", userID).Msg("subscribed")
	for _, cb := range cbs {
		cb(channelID, userID)
	}
	return nil
}

// Unsubscribe removes every subscription matching the (channel, user) pair.
// Removing a pair that was never subscribed is a no-op.
func (b *Bus) Unsubscribe(channelID, userID string) {
	b.mu.Lock()
	subs := b.subs[channelID]
	kept := subs[:0]
	for _, s := range subs {
		if s.userID != userID {
			kept = append(kept, s)
		}
	}
	removed := len(subs) - len(kept)
	if len(kept) == 0 {
		delete(b.subs, channelID)
	} else {
		b.subs[channelID] = kept
	}
	cbs := b.onUnsubscribe
	b.mu.Unlock()

	if removed == 0 {
		return
	}
	b.logger.Debug().Str("channel_id", channelID).Str("user_id", userID).Msg("unsubscribed")
	for _, cb := range cbs {
		cb(channelID, userID)
	}
}

// Emit queues an event for delivery to every subscriber of its channel.
// A channel with no subscribers is a successful no-op. Per-sink write
// failures are logged and never surfaced to the caller.
func (b *Bus) Emit(ev event.ChannelEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.broadcast <- ev:
		return nil
	case <-b.done:
		return ErrClosed
	}
}

func (b *Bus) deliver(ev event.ChannelEvent) {
	b.mu.RLock()
	subs := b.subs[ev.ChannelID]
	// Copy so sink writes happen without holding the lock.
	targets := make([]subscription, len(subs))
	copy(targets, subs)
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.sink.Deliver(ev); err != nil {
			b.logger.Warn().
				Err(err).
				Str("channel_id", ev.ChannelID).
				Str("user_id", s.userID).
				Str("type", string(ev.Type)).
				Msg("sink delivery failed, dropping")
		}
	}
}
