package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/loomchat/realtime/config"
	"github.com/loomchat/realtime/src/event"
	"github.com/rs/zerolog"
)

// State is the bridge connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Mutation topics the bridge listens on. The persistence layer publishes a
// notification on one of these whenever a row changes.
const (
	TopicChannel = "channel"
	TopicMessage = "message"
	TopicUser    = "user"
)

// Topics returns the fixed set of mutation topics.
func Topics() []string {
	return []string{TopicChannel, TopicMessage, TopicUser}
}

// Handler consumes a decoded channel event from one topic.
type Handler func(ev event.ChannelEvent)

// ErrorEvent is the bridge's internal error stream entry: parse failures
// carry the offending topic and raw payload, transport failures carry the
// wrapped connection error.
type ErrorEvent struct {
	Err     *event.Error
	Topic   string
	Payload string
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// Subscription is the handle returned by OnEvent.
type Subscription struct {
	bridge *Bridge
	topic  string
	id     uint64
}

// Remove unregisters the handler. Safe to call more than once.
func (s *Subscription) Remove() {
	s.bridge.removeHandler(s.topic, s.id)
}

// listenConn abstracts the notification connection so the state machine is
// testable without a running Redis.
type listenConn interface {
	// ReceiveMessage blocks until a notification arrives, returning the
	// topic (prefix stripped) and raw payload.
	ReceiveMessage(ctx context.Context) (topic, payload string, err error)
	Close() error
}

// dialFunc acquires a dedicated notification connection subscribed to the
// given topics.
type dialFunc func(ctx context.Context, topics []string) (listenConn, error)

// Bridge owns a dedicated connection to the data store's notification
// channel, decodes payloads into typed events, and forwards them to
// registered handlers. Connection loss is survived by bounded buffering and
// fixed-delay reconnection with no attempt ceiling.
type Bridge struct {
	dial  dialFunc
	delay time.Duration

	mu       sync.Mutex
	state    State
	conn     listenConn
	cancel   context.CancelFunc
	timer    *time.Timer
	handlers map[string][]handlerEntry
	nextID   uint64
	onError  []func(ErrorEvent)
	buffer   *eventBuffer

	wg     sync.WaitGroup
	logger zerolog.Logger
}

func newBridge(dial dialFunc, cfg config.BridgeConfig, logger zerolog.Logger) *Bridge {
	return &Bridge{
		dial:     dial,
		delay:    cfg.ReconnectDelay,
		state:    StateDisconnected,
		handlers: make(map[string][]handlerEntry),
		buffer:   newEventBuffer(cfg.BufferCapacity),
		logger:   logger.With().Str("component", "bridge").Logger(),
	}
}

// Status returns the current connection state.
func (b *Bridge) Status() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Buffered returns the number of events held while disconnected.
func (b *Bridge) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.len()
}

// OnEvent registers a handler for one topic. Handlers run in registration
// order for each inbound notification; a failing handler never prevents the
// rest from running.
func (b *Bridge) OnEvent(topic string, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], handlerEntry{id: b.nextID, fn: fn})
	return &Subscription{bridge: b, topic: topic, id: b.nextID}
}

// OnError registers a consumer for the internal error-event stream.
func (b *Bridge) OnError(fn func(ErrorEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = append(b.onError, fn)
}

func (b *Bridge) removeHandler(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[topic]
	for i, e := range entries {
		if e.id == id {
			b.handlers[topic] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Start acquires the notification connection and begins listening. On
// failure the bridge is left in the error state and the tagged
// CONNECTION_FAILED error is returned; no retry is scheduled for a failed
// explicit start.
func (b *Bridge) Start() error {
	b.mu.Lock()
	if b.state == StateConnected || b.state == StateConnecting {
		b.mu.Unlock()
		return nil
	}
	b.state = StateConnecting
	b.mu.Unlock()

	return b.connect()
}

// connect dials, transitions to connected, starts the listen loop and
// replays anything buffered while away.
func (b *Bridge) connect() error {
	ctx, cancel := context.WithCancel(context.Background())
	conn, err := b.dial(ctx, Topics())
	if err != nil {
		cancel()
		b.mu.Lock()
		if b.state == StateDisconnected {
			// Stopped while dialing; the failure is moot and must not
			// resurrect the retry loop.
			b.mu.Unlock()
			return nil
		}
		werr := event.Wrap(event.CodeConnectionFailed, "connect notification listener", err)
		b.state = StateError
		b.mu.Unlock()
		b.logger.Error().Err(err).Msg("notification listener connect failed")
		b.dispatchError(ErrorEvent{Err: werr})
		return werr
	}

	b.mu.Lock()
	if b.state == StateDisconnected {
		// Stopped while dialing; discard the fresh connection.
		b.mu.Unlock()
		cancel()
		conn.Close()
		return nil
	}
	b.conn = conn
	b.cancel = cancel
	b.state = StateConnected
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(ctx, conn)

	b.logger.Info().Msg("notification listener connected")
	b.replayBuffer()
	return nil
}

// Stop cancels any pending reconnect timer, releases the connection and
// transitions to disconnected. Idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.closeConnLocked()
	b.state = StateDisconnected
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info().Msg("bridge stopped")
}

// HandleError reacts to a transport-level failure: the connection is
// released, the state moves to reconnecting and an attempt is scheduled
// after the fixed delay. Exported so failure paths are drivable in tests.
func (b *Bridge) HandleError(err error) {
	b.mu.Lock()
	if b.state == StateDisconnected {
		b.mu.Unlock()
		return
	}
	b.closeConnLocked()
	b.state = StateReconnecting
	b.scheduleReconnectLocked()
	b.mu.Unlock()

	b.logger.Warn().Err(err).Dur("retry_in", b.delay).Msg("notification connection lost")
	b.dispatchError(ErrorEvent{Err: event.Wrap(event.CodeConnectionFailed, "notification connection lost", err)})
}

func (b *Bridge) scheduleReconnectLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.reconnect)
}

// reconnect is the timer callback for one attempt. A failed attempt leaves
// the bridge in the error state and schedules the next one; attempts are
// unbounded.
func (b *Bridge) reconnect() {
	b.mu.Lock()
	if b.state != StateReconnecting && b.state != StateError {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.state = StateConnecting
	b.mu.Unlock()

	if b.connect() != nil {
		b.mu.Lock()
		if b.state == StateError {
			b.scheduleReconnectLocked()
		}
		b.mu.Unlock()
	}
}

// closeConnLocked releases the listen goroutine and the connection.
// Caller holds b.mu.
func (b *Bridge) closeConnLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// listen receives notifications until the connection dies or is cancelled.
func (b *Bridge) listen(ctx context.Context, conn listenConn) {
	defer b.wg.Done()
	for {
		topic, payload, err := conn.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.HandleError(err)
			return
		}
		b.Dispatch(topic, payload)
	}
}

// Dispatch is the notification callback: decode the payload and either
// invoke handlers (connected) or buffer the event (anything else). A
// malformed payload feeds the error stream and never halts processing.
func (b *Bridge) Dispatch(topic, payload string) {
	ev, err := decode(topic, payload)
	if err != nil {
		b.logger.Error().Err(err).Str("topic", topic).Str("payload", payload).Msg("malformed notification")
		b.dispatchError(ErrorEvent{Err: err, Topic: topic, Payload: payload})
		return
	}

	b.mu.Lock()
	if b.state != StateConnected {
		b.buffer.push(buffered{topic: topic, ev: ev})
		b.mu.Unlock()
		return
	}
	entries := b.snapshotHandlersLocked(topic)
	b.mu.Unlock()

	b.invoke(entries, topic, ev)
}

// replayBuffer pushes events buffered during an outage through the normal
// handler path, oldest first, then leaves the buffer empty.
func (b *Bridge) replayBuffer() {
	b.mu.Lock()
	items := b.buffer.drain()
	b.mu.Unlock()
	if len(items) == 0 {
		return
	}

	b.logger.Info().Int("count", len(items)).Msg("replaying buffered events")
	for _, it := range items {
		b.mu.Lock()
		entries := b.snapshotHandlersLocked(it.topic)
		b.mu.Unlock()
		b.invoke(entries, it.topic, it.ev)
	}
}

// snapshotHandlersLocked copies the handler list so dispatch happens
// without holding the lock. Caller holds b.mu.
func (b *Bridge) snapshotHandlersLocked(topic string) []handlerEntry {
	entries := b.handlers[topic]
	out := make([]handlerEntry, len(entries))
	copy(out, entries)
	return out
}

// invoke runs handlers in registration order, containing panics per handler.
func (b *Bridge) invoke(entries []handlerEntry, topic string, ev event.ChannelEvent) {
	for _, e := range entries {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error().
						Interface("panic", r).
						Str("topic", topic).
						Str("type", string(ev.Type)).
						Msg("event handler panicked")
				}
			}()
			e.fn(ev)
		}()
	}
}

func (b *Bridge) dispatchError(ee ErrorEvent) {
	b.mu.Lock()
	fns := make([]func(ErrorEvent), len(b.onError))
	copy(fns, b.onError)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ee)
	}
}
