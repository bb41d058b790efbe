package stream

import (
	"errors"
	"sync"

	"github.com/loomchat/realtime/src/event"
)

var (
	// ErrSinkFull means the client is not draining fast enough; the event
	// is dropped for this sink only.
	ErrSinkFull = errors.New("sink buffer full")
	// ErrSinkClosed means the client connection is gone.
	ErrSinkClosed = errors.New("sink closed")
)

// Sink buffers events bound for a single client connection. Deliver never
// blocks, so one slow client cannot stall bus delivery for the others.
type Sink struct {
	ch        chan event.ChannelEvent
	done      chan struct{}
	closeOnce sync.Once
}

// NewSink creates a sink with the given buffer size.
func NewSink(buffer int) *Sink {
	return &Sink{
		ch:   make(chan event.ChannelEvent, buffer),
		done: make(chan struct{}),
	}
}

// Deliver queues an event for the client. Returns ErrSinkFull when the
// buffer is exhausted and ErrSinkClosed after Close.
func (s *Sink) Deliver(ev event.ChannelEvent) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return ErrSinkClosed
	default:
		return ErrSinkFull
	}
}

// Events is the queue the transport adapter drains.
func (s *Sink) Events() <-chan event.ChannelEvent { return s.ch }

// Done is closed when the sink is closed.
func (s *Sink) Done() <-chan struct{} { return s.done }

// Close marks the sink dead. Idempotent.
func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
