package stream

import (
	"errors"
	"testing"

	"github.com/loomchat/realtime/src/event"
)

func TestSinkDeliverAndDrain(t *testing.T) {
	s := NewSink(2)
	if err := s.Deliver(event.New(event.MessageCreated, "c1", "u1", nil)); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if err := s.Deliver(event.New(event.MessageUpdated, "c1", "u1", nil)); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	ev := <-s.Events()
	if ev.Type != event.MessageCreated {
		t.Errorf("expected FIFO order, got %s first", ev.Type)
	}
}

func TestSinkFull(t *testing.T) {
	s := NewSink(1)
	_ = s.Deliver(event.New(event.MessageCreated, "c1", "u1", nil))

	err := s.Deliver(event.New(event.MessageUpdated, "c1", "u1", nil))
	if !errors.Is(err, ErrSinkFull) {
		t.Errorf("expected ErrSinkFull, got %v", err)
	}
	// The buffered event is intact.
	if ev := <-s.Events(); ev.Type != event.MessageCreated {
		t.Errorf("unexpected event %s", ev.Type)
	}
}

func TestSinkClosed(t *testing.T) {
	s := NewSink(1)
	s.Close()
	s.Close() // idempotent

	err := s.Deliver(event.New(event.MessageCreated, "c1", "u1", nil))
	if !errors.Is(err, ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed, got %v", err)
	}

	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed")
	}
}
