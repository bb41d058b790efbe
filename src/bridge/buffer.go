package bridge

import "github.com/loomchat/realtime/src/event"

type buffered struct {
	topic string
	ev    event.ChannelEvent
}

// eventBuffer is a bounded FIFO of events received while the bridge is not
// connected. When full, the oldest entry is dropped; losing data under a
// sustained outage is accepted, an unbounded buffer is not.
type eventBuffer struct {
	items    []buffered
	capacity int
	dropped  uint64
}

func newEventBuffer(capacity int) *eventBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &eventBuffer{capacity: capacity}
}

func (eb *eventBuffer) push(it buffered) {
	if len(eb.items) == eb.capacity {
		eb.items = eb.items[1:]
		eb.dropped++
	}
	eb.items = append(eb.items, it)
}

// drain returns the buffered events oldest first and empties the buffer.
func (eb *eventBuffer) drain() []buffered {
	items := eb.items
	eb.items = nil
	return items
}

func (eb *eventBuffer) len() int { return len(eb.items) }
