package stream

import (
	"sync"
	"time"

	"github.com/loomchat/realtime/config"
	"github.com/loomchat/realtime/src/bus"
	"github.com/rs/zerolog"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// Inbound frame types a client may send on the socket.
const (
	FrameTypingStart = "typing.start"
	FrameTypingStop  = "typing.stop"
	FramePresence    = "presence"
)

type clientFrame struct {
	Type     string `json:"type"`
	IsOnline bool   `json:"isOnline"`
}

// WSClient turns one WebSocket connection into a bus subscription. Outbound
// events are drained from a sink by the write pump; inbound frames carry
// client-initiated ephemeral events (typing, presence).
type WSClient struct {
	ID        string
	channelID string
	userID    string

	conn      Conn
	bus       *bus.Bus
	sink      *Sink
	heartbeat time.Duration

	teardown sync.Once
	logger   zerolog.Logger
}

// NewWSClient wraps an accepted WebSocket connection.
func NewWSClient(id, channelID, userID string, conn Conn, b *bus.Bus, cfg config.StreamConfig, logger zerolog.Logger) *WSClient {
	return &WSClient{
		ID:        id,
		channelID: channelID,
		userID:    userID,
		conn:      conn,
		bus:       b,
		sink:      NewSink(cfg.SinkBuffer),
		heartbeat: cfg.HeartbeatInterval,
		logger: logger.With().
			Str("component", "ws").
			Str("client_id", id).
			Str("channel_id", channelID).
			Str("user_id", userID).
			Logger(),
	}
}

// Run subscribes, sends the connected acknowledgement, and pumps the
// connection until the client disconnects. Cleanup (close + unsubscribe)
// runs exactly once on every exit path, including a failed subscribe.
func (c *WSClient) Run() error {
	if err := c.bus.Subscribe(c.channelID, c.userID, c.sink); err != nil {
		c.close()
		return err
	}
	if err := c.conn.WriteJSON(map[string]any{"type": "connected"}); err != nil {
		c.close()
		return err
	}
	c.logger.Debug().Msg("client connected")

	go c.writePump()
	c.readPump()
	return nil
}

// writePump drains the sink to the socket and writes heartbeat frames.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.sink.Events():
			if err := c.conn.WriteJSON(ev); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
				c.close()
				return
			}
		case <-c.sink.Done():
			return
		}
	}
}

// readPump routes inbound frames to the bus until the connection drops.
func (c *WSClient) readPump() {
	defer c.close()

	for {
		var frame clientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		var err error
		switch frame.Type {
		case FrameTypingStart:
			err = c.bus.StartTyping(c.channelID, c.userID)
		case FrameTypingStop:
			err = c.bus.StopTyping(c.channelID, c.userID)
		case FramePresence:
			err = c.bus.UpdatePresence(c.channelID, c.userID, frame.IsOnline)
		default:
			c.logger.Debug().Str("type", frame.Type).Msg("unknown client frame")
		}
		if err != nil {
			c.logger.Error().Err(err).Str("type", frame.Type).Msg("client frame rejected")
		}
	}
}

// close tears the client down: sink closed, subscription removed, socket
// closed. Safe to call from both pumps.
func (c *WSClient) close() {
	c.teardown.Do(func() {
		c.sink.Close()
		c.bus.Unsubscribe(c.channelID, c.userID)
		c.conn.Close()
		c.logger.Debug().Msg("client disconnected")
	})
}
