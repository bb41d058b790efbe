package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loomchat/realtime/config"
	"github.com/loomchat/realtime/src/bus"
	"github.com/loomchat/realtime/src/event"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// SSE turns one long-lived HTTP connection into a bus subscription, served
// as a text/event-stream response.
type SSE struct {
	bus       *bus.Bus
	heartbeat time.Duration
	buffer    int
	logger    zerolog.Logger
}

// NewSSE creates the SSE lifecycle adapter.
func NewSSE(b *bus.Bus, cfg config.StreamConfig, logger zerolog.Logger) *SSE {
	return &SSE{
		bus:       b,
		heartbeat: cfg.HeartbeatInterval,
		buffer:    cfg.SinkBuffer,
		logger:    logger.With().Str("component", "sse").Logger(),
	}
}

// Serve subscribes the caller to channelID and streams events until the
// client disconnects. A subscription failure is returned before any bytes
// are written so the HTTP layer can answer with an error envelope.
// Unsubscription runs exactly once, on any exit path of the stream.
func (s *SSE) Serve(ctx *fasthttp.RequestCtx, channelID, userID string) error {
	sink := NewSink(s.buffer)
	if err := s.bus.Subscribe(channelID, userID, sink); err != nil {
		return err
	}

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")

	logger := s.logger.With().Str("channel_id", channelID).Str("user_id", userID).Logger()
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			sink.Close()
			s.bus.Unsubscribe(channelID, userID)
			logger.Debug().Msg("stream closed")
		}()

		if err := writeConnected(w); err != nil {
			return
		}
		logger.Debug().Msg("stream opened")

		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case ev := <-sink.Events():
				if err := writeEvent(w, ev); err != nil {
					return
				}
			case <-ticker.C:
				if err := writeKeepalive(w); err != nil {
					return
				}
			}
		}
	})
	return nil
}

// writeConnected sends the initial acknowledgement frame.
func writeConnected(w *bufio.Writer) error {
	if _, err := fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n"); err != nil {
		return err
	}
	return w.Flush()
}

func writeEvent(w *bufio.Writer, ev event.ChannelEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

// writeKeepalive writes a comment frame. Its real job is flushing: a dead
// connection surfaces here as a write error within one heartbeat interval.
func writeKeepalive(w *bufio.Writer) error {
	if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
