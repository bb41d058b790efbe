package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/loomchat/realtime/config"
	"github.com/loomchat/realtime/src/bus"
	"github.com/loomchat/realtime/src/event"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func TestWriteConnectedFrame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := writeConnected(w); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := buf.String(); got != "data: {\"type\":\"connected\"}\n\n" {
		t.Errorf("unexpected frame: %q", got)
	}
}

func TestWriteEventFrame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	ev := event.ChannelEvent{
		Type:      event.MessageCreated,
		ChannelID: "c1",
		UserID:    "u1",
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Data:      map[string]any{"text": "hi"},
	}
	if err := writeEvent(w, ev); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := buf.String()
	if !strings.HasPrefix(got, "data: ") || !strings.HasSuffix(got, "\n\n") {
		t.Fatalf("malformed frame: %q", got)
	}

	var decoded event.ChannelEvent
	body := strings.TrimSuffix(strings.TrimPrefix(got, "data: "), "\n\n")
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("frame body is not JSON: %v", err)
	}
	if decoded.Type != event.MessageCreated || decoded.ChannelID != "c1" {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestWriteKeepaliveFrame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := writeKeepalive(w); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := buf.String(); !strings.HasPrefix(got, ": ") {
		t.Errorf("keepalive must be a comment frame, got %q", got)
	}
}

func TestSSEDisconnectUnsubscribes(t *testing.T) {
	b := newTestBus(t)
	cfg := config.Default().Stream
	cfg.HeartbeatInterval = 10 * time.Millisecond
	s := NewSSE(b, cfg, zerolog.Nop())

	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()
	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			_ = s.Serve(ctx, "c1", "u1")
		},
	}
	go func() { _ = srv.Serve(ln) }()

	conn, err := ln.Dial()
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if _, err := fmt.Fprint(conn, "GET /channels/c1/events HTTP/1.1\r\nHost: test\r\n\r\n"); err != nil {
		t.Fatalf("request write failed: %v", err)
	}

	// Read until the initial acknowledgement frame arrives; by then the
	// subscription is live.
	br := bufio.NewReader(conn)
	var seen strings.Builder
	for !strings.Contains(seen.String(), `{"type":"connected"}`) {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("stream read failed: %v (got %q)", err, seen.String())
		}
		seen.WriteString(line)
	}
	waitFor(t, func() bool { return b.SubscriberCount("c1") == 1 }, "subscription never registered")

	// Client drop: the next heartbeat write fails and cleanup runs.
	conn.Close()
	waitFor(t, func() bool { return b.SubscriberCount("c1") == 0 }, "disconnect never unsubscribed")
}

func TestSSEServeRejectsInvalidSubscription(t *testing.T) {
	b := bus.New(zerolog.Nop())
	go b.Run()
	defer b.Stop()

	s := NewSSE(b, config.Default().Stream, zerolog.Nop())
	var ctx fasthttp.RequestCtx

	err := s.Serve(&ctx, "", "u1")
	if !event.IsCode(err, event.CodeInvalidRequest) {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
	if b.SubscriberCount("") != 0 {
		t.Error("failed serve must leave no subscription behind")
	}
}
