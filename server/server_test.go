package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loomchat/realtime/config"
	"github.com/loomchat/realtime/src/bus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	b := bus.New(zerolog.Nop())
	go b.Run()
	t.Cleanup(b.Stop)
	return New(config.Default(), b, nil, zerolog.Nop())
}

func TestSplitChannelPath(t *testing.T) {
	id, tail, ok := splitChannelPath("/channels/c1/events")
	require.True(t, ok)
	assert.Equal(t, "c1", id)
	assert.Equal(t, "events", tail)

	id, tail, ok = splitChannelPath("/channels/c1/ws")
	require.True(t, ok)
	assert.Equal(t, "c1", id)
	assert.Equal(t, "ws", tail)

	for _, path := range []string{"/", "/channels", "/channels//events", "/realtime/info", "/channels/c1/events/extra"} {
		_, _, ok := splitChannelPath(path)
		assert.False(t, ok, path)
	}
}

func TestTypingEndpointsRequireIdentity(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/channels/c1/typing/start", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "UNAUTHORIZED", env.Code)
}

func TestTypingStartAndStop(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/channels/c1/typing/start", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []string{"u1"}, s.bus.TypingUsers("c1"))

	req = httptest.NewRequest("POST", "/channels/c1/typing/stop", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err = s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, s.bus.TypingUsers("c1"))
}

func TestPresenceEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/channels/c1/presence", strings.NewReader(`{"isOnline":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "OK", env.Code)
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/realtime/info", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, float64(0), info["channels"])
	assert.Equal(t, float64(0), info["subscriptions"])
}
