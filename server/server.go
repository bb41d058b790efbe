package server

import (
	"encoding/json"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/loomchat/realtime/config"
	"github.com/loomchat/realtime/src/bridge"
	"github.com/loomchat/realtime/src/bus"
	"github.com/loomchat/realtime/src/event"
	"github.com/loomchat/realtime/src/stream"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server exposes the realtime API: an SSE event stream and a WebSocket per
// channel, plus typing/presence endpoints. Authentication itself is out of
// scope; the upstream auth layer attaches the caller identity as X-User-ID.
type Server struct {
	app    *fiber.App
	srv    *fasthttp.Server
	bus    *bus.Bus
	bridge *bridge.Bridge
	sse    *stream.SSE
	cfg    *config.Config
	logger zerolog.Logger
}

// New builds the server around an owned bus and bridge.
func New(cfg *config.Config, b *bus.Bus, br *bridge.Bridge, logger zerolog.Logger) *Server {
	s := &Server{
		app:    fiber.New(),
		bus:    b,
		bridge: br,
		sse:    stream.NewSSE(b, cfg.Stream, logger),
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Post("/channels/:channelId/typing/start", s.handleTypingStart)
	s.app.Post("/channels/:channelId/typing/stop", s.handleTypingStop)
	s.app.Post("/channels/:channelId/presence", s.handlePresence)
	s.app.Get("/channels/:channelId/typing", s.handleTypingUsers)
	s.app.Get("/realtime/info", s.handleInfo)
}

// Handler returns the raw fasthttp handler. The long-lived routes (SSE
// stream, WebSocket upgrade) are dispatched before Fiber since Fiber v3
// does not expose *fasthttp.RequestCtx to route handlers.
func (s *Server) Handler() fasthttp.RequestHandler {
	appHandler := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if channelID, tail, ok := splitChannelPath(string(ctx.Path())); ok && ctx.IsGet() {
			switch tail {
			case "events":
				s.handleEvents(ctx, channelID)
				return
			case "ws":
				s.handleWS(ctx, channelID)
				return
			}
		}
		appHandler(ctx)
	}
}

// Listen serves until Shutdown.
func (s *Server) Listen(addr string) error {
	s.srv = &fasthttp.Server{
		Handler: s.Handler(),
		Name:    "loom-realtime",
	}
	s.logger.Info().Str("addr", addr).Msg("listening")
	return s.srv.ListenAndServe(addr)
}

// Shutdown stops accepting connections and drains the server.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown()
}

// splitChannelPath matches /channels/{id}/{tail} with a non-empty id.
func splitChannelPath(path string) (channelID, tail string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "channels" || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// handleEvents opens the SSE stream for one channel.
func (s *Server) handleEvents(ctx *fasthttp.RequestCtx, channelID string) {
	userID := string(ctx.Request.Header.Peek("X-User-ID"))
	if userID == "" {
		writeRawError(ctx, fasthttp.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	if err := s.sse.Serve(ctx, channelID, userID); err != nil {
		s.logger.Error().Err(err).Str("channel_id", channelID).Msg("event stream subscription failed")
		if event.IsCode(err, event.CodeInvalidRequest) {
			writeRawError(ctx, fasthttp.StatusBadRequest, string(event.CodeInvalidRequest), err.Error())
			return
		}
		writeRawError(ctx, fasthttp.StatusInternalServerError,
			string(event.CodeEventSubscriptionFailed), "event subscription failed")
	}
}

// handleWS upgrades to a WebSocket bound to one channel.
func (s *Server) handleWS(ctx *fasthttp.RequestCtx, channelID string) {
	if !strings.EqualFold(string(ctx.Request.Header.Peek("Upgrade")), "websocket") {
		writeRawError(ctx, fasthttp.StatusUpgradeRequired, "UPGRADE_REQUIRED", "WebSocket upgrade required")
		return
	}
	userID := string(ctx.Request.Header.Peek("X-User-ID"))
	if userID == "" {
		writeRawError(ctx, fasthttp.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	clientID := uuid.New().String()
	err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		client := stream.NewWSClient(clientID, channelID, userID, conn, s.bus, s.cfg.Stream, s.logger)
		if err := client.Run(); err != nil {
			s.logger.Error().Err(err).Str("client_id", clientID).Msg("websocket client failed")
		}
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

type envelope struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeRawError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(envelope{Message: message, Code: code})
	ctx.SetBody(data)
}
