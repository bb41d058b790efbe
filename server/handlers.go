package server

import (
	"github.com/gofiber/fiber/v3"
	"github.com/loomchat/realtime/src/event"
)

// userID extracts the authenticated caller identity attached by the
// upstream auth layer.
func userID(c fiber.Ctx) string {
	return c.Get("X-User-ID")
}

func unauthorized(c fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).
		JSON(envelope{Message: "authentication required", Code: "UNAUTHORIZED"})
}

// busError maps a bus error to the HTTP envelope: caller mistakes are 400,
// bus-internal failures 500, both carrying the machine-readable code.
func busError(c fiber.Ctx, err error) error {
	code := event.CodeOf(err)
	status := fiber.StatusInternalServerError
	if code == event.CodeInvalidRequest {
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(envelope{Message: err.Error(), Code: string(code)})
}

func (s *Server) handleTypingStart(c fiber.Ctx) error {
	uid := userID(c)
	if uid == "" {
		return unauthorized(c)
	}
	if err := s.bus.StartTyping(c.Params("channelId"), uid); err != nil {
		return busError(c, err)
	}
	return c.JSON(envelope{Message: "typing started", Code: "OK"})
}

func (s *Server) handleTypingStop(c fiber.Ctx) error {
	uid := userID(c)
	if uid == "" {
		return unauthorized(c)
	}
	if err := s.bus.StopTyping(c.Params("channelId"), uid); err != nil {
		return busError(c, err)
	}
	return c.JSON(envelope{Message: "typing stopped", Code: "OK"})
}

func (s *Server) handlePresence(c fiber.Ctx) error {
	uid := userID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var body struct {
		IsOnline bool `json:"isOnline"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(envelope{Message: "invalid request body", Code: string(event.CodeInvalidRequest)})
	}
	if err := s.bus.UpdatePresence(c.Params("channelId"), uid, body.IsOnline); err != nil {
		return busError(c, err)
	}
	return c.JSON(envelope{Message: "presence updated", Code: "OK"})
}

func (s *Server) handleTypingUsers(c fiber.Ctx) error {
	channelID := c.Params("channelId")
	return c.JSON(fiber.Map{
		"channel_id": channelID,
		"typing":     s.bus.TypingUsers(channelID),
	})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	channels := s.bus.Channels()
	total := 0
	for _, n := range channels {
		total += n
	}
	info := fiber.Map{
		"channels":      len(channels),
		"subscriptions": total,
	}
	if s.bridge != nil {
		info["bridge"] = string(s.bridge.Status())
		info["buffered"] = s.bridge.Buffered()
	}
	return c.JSON(info)
}
