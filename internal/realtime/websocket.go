package realtime

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/JAY4T/kaakazini/internal/utils"
)

// Upgrade authenticates the socket before the protocol switch. Browsers
// cannot set headers on websocket requests, so the access token comes from
// ?token= or the access_token cookie.
func Upgrade(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		tok := c.Query("token")
		if tok == "" {
			tok = c.Cookies("access_token")
		}
		claims, err := utils.ParseJWT(secret, tok, utils.TokenAccess)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		uid, err := uuid.Parse(claims.UserID)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		c.Locals("userId", uid)
		return c.Next()
	}
}

// JobsSocket streams job updates to the connected user until either side closes.
func JobsSocket(hub *Hub, log *logrus.Logger) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("userId").(uuid.UUID)

		client := &Client{
			ID:     uuid.NewString(),
			UserID: userID,
			Send:   make(chan []byte, 256),
		}
		if !hub.RegisterClient(client) {
			_ = c.Close()
			return
		}
		defer hub.UnregisterClient(client)

		entry := log.WithField("user", userID)
		entry.Debug("realtime: socket connected")

		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					entry.WithError(err).Debug("realtime: write")
					return
				}
			}
			_ = c.WriteMessage(websocket.CloseMessage, []byte{})
		}()

		// Reads only keep the connection alive; clients send pings.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				entry.WithError(err).Debug("realtime: socket closed")
				return
			}
		}
	})
}
