package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	sessionIDParam = "sessionId"
	writeTimeout   = 5 * time.Second
)

// RequireUpgrade rejects plain HTTP requests and requests without a session id
// before the websocket handshake.
func RequireUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if c.Query(sessionIDParam) == "" {
			return fiber.NewError(http.StatusBadRequest, "sessionId is required")
		}
		return c.Next()
	}
}

// Handler attaches the websocket to the session named by ?sessionId=. The
// connection is closed after the single event is written, when the client
// goes away, or once maxWait has elapsed.
func Handler(hub *Hub, maxWait time.Duration, logger *slog.Logger) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sub := hub.Attach(conn.Query(sessionIDParam))
		defer sub.Close()

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		timer := time.NewTimer(maxWait)
		defer timer.Stop()

		select {
		case ev := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Warn("relay write failed", slog.String("session_id", sub.SessionID()), slog.Any("error", err))
				return
			}
			closeWith(conn, websocket.CloseNormalClosure, "delivered")
		case <-gone:
		case <-timer.C:
			closeWith(conn, websocket.CloseGoingAway, "expired")
		}
	})
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
