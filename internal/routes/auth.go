package routes

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/otpless-auth/otpless/internal/auth"
	"github.com/otpless-auth/otpless/internal/relay"
)

// RegisterAuthRoutes wires the login, token and status endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler) {
	group := r.Group("/auth")
	group.Post("/initiate", h.Initiate)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", h.Logout)
	group.Get("/validate", h.Validate)
	group.Get("/status", h.Status)
}

// RegisterWebhookRoutes wires the inbound messaging webhook behind dedup.
func RegisterWebhookRoutes(r fiber.Router, h *auth.WebhookHandler, dedup fiber.Handler) {
	r.Post("/webhooks/messaging", dedup, h.Receive)
}

// RegisterRelayRoutes wires the websocket clients wait on for credentials.
func RegisterRelayRoutes(app *fiber.App, hub *relay.Hub, maxWait time.Duration, logger *slog.Logger) {
	app.Get("/ws", relay.RequireUpgrade(), relay.Handler(hub, maxWait, logger))
}
