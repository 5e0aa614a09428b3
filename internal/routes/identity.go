package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/otpless-auth/otpless/internal/identity"
)

// RegisterIdentityRoutes wires the authenticated profile endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/users/me", h.Me)
	r.Put("/users/me", h.UpdateMe)
}
