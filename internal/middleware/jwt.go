package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/otpless-auth/otpless/internal/auth"
	"github.com/otpless-auth/otpless/internal/identity"
)

// AccessValidator resolves an access token to its user.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, token string) (identity.User, error)
}

// BearerAuth validates the access token in the Authorization header and
// stores the user id under identity.LocalUserID.
func BearerAuth(v AccessValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.BearerToken(c)
		if token == "" {
			return auth.ErrUnauthorized
		}
		user, err := v.ValidateAccess(c.UserContext(), token)
		if err != nil {
			return err
		}

		c.Locals(identity.LocalUserID, user.ID)
		return c.Next()
	}
}
