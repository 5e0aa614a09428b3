package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// Handler exposes the login, refresh, logout and validation endpoints.
type Handler struct {
	svc *Service
}

// NewHandler constructs an auth HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type initiateRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,max=32"`
}

type initiateResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

// Initiate starts a login attempt and sends the confirmation message.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req initiateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	// ErrInvalidPhone and ErrNotifyFailed are mapped by the server error handler.
	res, err := h.svc.Initiate(c.UserContext(), req.PhoneNumber)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(initiateResponse{Success: true, SessionID: res.SessionID})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	UserID       string `json:"user_id" validate:"required"`
}

// Refresh rotates a refresh credential into a new token pair.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	pair, err := h.svc.Refresh(c.UserContext(), req.RefreshToken, req.UserID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(pair)
}

type logoutRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the presented refresh credential, or every credential of the
// user when none is presented.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var req logoutRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.Logout(c.UserContext(), req.UserID, req.RefreshToken); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

// Validate reports whether the bearer access token is valid.
func (h *Handler) Validate(c *fiber.Ctx) error {
	token := BearerToken(c)
	if token == "" {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"valid": false})
	}
	user, err := h.svc.ValidateAccess(c.UserContext(), token)
	if errors.Is(err, ErrUnauthorized) {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"valid": false})
	}
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"valid": true, "user_id": user.ID})
}

// Status reports the state of the login attempt named by ?sessionId=.
func (h *Handler) Status(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return fiber.NewError(http.StatusBadRequest, "sessionId is required")
	}
	state, err := h.svc.Status(c.UserContext(), sessionID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"session_id": sessionID, "state": state})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) string {
	authz := c.Get(fiber.HeaderAuthorization)
	if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("Bearer "):])
}

func bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}
