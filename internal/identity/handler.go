package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// LocalUserID is the fiber.Ctx locals key the bearer middleware stores the
// authenticated user id under.
const LocalUserID = "user_id"

var validate = validator.New()

// Handler exposes the authenticated user's profile.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type profileResponse struct {
	UserID      string    `json:"user_id"`
	PhoneNumber string    `json:"phone_number"`
	Name        *string   `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	LastLogin   time.Time `json:"last_login"`
}

type updateProfileRequest struct {
	Name *string `json:"name" validate:"omitempty,max=100"`
}

// Me returns the profile of the authenticated user.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals(LocalUserID).(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	user, err := h.service.FindByID(c.UserContext(), uid)
	if err != nil {
		return userError(err)
	}
	return c.Status(http.StatusOK).JSON(toProfile(user))
}

// UpdateMe changes the authenticated user's display name.
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	uid, _ := c.Locals(LocalUserID).(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.UpdateDisplayName(c.UserContext(), uid, req.Name)
	if err != nil {
		return userError(err)
	}
	return c.Status(http.StatusOK).JSON(toProfile(user))
}

func toProfile(u User) profileResponse {
	return profileResponse{UserID: u.ID, PhoneNumber: u.Phone, Name: u.DisplayName, CreatedAt: u.CreatedAt, LastLogin: u.LastLoginAt}
}

func userError(err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return fiber.NewError(http.StatusNotFound, "user not found")
	}
	return err
}
