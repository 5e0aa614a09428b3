package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/twilio/twilio-go/client"

	"github.com/otpless-auth/otpless/internal/logging"
	"github.com/otpless-auth/otpless/internal/notification"
)

const (
	signatureHeader = "X-Twilio-Signature"
	emptyTwiML      = "<Response></Response>"
)

// SignatureValidator checks that an inbound form post was signed by the
// messaging provider.
type SignatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// NewTwilioSignatureValidator validates X-Twilio-Signature with the account token.
func NewTwilioSignatureValidator(authToken string) SignatureValidator {
	v := client.NewRequestValidator(authToken)
	return &v
}

// WebhookHandler receives button taps from the messaging channel.
type WebhookHandler struct {
	svc       *Service
	validator SignatureValidator
	publicURL string
	allowJSON bool
	logger    *slog.Logger
}

// NewWebhookHandler builds the inbound messaging handler. A nil validator
// disables signature checks; allowJSON accepts the mock-mode JSON body.
func NewWebhookHandler(svc *Service, validator SignatureValidator, publicURL string, allowJSON bool, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, validator: validator, publicURL: publicURL, allowJSON: allowJSON, logger: logger}
}

type inboundEvent struct {
	PhoneNumber   string `json:"phoneNumber"`
	ButtonPayload string `json:"buttonPayload"`
}

// Receive spends the tapped confirmation and forwards credentials to the
// waiting session. Rejected confirmations are acknowledged so the provider
// does not retry them; only storage failures surface as errors.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	ev, err := h.parse(c)
	if err != nil {
		return err
	}
	if ev.ButtonPayload == "" {
		// Plain chat message, nothing to confirm.
		return ack(c)
	}

	creds, err := h.svc.Confirm(c.UserContext(), ev.PhoneNumber, ev.ButtonPayload)
	if errors.Is(err, ErrInvalidToken) {
		h.logger.Warn("confirmation rejected", slog.String("phone", logging.MaskPhone(ev.PhoneNumber)))
		return ack(c)
	}
	if err != nil {
		return err
	}
	h.logger.Info("confirmation accepted", slog.String("user_id", creds.UserID), slog.String("session_id", creds.SessionID))
	return ack(c)
}

func (h *WebhookHandler) parse(c *fiber.Ctx) (inboundEvent, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if !h.allowJSON {
			return inboundEvent{}, fiber.NewError(http.StatusUnsupportedMediaType, "form body expected")
		}
		var ev inboundEvent
		if err := c.BodyParser(&ev); err != nil {
			return inboundEvent{}, fiber.NewError(http.StatusBadRequest, "invalid request body")
		}
		return ev, nil
	}

	params := map[string]string{}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		params[string(k)] = string(v)
	})
	if h.validator != nil && !h.validator.Validate(h.publicURL, params, c.Get(signatureHeader)) {
		return inboundEvent{}, fiber.NewError(http.StatusForbidden, "invalid signature")
	}
	return inboundEvent{
		PhoneNumber:   notification.PhoneFromAddress(params["From"]),
		ButtonPayload: params["ButtonPayload"],
	}, nil
}

func ack(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextXML)
	return c.Status(http.StatusOK).SendString(emptyTwiML)
}
