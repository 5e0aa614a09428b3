package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/otpless-auth/otpless/internal/logging"
)

// ErrDeliveryFailed wraps any failure of the messaging channel.
var ErrDeliveryFailed = errors.New("confirmation delivery failed")

const (
	// KindSignup marks a confirmation sent to a phone with no account yet.
	KindSignup = "signup"
	// KindLogin marks a confirmation sent to an existing account.
	KindLogin = "login"
)

// Confirmation is a tappable confirmation message. Payload goes into the
// button and comes back verbatim in the inbound event.
type Confirmation struct {
	Kind        string
	Recipient   string
	Body        string
	ButtonLabel string
	Payload     string
}

// NewConfirmation builds the signup or login copy for a recipient.
func NewConfirmation(appName, recipient, payload string, isNewUser bool) Confirmation {
	c := Confirmation{Recipient: recipient, Payload: payload}
	if isNewUser {
		c.Kind = KindSignup
		c.Body = fmt.Sprintf("Welcome to %s! Tap the button below to create your account. This request expires in 10 minutes.", appName)
		c.ButtonLabel = "Create account"
	} else {
		c.Kind = KindLogin
		c.Body = fmt.Sprintf("Someone is trying to sign in to %s with this number. Tap the button below if it was you.", appName)
		c.ButtonLabel = "Yes, sign me in"
	}
	return c
}

// Notifier delivers confirmations to the messaging channel.
type Notifier interface {
	SendConfirmation(ctx context.Context, c Confirmation) error
}

// LoggerNotifier writes confirmations to the logger instead of sending them.
// It backs mock messaging mode.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// SendConfirmation writes the confirmation to the structured logger. The
// payload is logged so a developer can replay the tap against the webhook.
func (n *LoggerNotifier) SendConfirmation(_ context.Context, c Confirmation) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("mock confirmation",
		slog.String("kind", c.Kind),
		slog.String("recipient", logging.MaskPhone(c.Recipient)),
		slog.String("button", c.ButtonLabel),
		slog.String("payload", c.Payload),
	)
	return nil
}
