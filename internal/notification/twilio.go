package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const whatsappScheme = "whatsapp:"

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier sends confirmations as WhatsApp content-template messages.
// The template is expected to take the body as variable 1, the button label
// as variable 2 and the quick-reply payload as variable 3.
type TwilioNotifier struct {
	api        messageCreator
	from       string
	contentSID string
}

// NewTwilioNotifier creates a Twilio-backed notifier.
func NewTwilioNotifier(accountSID, authToken, from, contentSID string) *TwilioNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioNotifier(client.Api, from, contentSID)
}

func newTwilioNotifier(api messageCreator, from, contentSID string) *TwilioNotifier {
	return &TwilioNotifier{api: api, from: whatsappAddress(from), contentSID: contentSID}
}

// SendConfirmation implements Notifier.
func (t *TwilioNotifier) SendConfirmation(_ context.Context, c Confirmation) error {
	vars, err := json.Marshal(map[string]string{
		"1": c.Body,
		"2": c.ButtonLabel,
		"3": c.Payload,
	})
	if err != nil {
		return fmt.Errorf("%w: encode content variables: %v", ErrDeliveryFailed, err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsappAddress(c.Recipient))
	params.SetFrom(t.from)
	params.SetContentSid(t.contentSID)
	params.SetContentVariables(string(vars))

	if _, err := t.api.CreateMessage(params); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

func whatsappAddress(phone string) string {
	if strings.HasPrefix(phone, whatsappScheme) {
		return phone
	}
	return whatsappScheme + phone
}

// PhoneFromAddress strips the whatsapp: scheme Twilio puts on inbound From.
func PhoneFromAddress(addr string) string {
	return strings.TrimPrefix(addr, whatsappScheme)
}
