package notification

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/otpless-auth/otpless/internal/logging"
)

type fakeCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &twilioApi.ApiV2010Message{}, nil
}

func TestNewConfirmationCopy(t *testing.T) {
	signup := NewConfirmation("OTPless", "+15550100", "v1.payload", true)
	login := NewConfirmation("OTPless", "+15550100", "v1.payload", false)

	if signup.Kind != KindSignup || login.Kind != KindLogin {
		t.Fatalf("unexpected kinds %q %q", signup.Kind, login.Kind)
	}
	if signup.ButtonLabel == login.ButtonLabel || signup.Body == login.Body {
		t.Fatalf("signup and login copy must differ")
	}
	if !strings.Contains(signup.Body, "OTPless") {
		t.Fatalf("expected app name in body, got %q", signup.Body)
	}
}

func TestTwilioNotifierSendsTemplate(t *testing.T) {
	fake := &fakeCreator{}
	n := newTwilioNotifier(fake, "+14155238886", "HX123")

	c := NewConfirmation("OTPless", "+15550100", "v1.payload", false)
	if err := n.SendConfirmation(context.Background(), c); err != nil {
		t.Fatalf("send: %v", err)
	}

	p := fake.params
	if p == nil || *p.To != "whatsapp:+15550100" || *p.From != "whatsapp:+14155238886" {
		t.Fatalf("unexpected addressing: %+v", p)
	}
	if *p.ContentSid != "HX123" {
		t.Fatalf("unexpected content sid %q", *p.ContentSid)
	}
	var vars map[string]string
	if err := json.Unmarshal([]byte(*p.ContentVariables), &vars); err != nil {
		t.Fatalf("content variables: %v", err)
	}
	if vars["3"] != "v1.payload" || vars["2"] != c.ButtonLabel {
		t.Fatalf("unexpected variables %v", vars)
	}
}

func TestTwilioNotifierWrapsFailure(t *testing.T) {
	n := newTwilioNotifier(&fakeCreator{err: errors.New("boom")}, "whatsapp:+14155238886", "HX123")
	err := n.SendConfirmation(context.Background(), NewConfirmation("OTPless", "+15550100", "p", true))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestLoggerNotifier(t *testing.T) {
	n := NewLoggerNotifier(logging.Discard())
	if err := n.SendConfirmation(context.Background(), NewConfirmation("OTPless", "+15550100", "p", true)); err != nil {
		t.Fatalf("send: %v", err)
	}
	var nilNotifier *LoggerNotifier
	if err := nilNotifier.SendConfirmation(context.Background(), Confirmation{}); err != nil {
		t.Fatalf("nil notifier: %v", err)
	}
}

func TestPhoneFromAddress(t *testing.T) {
	if got := PhoneFromAddress("whatsapp:+15550100"); got != "+15550100" {
		t.Fatalf("unexpected phone %q", got)
	}
	if got := PhoneFromAddress("+15550100"); got != "+15550100" {
		t.Fatalf("unexpected phone %q", got)
	}
}
