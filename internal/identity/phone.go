package identity

import "strings"

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// mobilePrefix describes a country whose numbers may carry a redundant
// mobile-indicator digit between the country code and the national number.
type mobilePrefix struct {
	countryCode string
	indicator   string
	nationalLen int
}

var mobilePrefixes = []mobilePrefix{
	{countryCode: "52", indicator: "1", nationalLen: 10}, // Mexico: +52 1 XXXXXXXXXX
	{countryCode: "54", indicator: "9", nationalLen: 10}, // Argentina: +54 9 XXXXXXXXXX
}

// NormalizePhone returns the canonical international form of a phone number:
// a leading '+' followed by digits only. Leading zeros (the "00" international
// call prefix) are dropped, since no country code starts with zero, and
// redundant mobile indicators are collapsed.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	digits = collapseMobilePrefix(digits)

	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}

func collapseMobilePrefix(digits string) string {
	for _, p := range mobilePrefixes {
		lead := p.countryCode + p.indicator
		if len(digits) == len(lead)+p.nationalLen && strings.HasPrefix(digits, lead) {
			return p.countryCode + digits[len(lead):]
		}
	}
	return digits
}
