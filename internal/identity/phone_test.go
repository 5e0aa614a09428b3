package identity

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "formatted us", in: "+1 555-0100", want: "+15550100"},
		{name: "missing plus", in: "15550100", want: "+15550100"},
		{name: "parentheses", in: "+1 (415) 555-2671", want: "+14155552671"},
		{name: "international prefix", in: "0044 20 7946 0958", want: "+442079460958"},
		{name: "mexico with mobile indicator", in: "+52 1 55 1234 5678", want: "+525512345678"},
		{name: "mexico without mobile indicator", in: "+52 55 1234 5678", want: "+525512345678"},
		{name: "argentina with mobile indicator", in: "+54 9 11 2345 6789", want: "+541123456789"},
		{name: "argentina without mobile indicator", in: "+54 11 2345 6789", want: "+541123456789"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.in)
			if err != nil {
				t.Fatalf("normalize %q: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("normalize %q = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	inputs := []string{
		"+1 555-0100",
		"+52 1 55 1234 5678",
		"5215512345678",
		"+54 9 11 2345 6789",
		"0044 20 7946 0958",
		"+0044 20 7946 0958",
		"+237 650 000 000",
	}
	for _, in := range inputs {
		once, err := NormalizePhone(in)
		if err != nil {
			t.Fatalf("normalize %q: %v", in, err)
		}
		twice, err := NormalizePhone(once)
		if err != nil {
			t.Fatalf("normalize %q: %v", once, err)
		}
		if once != twice {
			t.Fatalf("normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizePhoneRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "+1 23", "+1234567890123456"} {
		if _, err := NormalizePhone(in); err != ErrInvalidPhone {
			t.Fatalf("normalize %q: expected ErrInvalidPhone, got %v", in, err)
		}
	}
}
