package verification

import (
	"errors"
	"time"
)

var (
	// ErrMalformedPayload is returned when a button payload cannot be decoded.
	ErrMalformedPayload = errors.New("malformed verification payload")
	// ErrPayloadExpired is returned when a decoded payload is past its expiry.
	ErrPayloadExpired = errors.New("verification payload expired")
	// ErrTokenInvalid covers unknown, expired, already used and mismatched
	// verification tokens. Callers must not be able to tell these apart.
	ErrTokenInvalid = errors.New("invalid verification token")
	// ErrRefreshInvalid covers unknown, expired and revoked refresh credentials.
	ErrRefreshInvalid = errors.New("invalid refresh credential")
)

// VerificationToken is the stored half of a login proof-of-intent. The
// plaintext secret is never persisted, only its hash.
type VerificationToken struct {
	ID        string
	TokenHash string
	Phone     string
	SessionID string
	IsNewUser bool
	IssuedAt  time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// RefreshCredential is a long-lived, revocable credential used only to mint
// new access credentials.
type RefreshCredential struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Verdict is the outcome of a successful Peek or Consume.
type Verdict struct {
	TokenID   string
	IsNewUser bool
	SessionID string
}

// SweepResult reports how many expired rows a sweep removed.
type SweepResult struct {
	VerificationTokens int
	RefreshCredentials int
}
