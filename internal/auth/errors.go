package auth

import "errors"

var (
	// ErrInvalidToken covers every rejected confirmation: malformed, expired,
	// already used, forged or sent from another number.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidCredential is returned for any access token that fails
	// signature, expiry or kind checks.
	ErrInvalidCredential = errors.New("invalid access credential")
	// ErrInvalidRefresh is returned when a refresh credential cannot be rotated.
	ErrInvalidRefresh = errors.New("invalid refresh credential")
	// ErrUnauthorized is returned when a valid credential names no user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotifyFailed is returned when the confirmation could not be sent.
	ErrNotifyFailed = errors.New("could not send confirmation")
	// ErrInvalidPhone is returned for phone numbers that cannot be normalized.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidTransition is returned by an AttemptTracker for a transition
	// the login state machine does not allow.
	ErrInvalidTransition = errors.New("invalid attempt state transition")
)
