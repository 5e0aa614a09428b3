package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store owns verification tokens and refresh credentials.
type Store struct {
	repo            Repository
	verificationTTL time.Duration
	refreshTTL      time.Duration
	now             func() time.Time
}

// NewStore builds a Store. verificationTTL bounds the proof-of-intent window;
// refreshTTL bounds refresh credential lifetime.
func NewStore(repo Repository, verificationTTL, refreshTTL time.Duration) *Store {
	return &Store{repo: repo, verificationTTL: verificationTTL, refreshTTL: refreshTTL, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// IssuedToken is a freshly minted verification token. Secret is the only copy
// of the plaintext and must go straight into the outbound payload.
type IssuedToken struct {
	ID        string
	Secret    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Payload builds the button payload for this token.
func (t IssuedToken) Payload(phone string, isNewUser bool, sessionID string) Payload {
	return Payload{
		Secret:    t.Secret,
		Phone:     phone,
		IsNewUser: isNewUser,
		IssuedAt:  t.IssuedAt.Unix(),
		ExpiresAt: t.ExpiresAt.Unix(),
		SessionID: sessionID,
	}
}

// CreateToken mints a verification token bound to phone and sessionID.
func (s *Store) CreateToken(ctx context.Context, phone string, isNewUser bool, sessionID string) (IssuedToken, error) {
	secret, err := randomSecret(verificationSecretLen)
	if err != nil {
		return IssuedToken{}, err
	}
	// Second precision keeps the stored expiry identical to the payload's.
	issued := s.now().UTC().Truncate(time.Second)
	token := VerificationToken{
		ID:        uuid.NewString(),
		TokenHash: HashSecret(secret),
		Phone:     phone,
		SessionID: sessionID,
		IsNewUser: isNewUser,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(s.verificationTTL),
	}
	if err := s.repo.CreateToken(ctx, token); err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{ID: token.ID, Secret: secret, IssuedAt: token.IssuedAt, ExpiresAt: token.ExpiresAt}, nil
}

// Consume spends the token described by a decoded payload. It succeeds at
// most once per token; every miss is ErrTokenInvalid with no side effects.
// IsNewUser in the verdict comes from the stored row, not the payload.
func (s *Store) Consume(ctx context.Context, p Payload) (Verdict, error) {
	t, err := s.repo.ConsumeToken(ctx, HashSecret(p.Secret), p.Phone, p.SessionID, s.now())
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{TokenID: t.ID, IsNewUser: t.IsNewUser, SessionID: t.SessionID}, nil
}

// Peek runs the Consume lookup without spending the token.
func (s *Store) Peek(ctx context.Context, p Payload) (Verdict, error) {
	t, err := s.repo.FindActiveToken(ctx, HashSecret(p.Secret), p.Phone, p.SessionID, s.now())
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{TokenID: t.ID, IsNewUser: t.IsNewUser, SessionID: t.SessionID}, nil
}

// IssuedRefresh is a freshly minted refresh credential.
type IssuedRefresh struct {
	ID        string
	Secret    string
	ExpiresAt time.Time
}

// CreateRefreshCredential mints a refresh credential for userID.
func (s *Store) CreateRefreshCredential(ctx context.Context, userID string) (IssuedRefresh, error) {
	secret, err := randomSecret(refreshSecretLen)
	if err != nil {
		return IssuedRefresh{}, err
	}
	now := s.now().UTC()
	cred := RefreshCredential{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashSecret(secret),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.repo.CreateRefresh(ctx, cred); err != nil {
		return IssuedRefresh{}, err
	}
	return IssuedRefresh{ID: cred.ID, Secret: secret, ExpiresAt: cred.ExpiresAt}, nil
}

// ValidateRefreshCredential returns the live credential matching plaintext
// and userID, or ErrRefreshInvalid.
func (s *Store) ValidateRefreshCredential(ctx context.Context, plaintext, userID string) (RefreshCredential, error) {
	if plaintext == "" || userID == "" {
		return RefreshCredential{}, ErrRefreshInvalid
	}
	return s.repo.FindActiveRefresh(ctx, HashSecret(plaintext), userID, s.now())
}

// Revoke revokes a credential by id. Revoking twice is not an error.
func (s *Store) Revoke(ctx context.Context, id string) error {
	_, err := s.repo.RevokeRefresh(ctx, id, s.now())
	return err
}

// RevokeOnce revokes a credential and reports whether this call did it. Only
// one of several concurrent callers observes true.
func (s *Store) RevokeOnce(ctx context.Context, id string) (bool, error) {
	return s.repo.RevokeRefresh(ctx, id, s.now())
}

// RevokeByToken revokes the credential matching plaintext if it belongs to
// userID. Unknown credentials are ignored.
func (s *Store) RevokeByToken(ctx context.Context, plaintext, userID string) error {
	_, err := s.repo.RevokeRefreshByHash(ctx, HashSecret(plaintext), userID, s.now())
	return err
}

// RevokeAll revokes every live credential of userID and returns the count.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int, error) {
	return s.repo.RevokeAllRefresh(ctx, userID, s.now())
}

// SweepExpired deletes expired verification tokens and refresh credentials.
func (s *Store) SweepExpired(ctx context.Context) (SweepResult, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
