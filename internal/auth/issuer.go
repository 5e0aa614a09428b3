package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/otpless-auth/otpless/internal/verification"
)

// KindAccess discriminates access tokens from any other token signed with the
// same key.
const KindAccess = "access"

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UserID string `json:"userId"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair is an access token together with its refresh credential.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Issuer signs and verifies access tokens and rotates refresh credentials.
type Issuer struct {
	secret    []byte
	accessTTL time.Duration
	store     *verification.Store
	now       func() time.Time
}

// NewIssuer creates an Issuer. The signing secret is mandatory.
func NewIssuer(secret string, accessTTL time.Duration, store *verification.Store) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	if accessTTL <= 0 {
		return nil, errors.New("access ttl must be positive")
	}
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, store: store, now: time.Now}, nil
}

// WithClock overrides the time source. Intended for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// IssueAccess signs a short-lived access token for userID.
func (i *Issuer) IssueAccess(userID string) (string, error) {
	now := i.now()
	claims := AccessClaims{
		UserID: userID,
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccess checks signature, expiry and kind and returns the user id. It
// does not check that the user still exists.
func (i *Issuer) VerifyAccess(signed string) (string, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidCredential
	}
	if claims.Kind != KindAccess || claims.UserID == "" {
		return "", ErrInvalidCredential
	}
	return claims.UserID, nil
}

// IssueRefreshPair mints an access token and a new refresh credential.
func (i *Issuer) IssueRefreshPair(ctx context.Context, userID string) (TokenPair, error) {
	access, err := i.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.store.CreateRefreshCredential(ctx, userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("create refresh credential: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh.Secret, ExpiresIn: int64(i.accessTTL.Seconds())}, nil
}

// RotateRefresh revokes the presented refresh credential and issues a new
// pair. A credential can be rotated once; every later attempt, including a
// concurrent one that lost the race, gets ErrInvalidRefresh.
func (i *Issuer) RotateRefresh(ctx context.Context, presented, userID string) (TokenPair, error) {
	cred, err := i.store.ValidateRefreshCredential(ctx, presented, userID)
	if errors.Is(err, verification.ErrRefreshInvalid) {
		return TokenPair{}, ErrInvalidRefresh
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("validate refresh credential: %w", err)
	}

	revoked, err := i.store.RevokeOnce(ctx, cred.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("revoke refresh credential: %w", err)
	}
	if !revoked {
		return TokenPair{}, ErrInvalidRefresh
	}
	return i.IssueRefreshPair(ctx, userID)
}
