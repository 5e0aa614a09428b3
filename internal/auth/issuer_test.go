package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", time.Minute, nil)
	assert.Error(t, err)
}

func TestVerifyAccessRoundTrip(t *testing.T) {
	h := newHarness(t)
	signed, err := h.issuer.IssueAccess("user-1")
	require.NoError(t, err)

	uid, err := h.issuer.VerifyAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
}

func TestVerifyAccessRejectsExpired(t *testing.T) {
	h := newHarness(t)
	signed, err := h.issuer.IssueAccess("user-1")
	require.NoError(t, err)

	h.clock.Advance(16 * time.Minute)
	_, err = h.issuer.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyAccessRejectsForeignKey(t *testing.T) {
	h := newHarness(t)
	other, err := NewIssuer("ffffffffffffffffffffffffffffffff", 15*time.Minute, nil)
	require.NoError(t, err)
	other.WithClock(h.clock.Now)

	signed, err := other.IssueAccess("user-1")
	require.NoError(t, err)
	_, err = h.issuer.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyAccessRejectsWrongKind(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	claims := AccessClaims{
		UserID: "user-1",
		Kind:   "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = h.issuer.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyAccessRejectsNoneAlg(t *testing.T) {
	h := newHarness(t)
	claims := AccessClaims{
		UserID: "user-1",
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(h.clock.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = h.issuer.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestIssueRefreshPairExpiresIn(t *testing.T) {
	h := newHarness(t)
	pair, err := h.issuer.IssueRefreshPair(context.Background(), "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 900, pair.ExpiresIn)
	assert.Len(t, pair.RefreshToken, 64)
}
