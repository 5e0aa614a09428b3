package verification

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPhone   = "+15550100"
	testSession = "session-1"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := NewStore(NewMemoryRepository(), 10*time.Minute, 30*24*time.Hour).WithClock(clock.Now)
	return store, clock
}

func TestCreateTokenGeneratesStrongSecret(t *testing.T) {
	store, clock := newTestStore(t)

	issued, err := store.CreateToken(context.Background(), testPhone, true, testSession)
	require.NoError(t, err)
	assert.Len(t, issued.Secret, verificationSecretLen)
	assert.Equal(t, clock.Now().Add(10*time.Minute), issued.ExpiresAt)

	other, err := store.CreateToken(context.Background(), testPhone, true, testSession)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Secret, other.Secret)
}

func TestConsumeSucceedsOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	issued, err := store.CreateToken(ctx, testPhone, true, testSession)
	require.NoError(t, err)
	p := issued.Payload(testPhone, true, testSession)

	verdict, err := store.Consume(ctx, p)
	require.NoError(t, err)
	assert.True(t, verdict.IsNewUser)
	assert.Equal(t, testSession, verdict.SessionID)

	_, err = store.Consume(ctx, p)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestConsumeConcurrentSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	issued, err := store.CreateToken(ctx, testPhone, false, testSession)
	require.NoError(t, err)
	p := issued.Payload(testPhone, false, testSession)

	const workers = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, p); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestConsumeRejectsMismatches(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	issued, err := store.CreateToken(ctx, testPhone, true, testSession)
	require.NoError(t, err)

	wrongSecret := issued.Payload(testPhone, true, testSession)
	wrongSecret.Secret = "forged-secret"
	wrongPhone := issued.Payload("+15550199", true, testSession)
	wrongSession := issued.Payload(testPhone, true, "session-2")

	for _, p := range []Payload{wrongSecret, wrongPhone, wrongSession} {
		_, err := store.Consume(ctx, p)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	}

	_, err = store.Consume(ctx, issued.Payload(testPhone, true, testSession))
	assert.NoError(t, err, "failed attempts must not spend the token")
}

func TestConsumeRejectsExpired(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	issued, err := store.CreateToken(ctx, testPhone, true, testSession)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = store.Consume(ctx, issued.Payload(testPhone, true, testSession))
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestConsumeUsesStoredNewUserFlag(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	issued, err := store.CreateToken(ctx, testPhone, false, testSession)
	require.NoError(t, err)

	verdict, err := store.Consume(ctx, issued.Payload(testPhone, true, testSession))
	require.NoError(t, err)
	assert.False(t, verdict.IsNewUser)
}

func TestPeekDoesNotSpend(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	issued, err := store.CreateToken(ctx, testPhone, true, testSession)
	require.NoError(t, err)
	p := issued.Payload(testPhone, true, testSession)

	for i := 0; i < 3; i++ {
		verdict, err := store.Peek(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, testSession, verdict.SessionID)
	}

	_, err = store.Consume(ctx, p)
	require.NoError(t, err)

	_, err = store.Peek(ctx, p)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshCredentialLifecycle(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	issued, err := store.CreateRefreshCredential(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, issued.Secret, refreshSecretLen)

	cred, err := store.ValidateRefreshCredential(ctx, issued.Secret, "user-1")
	require.NoError(t, err)
	assert.Equal(t, issued.ID, cred.ID)

	_, err = store.ValidateRefreshCredential(ctx, issued.Secret, "user-2")
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	first, err := store.RevokeOnce(ctx, issued.ID)
	require.NoError(t, err)
	assert.True(t, first)
	second, err := store.RevokeOnce(ctx, issued.ID)
	require.NoError(t, err)
	assert.False(t, second)
	require.NoError(t, store.Revoke(ctx, issued.ID), "revoke is idempotent")

	_, err = store.ValidateRefreshCredential(ctx, issued.Secret, "user-1")
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	expiring, err := store.CreateRefreshCredential(ctx, "user-1")
	require.NoError(t, err)
	clock.Advance(30 * 24 * time.Hour)
	_, err = store.ValidateRefreshCredential(ctx, expiring.Secret, "user-1")
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestRevokeAllAndByToken(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a, _ := store.CreateRefreshCredential(ctx, "user-1")
	b, _ := store.CreateRefreshCredential(ctx, "user-1")
	other, _ := store.CreateRefreshCredential(ctx, "user-2")

	require.NoError(t, store.RevokeByToken(ctx, a.Secret, "user-2"), "foreign tokens are ignored")
	_, err := store.ValidateRefreshCredential(ctx, a.Secret, "user-1")
	require.NoError(t, err)

	require.NoError(t, store.RevokeByToken(ctx, a.Secret, "user-1"))
	_, err = store.ValidateRefreshCredential(ctx, a.Secret, "user-1")
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	n, err := store.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = store.ValidateRefreshCredential(ctx, b.Secret, "user-1")
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	_, err = store.ValidateRefreshCredential(ctx, other.Secret, "user-2")
	assert.NoError(t, err)
}

func TestSweepExpired(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateToken(ctx, testPhone, true, testSession)
	require.NoError(t, err)
	_, err = store.CreateRefreshCredential(ctx, "user-1")
	require.NoError(t, err)

	res, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)

	clock.Advance(11 * time.Minute)
	res, err = store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{VerificationTokens: 1}, res)

	clock.Advance(31 * 24 * time.Hour)
	res, err = store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{RefreshCredentials: 1}, res)
}
