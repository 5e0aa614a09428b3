package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTrackerContract(t *testing.T, tracker AttemptTracker, expire func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	state, err := tracker.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateExpired, state)

	assert.ErrorIs(t, tracker.Transition(ctx, "s1", StateConfirmed), ErrInvalidTransition)

	for _, to := range []AttemptState{StateInitiated, StateNotified, StateConfirmed, StateDelivered} {
		require.NoError(t, tracker.Transition(ctx, "s1", to), "to %s", to)
		state, err = tracker.State(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, to, state)
	}
	assert.ErrorIs(t, tracker.Transition(ctx, "s1", StateFailed), ErrInvalidTransition)
	assert.ErrorIs(t, tracker.Transition(ctx, "s1", StateInitiated), ErrInvalidTransition)

	require.NoError(t, tracker.Transition(ctx, "s2", StateInitiated))
	require.NoError(t, tracker.Transition(ctx, "s2", StateFailed))
	assert.ErrorIs(t, tracker.Transition(ctx, "s2", StateNotified), ErrInvalidTransition)

	expire(11 * time.Minute)
	state, err = tracker.State(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateExpired, state)
}

func TestMemoryAttemptTracker(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	tracker := NewMemoryAttemptTracker(10 * time.Minute)
	tracker.now = clock.Now
	runTrackerContract(t, tracker, clock.Advance)
}

func TestRedisAttemptTracker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tracker := NewRedisAttemptTracker(client, 10*time.Minute)
	runTrackerContract(t, tracker, mr.FastForward)

	assert.False(t, mr.Exists(attemptKeyPrefix+"s1"))
}

func TestRedisAttemptTrackerRejectsUnknownState(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tracker := NewRedisAttemptTracker(client, time.Minute)
	assert.ErrorIs(t, tracker.Transition(context.Background(), "s1", StateExpired), ErrInvalidTransition)
}
