package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptState is the position of a login attempt in its state machine.
type AttemptState string

const (
	StateInitiated AttemptState = "INITIATED"
	StateNotified  AttemptState = "NOTIFIED"
	StateConfirmed AttemptState = "CONFIRMED"
	StateDelivered AttemptState = "DELIVERED"
	StateFailed    AttemptState = "FAILED"
	// StateExpired is reported for attempts with no live record.
	StateExpired AttemptState = "EXPIRED"
)

// predecessors lists, for each state, the states it may be entered from. The
// empty state means "no record yet".
var predecessors = map[AttemptState][]AttemptState{
	StateInitiated: {""},
	StateNotified:  {StateInitiated},
	StateFailed:    {StateInitiated, StateNotified},
	StateConfirmed: {StateNotified},
	StateDelivered: {StateConfirmed},
}

// AttemptTracker records login attempt states keyed by session id. Records
// live as long as the verification window.
type AttemptTracker interface {
	Transition(ctx context.Context, sessionID string, to AttemptState) error
	State(ctx context.Context, sessionID string) (AttemptState, error)
}

const attemptKeyPrefix = "attempt:v1:"

// transitionScript moves the attempt to ARGV[1] only if its current state is
// one of ARGV[3..]. It runs atomically inside Redis.
var transitionScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then cur = '' end
for i = 3, #ARGV do
  if ARGV[i] == cur then
    redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
    return 1
  end
end
return 0
`)

// RedisAttemptTracker stores attempt states in Redis with a TTL.
type RedisAttemptTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAttemptTracker builds a Redis-backed tracker.
func NewRedisAttemptTracker(client *redis.Client, ttl time.Duration) *RedisAttemptTracker {
	return &RedisAttemptTracker{client: client, ttl: ttl}
}

// Transition implements AttemptTracker.
func (t *RedisAttemptTracker) Transition(ctx context.Context, sessionID string, to AttemptState) error {
	from, ok := predecessors[to]
	if !ok {
		return ErrInvalidTransition
	}
	args := make([]any, 0, len(from)+2)
	args = append(args, string(to), t.ttl.Milliseconds())
	for _, s := range from {
		args = append(args, string(s))
	}
	moved, err := transitionScript.Run(ctx, t.client, []string{attemptKeyPrefix + sessionID}, args...).Int()
	if err != nil {
		return fmt.Errorf("record attempt state: %w", err)
	}
	if moved == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// State implements AttemptTracker.
func (t *RedisAttemptTracker) State(ctx context.Context, sessionID string) (AttemptState, error) {
	v, err := t.client.Get(ctx, attemptKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return StateExpired, nil
	}
	if err != nil {
		return "", fmt.Errorf("read attempt state: %w", err)
	}
	return AttemptState(v), nil
}

type attemptRecord struct {
	state     AttemptState
	expiresAt time.Time
}

// MemoryAttemptTracker is an in-process AttemptTracker for development and tests.
type MemoryAttemptTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]attemptRecord
}

// NewMemoryAttemptTracker builds an in-memory tracker.
func NewMemoryAttemptTracker(ttl time.Duration) *MemoryAttemptTracker {
	return &MemoryAttemptTracker{ttl: ttl, now: time.Now, records: make(map[string]attemptRecord)}
}

// Transition implements AttemptTracker.
func (t *MemoryAttemptTracker) Transition(_ context.Context, sessionID string, to AttemptState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cur := AttemptState("")
	if rec, ok := t.records[sessionID]; ok {
		if now.Before(rec.expiresAt) {
			cur = rec.state
		} else {
			delete(t.records, sessionID)
		}
	}
	for _, s := range predecessors[to] {
		if s == cur {
			t.records[sessionID] = attemptRecord{state: to, expiresAt: now.Add(t.ttl)}
			return nil
		}
	}
	return ErrInvalidTransition
}

// State implements AttemptTracker.
func (t *MemoryAttemptTracker) State(_ context.Context, sessionID string) (AttemptState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[sessionID]
	if !ok || !t.now().Before(rec.expiresAt) {
		return StateExpired, nil
	}
	return rec.state, nil
}
