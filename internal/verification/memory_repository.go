package verification

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.Mutex
	tokens  map[string]VerificationToken // by hash
	refresh map[string]RefreshCredential // by id
}

// NewMemoryRepository builds an in-memory verification store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		tokens:  make(map[string]VerificationToken),
		refresh: make(map[string]RefreshCredential),
	}
}

func (r *memoryRepository) CreateToken(_ context.Context, t VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.TokenHash] = t
	return nil
}

func (r *memoryRepository) ConsumeToken(_ context.Context, hash, phone, sessionID string, now time.Time) (VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.activeToken(hash, phone, sessionID, now)
	if !ok {
		return VerificationToken{}, ErrTokenInvalid
	}
	used := now.UTC()
	t.UsedAt = &used
	r.tokens[hash] = t
	return t, nil
}

func (r *memoryRepository) FindActiveToken(_ context.Context, hash, phone, sessionID string, now time.Time) (VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.activeToken(hash, phone, sessionID, now)
	if !ok {
		return VerificationToken{}, ErrTokenInvalid
	}
	return t, nil
}

func (r *memoryRepository) activeToken(hash, phone, sessionID string, now time.Time) (VerificationToken, bool) {
	t, ok := r.tokens[hash]
	if !ok || t.Phone != phone || t.SessionID != sessionID || t.UsedAt != nil || !t.ExpiresAt.After(now) {
		return VerificationToken{}, false
	}
	return t, true
}

func (r *memoryRepository) CreateRefresh(_ context.Context, c RefreshCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refresh[c.ID] = c
	return nil
}

func (r *memoryRepository) FindActiveRefresh(_ context.Context, hash, userID string, now time.Time) (RefreshCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.refresh {
		if c.TokenHash == hash && c.UserID == userID && c.RevokedAt == nil && c.ExpiresAt.After(now) {
			return c, nil
		}
	}
	return RefreshCredential{}, ErrRefreshInvalid
}

func (r *memoryRepository) RevokeRefresh(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.refresh[id]
	if !ok || c.RevokedAt != nil {
		return false, nil
	}
	r.revokeLocked(c, at)
	return true, nil
}

func (r *memoryRepository) RevokeRefreshByHash(_ context.Context, hash, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.refresh {
		if c.TokenHash == hash && c.UserID == userID && c.RevokedAt == nil {
			r.revokeLocked(c, at)
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) RevokeAllRefresh(_ context.Context, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.refresh {
		if c.UserID == userID && c.RevokedAt == nil {
			r.revokeLocked(c, at)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepository) revokeLocked(c RefreshCredential, at time.Time) {
	revoked := at.UTC()
	c.RevokedAt = &revoked
	r.refresh[c.ID] = c
}

func (r *memoryRepository) DeleteExpired(_ context.Context, now time.Time) (SweepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res SweepResult
	for hash, t := range r.tokens {
		if !t.ExpiresAt.After(now) {
			delete(r.tokens, hash)
			res.VerificationTokens++
		}
	}
	for id, c := range r.refresh {
		if !c.ExpiresAt.After(now) {
			delete(r.refresh, id)
			res.RefreshCredentials++
		}
	}
	return res, nil
}
