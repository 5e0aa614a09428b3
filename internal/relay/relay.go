// Package relay forwards issued credentials to clients waiting on a login
// attempt. Waiting clients attach by session id; a delivery reaches every
// client attached at that moment and is never replayed.
package relay

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// EventAuthSuccess is the event name pushed when credentials are issued.
const EventAuthSuccess = "auth_success"

const defaultShards = 32

// Event is the single message a waiting client receives.
type Event struct {
	Event        string `json:"event"`
	AuthToken    string `json:"authToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

// Hub routes session ids to per-session actors. A session id always hashes to
// the same shard, and a shard's lock serializes attach, detach and delivery
// for every session it owns.
type Hub struct {
	shards []*shard
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id    string
	peers map[*Subscription]struct{}
}

// Subscription is one attached waiting party.
type Subscription struct {
	hub       *Hub
	sessionID string
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub builds a hub with the given number of shards (32 if n <= 0).
func NewHub(n int) *Hub {
	if n <= 0 {
		n = defaultShards
	}
	h := &Hub{shards: make([]*shard, n)}
	for i := range h.shards {
		h.shards[i] = &shard{sessions: make(map[string]*session)}
	}
	return h
}

func (h *Hub) shardFor(sessionID string) *shard {
	return h.shards[xxhash.Sum64String(sessionID)%uint64(len(h.shards))]
}

// Attach registers a waiting party for sessionID. Several parties may attach
// to the same id; each is detached independently via Close.
func (h *Hub) Attach(sessionID string) *Subscription {
	sub := &Subscription{
		hub:       h,
		sessionID: sessionID,
		events:    make(chan Event, 1),
		done:      make(chan struct{}),
	}

	sh := h.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sess, ok := sh.sessions[sessionID]
	if !ok {
		sess = &session{id: sessionID, peers: make(map[*Subscription]struct{})}
		sh.sessions[sessionID] = sess
	}
	sess.peers[sub] = struct{}{}
	return sub
}

// Deliver pushes ev to every party currently attached to sessionID and
// retires the session. It returns the number of parties reached; zero is not
// an error. It never blocks on a slow client.
func (h *Hub) Deliver(sessionID string, ev Event) int {
	sh := h.shardFor(sessionID)
	sh.mu.Lock()
	sess, ok := sh.sessions[sessionID]
	if ok {
		delete(sh.sessions, sessionID)
	}
	sh.mu.Unlock()
	if !ok {
		return 0
	}

	delivered := 0
	for sub := range sess.peers {
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.events <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Sessions returns the number of sessions with at least one attached party.
func (h *Hub) Sessions() int {
	n := 0
	for _, sh := range h.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}

// Events yields at most one event.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// SessionID returns the id this subscription is attached to.
func (s *Subscription) SessionID() string {
	return s.sessionID
}

// Close detaches the subscription. It is safe to call more than once and
// after the session has been delivered.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		sh := s.hub.shardFor(s.sessionID)
		sh.mu.Lock()
		defer sh.mu.Unlock()
		sess, ok := sh.sessions[s.sessionID]
		if !ok {
			return
		}
		delete(sess.peers, s)
		if len(sess.peers) == 0 {
			delete(sh.sessions, s.sessionID)
		}
	})
}
