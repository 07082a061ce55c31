// Package session implements the in-memory session store (spec §4.8):
// per-session message history with TTL expiry and strict cross-session
// isolation, guarded by a per-session lock so concurrent queries against
// different sessions never block on each other.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the session id is unknown.
	ErrNotFound = errors.New("session: not found")
	// ErrExpired is returned when the session has outlived its TTL.
	ErrExpired = errors.New("session: expired")
	// ErrLockTimeout is returned when a per-session lock could not be
	// acquired within the configured bound (spec §5 "1 s" cleanup bound).
	ErrLockTimeout = errors.New("session: lock acquisition timed out")
)

// Citation is a validated reference into one retrieved chunk (spec §3).
type Citation struct {
	FilePath   string
	LineStart  int
	LineEnd    int
	Confidence float64
	Snippet    string
}

// Message is one immutable turn in a session (spec §3).
type Message struct {
	ID                string
	Role              string // "user" | "assistant"
	Content           string
	Timestamp         time.Time
	Citations         []Citation
	RetrievedChunkIDs []string
	TokenCount        int
}

// Session is a conversational context tied to one codebase (spec §3).
type Session struct {
	ID         string
	CodebaseID string
	CreatedAt  time.Time
	LastActive time.Time
	Messages   []Message
}

type entry struct {
	lock    chan struct{} // 1-buffered mutex supporting a bounded tryLock
	session Session
}

func newEntry(s Session) *entry {
	e := &entry{lock: make(chan struct{}, 1), session: s}
	e.lock <- struct{}{}
	return e
}

func (e *entry) tryLock(ctx context.Context, timeout time.Duration) error {
	select {
	case <-e.lock:
		return nil
	case <-time.After(timeout):
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) unlock() {
	e.lock <- struct{}{}
}

// Store holds every live session, keyed by opaque session id. The top-level
// map is guarded by its own lock for create/delete/index operations; message
// append/read on one session serialises through that session's own lock so
// cross-session operations never contend (spec §4.8, §5).
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	ttl         time.Duration
	lockTimeout time.Duration
	now         func() time.Time
}

// New builds a Store with the given TTL and per-session lock timeout.
func New(ttl, lockTimeout time.Duration) *Store {
	return &Store{
		sessions:    make(map[string]*entry),
		ttl:         ttl,
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// Create allocates a new session bound to a codebase and returns its id.
func (s *Store) Create(codebaseID string) string {
	id := uuid.NewString()
	now := s.now()
	sess := Session{ID: id, CodebaseID: codebaseID, CreatedAt: now, LastActive: now}

	s.mu.Lock()
	s.sessions[id] = newEntry(sess)
	s.mu.Unlock()
	return id
}

// Append inserts a message into a session, validating it exists and has not
// expired, and advances last-active (spec §4.8).
func (s *Store) Append(ctx context.Context, sessionID string, msg Message) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	if err := e.tryLock(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer e.unlock()

	if s.expired(e.session) {
		return ErrExpired
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	e.session.Messages = append(e.session.Messages, msg)
	e.session.LastActive = s.now()
	return nil
}

// Recent returns the last n messages in insertion order.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]Message, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.tryLock(ctx, s.lockTimeout); err != nil {
		return nil, err
	}
	defer e.unlock()

	if s.expired(e.session) {
		return nil, ErrExpired
	}
	msgs := e.session.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Get returns a copy of the session's metadata (without locking for the
// caller beyond the lookup itself), for status/debug surfaces.
func (s *Store) Get(sessionID string) (Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return e.session, nil
}

// DeleteByCodebase cascades session deletion when a codebase is deleted
// (spec §3 Codebase lifecycle, §4.8).
func (s *Store) DeleteByCodebase(codebaseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		if e.session.CodebaseID == codebaseID {
			delete(s.sessions, id)
		}
	}
}

// CleanupExpired removes sessions whose last-active time exceeds the TTL.
// It acquires each session's lock with the configured timeout and skips
// busy sessions to the next run rather than blocking (spec §4.8, §5).
func (s *Store) CleanupExpired(ctx context.Context) {
	s.mu.RLock()
	candidates := make(map[string]*entry, len(s.sessions))
	for id, e := range s.sessions {
		candidates[id] = e
	}
	s.mu.RUnlock()

	var toDelete []string
	for id, e := range candidates {
		if err := e.tryLock(ctx, s.lockTimeout); err != nil {
			continue // busy: skip to next run
		}
		expired := s.expired(e.session)
		e.unlock()
		if expired {
			toDelete = append(toDelete, id)
		}
	}

	if len(toDelete) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range toDelete {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
}

func (s *Store) expired(sess Session) bool {
	return s.now().Sub(sess.LastActive) > s.ttl
}

func (s *Store) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}
