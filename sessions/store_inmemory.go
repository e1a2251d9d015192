package sessions

import (
	"fmt"
	"sync"

	errs "github.com/capitalplanning/session-broker/internal/errors"
)

// InMemoryStore is the in-memory implementation of Store.
//
// Lock discipline: the map mutex is only ever held for map lookups and
// insertions, never across a session mutation. Each entry carries its own
// mutex guarding the session record, so an Update on session A (which may
// block on network I/O inside fn) never blocks a call on session B.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	removed bool
	session Session
}

// NewInMemoryStore creates a new in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*entry),
	}
}

var _ Store = (*InMemoryStore)(nil)

// Create adds a new session to the store.
func (st *InMemoryStore) Create(session Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", ShortID(session.ID))
	}
	st.sessions[session.ID] = &entry{session: session.Clone()}
	return nil
}

// Snapshot returns a copy of the session record.
func (st *InMemoryStore) Snapshot(sessionID string) (Session, error) {
	e, err := st.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return Session{}, errs.ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// Update runs fn on the live record under the per-session lock. fn may
// block (e.g. on a refresh call); only this session's lock is held for the
// duration. Existence is re-checked after the lock is acquired so a delete
// racing with the lookup is observed as ErrSessionNotFound.
func (st *InMemoryStore) Update(sessionID string, fn func(*Session) error) error {
	e, err := st.lookup(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return errs.ErrSessionNotFound
	}
	return fn(&e.session)
}

// Delete removes a session. Idempotent: removing an absent id succeeds
// silently. The entry is unlinked from the map first (map lock only), then
// tombstoned under its own lock so an in-flight Update either completes
// before the tombstone or observes ErrSessionNotFound.
func (st *InMemoryStore) Delete(sessionID string) error {
	st.mu.Lock()
	e, ok := st.sessions[sessionID]
	if ok {
		delete(st.sessions, sessionID)
	}
	st.mu.Unlock()

	if !ok {
		return nil
	}

	e.mu.Lock()
	e.removed = true
	e.session.Status = StatusRevoked
	e.mu.Unlock()
	return nil
}

// IDs returns a snapshot of current session ids.
func (st *InMemoryStore) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of stored sessions.
func (st *InMemoryStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *InMemoryStore) lookup(sessionID string) (*entry, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	e, ok := st.sessions[sessionID]
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	return e, nil
}
