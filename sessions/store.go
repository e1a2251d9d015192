package sessions

// Store defines the interface for session storage. Implementations must
// guard each session's mutable fields with a per-session lock so that
// refreshing one session never blocks operations on another.
type Store interface {
	// Create adds a new session. Fails if the id is empty or already present.
	Create(session Session) error

	// Snapshot returns a copy of the session, or ErrSessionNotFound.
	Snapshot(sessionID string) (Session, error)

	// Update runs fn on the live session record under its lock. The record
	// is re-checked for existence after the lock is acquired, so fn never
	// runs on a deleted session. Mutations made by fn are published
	// atomically with respect to other Store operations.
	Update(sessionID string, fn func(*Session) error) error

	// Delete removes a session. Idempotent: deleting an absent session is
	// not an error.
	Delete(sessionID string) error

	// IDs returns a stable snapshot of current session ids, safe to iterate
	// while sessions are mutated or removed concurrently.
	IDs() []string

	// Len returns the number of sessions currently stored.
	Len() int
}
