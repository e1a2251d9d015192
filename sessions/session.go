package sessions

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Session represents one user's authenticated context for the duration of an
// agent invocation. The store exclusively owns the live record; callers only
// ever see copies returned by Snapshot.
type Session struct {
	ID                 string    // Unique session identifier (UUID), immutable
	UserID             string    // Subject identifier from the identity provider, immutable
	AccessToken        string    // Current access token
	AccessTokenExpiry  time.Time // When the access token expires
	RefreshToken       string    // Current refresh token, single-use (rotates on every refresh)
	RefreshTokenExpiry time.Time // When the refresh token expires
	Scopes             []string  // Granted scopes, fixed at creation
	CreatedAt          time.Time // When the session was created
	LastRefreshedAt    time.Time // Last successful refresh, zero if never refreshed
	RefreshCount       int       // Number of successful refreshes
	RefreshFailures    int       // Consecutive refresh failures, reset on success
	Status             Status
}

// HasScope reports whether the session was granted the given scope.
func (s Session) HasScope(scope string) bool {
	return slices.Contains(s.Scopes, scope)
}

// Clone returns a deep copy safe to hand outside the store.
func (s Session) Clone() Session {
	c := s
	c.Scopes = slices.Clone(s.Scopes)
	return c
}

// ShortID returns a truncated session id safe to log. Full ids are treated
// like credentials and never logged.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
