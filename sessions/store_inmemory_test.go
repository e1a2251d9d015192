package sessions_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	errs "github.com/capitalplanning/session-broker/internal/errors"
	"github.com/capitalplanning/session-broker/sessions"
)

func testSession(id string) sessions.Session {
	now := time.Now()
	return sessions.Session{
		ID:                 id,
		UserID:             "alice",
		AccessToken:        "access-0",
		AccessTokenExpiry:  now.Add(10 * time.Second),
		RefreshToken:       "refresh-0",
		RefreshTokenExpiry: now.Add(30 * time.Second),
		Scopes:             []string{"assets:read"},
		CreatedAt:          now,
		Status:             sessions.StatusActive,
	}
}

func TestCreateAndSnapshot(t *testing.T) {
	store := sessions.NewInMemoryStore()

	require.NoError(t, store.Create(testSession("s1")))
	require.Equal(t, 1, store.Len())

	snap, err := store.Snapshot("s1")
	require.NoError(t, err)
	require.Equal(t, "alice", snap.UserID)
	require.Equal(t, []string{"assets:read"}, snap.Scopes)

	// The snapshot is a copy: mutating it must not leak into the store.
	snap.Scopes[0] = "mutated"
	snap2, err := store.Snapshot("s1")
	require.NoError(t, err)
	require.Equal(t, []string{"assets:read"}, snap2.Scopes)
}

func TestCreateRejectsDuplicateAndEmptyID(t *testing.T) {
	store := sessions.NewInMemoryStore()

	require.NoError(t, store.Create(testSession("s1")))
	require.Error(t, store.Create(testSession("s1")))
	require.Error(t, store.Create(testSession("")))
}

func TestSnapshotNotFound(t *testing.T) {
	store := sessions.NewInMemoryStore()

	_, err := store.Snapshot("missing")
	require.ErrorIs(t, err, errs.ErrSessionNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := sessions.NewInMemoryStore()
	require.NoError(t, store.Create(testSession("s1")))

	require.NoError(t, store.Delete("s1"))
	require.NoError(t, store.Delete("s1"))
	require.NoError(t, store.Delete("never-existed"))
	require.Equal(t, 0, store.Len())
}

func TestUpdateMutatesUnderLock(t *testing.T) {
	store := sessions.NewInMemoryStore()
	require.NoError(t, store.Create(testSession("s1")))

	err := store.Update("s1", func(s *sessions.Session) error {
		s.AccessToken = "access-1"
		s.RefreshCount++
		return nil
	})
	require.NoError(t, err)

	snap, err := store.Snapshot("s1")
	require.NoError(t, err)
	require.Equal(t, "access-1", snap.AccessToken)
	require.Equal(t, 1, snap.RefreshCount)
}

func TestUpdateAfterDeleteReturnsNotFound(t *testing.T) {
	store := sessions.NewInMemoryStore()
	require.NoError(t, store.Create(testSession("s1")))
	require.NoError(t, store.Delete("s1"))

	err := store.Update("s1", func(s *sessions.Session) error {
		t.Fatal("update fn must not run on a deleted session")
		return nil
	})
	require.ErrorIs(t, err, errs.ErrSessionNotFound)
}

// A long-running update on one session must not block operations on another.
func TestPerSessionLockingIndependence(t *testing.T) {
	store := sessions.NewInMemoryStore()
	require.NoError(t, store.Create(testSession("slow")))
	require.NoError(t, store.Create(testSession("fast")))

	release := make(chan struct{})
	updating := make(chan struct{})
	go func() {
		_ = store.Update("slow", func(s *sessions.Session) error {
			close(updating)
			<-release // simulates a refresh blocked on network I/O
			return nil
		})
	}()
	<-updating

	done := make(chan error, 1)
	go func() {
		if _, err := store.Snapshot("fast"); err != nil {
			done <- err
			return
		}
		done <- store.Update("fast", func(s *sessions.Session) error {
			s.RefreshCount++
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("operation on session B blocked by in-flight update on session A")
	}
	close(release)
}

func TestIDsSnapshotSafeUnderConcurrentDeletion(t *testing.T) {
	store := sessions.NewInMemoryStore()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, store.Create(testSession(id)))
	}

	ids := store.IDs()
	require.Len(t, ids, 5)

	var wg sync.WaitGroup
	deleteErrs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deleteErrs <- store.Delete(id)
		}()
	}

	// Iterating the snapshot while deletes land concurrently must not
	// panic or error; gone sessions just report not found.
	for _, id := range ids {
		if _, err := store.Snapshot(id); err != nil {
			require.ErrorIs(t, err, errs.ErrSessionNotFound)
		}
	}
	wg.Wait()
	close(deleteErrs)
	for err := range deleteErrs {
		require.NoError(t, err)
	}
	require.Equal(t, 0, store.Len())
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	store := sessions.NewInMemoryStore()
	require.NoError(t, store.Create(testSession("s1")))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update("s1", func(s *sessions.Session) error {
				s.RefreshCount++
				return nil
			})
		}()
	}
	wg.Wait()

	snap, err := store.Snapshot("s1")
	require.NoError(t, err)
	require.Equal(t, n, snap.RefreshCount)
}
