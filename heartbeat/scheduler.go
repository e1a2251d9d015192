// Package heartbeat runs the background proactive-refresh loop. It walks
// all sessions on a fixed interval and refreshes any whose access token
// would lapse before the next cycle, independent of caller activity.
package heartbeat

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/capitalplanning/session-broker/internal/config"
	errs "github.com/capitalplanning/session-broker/internal/errors"
	"github.com/capitalplanning/session-broker/sessions"
	"github.com/capitalplanning/session-broker/token"
)

// TokenRefresher is the slice of the token manager the scheduler needs.
type TokenRefresher interface {
	RefreshNow(ctx context.Context, sessionID string) error
}

// Stats summarises one heartbeat cycle.
type Stats struct {
	Total     int
	Refreshed int
	Skipped   int
	Failed    int
}

// Scheduler periodically refreshes sessions nearing expiry. The interval
// must be strictly smaller than the access-token lifetime so every session
// is refreshed at least once before its token would otherwise lapse.
type Scheduler struct {
	store     sessions.Store
	refresher TokenRefresher
	config    config.TokenConfig
	log       zerolog.Logger
	running   atomic.Bool
}

// NewScheduler creates a heartbeat scheduler.
func NewScheduler(store sessions.Store, refresher TokenRefresher, cfg config.TokenConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		refresher: refresher,
		config:    cfg,
		log:       log.With().Str("component", "heartbeat").Logger(),
	}
}

// Run executes heartbeat cycles until ctx is cancelled. Intended to be
// launched exactly once as a background goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.config.GetHeartbeatInterval()
	s.log.Info().Dur("interval", interval).Msg("heartbeat started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("heartbeat stopped")
			return
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle performs a single heartbeat pass. If the previous cycle is still in
// flight (refresh calls outlasted the interval), the new cycle is skipped
// rather than overlapping two passes over the same sessions.
func (s *Scheduler) Cycle(ctx context.Context) Stats {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn().Msg("previous heartbeat cycle still running, skipping")
		return Stats{}
	}
	defer s.running.Store(false)

	// Snapshot ids first; sessions created or deleted mid-cycle are picked
	// up next time. Each id is re-checked just before acting because a
	// session may have been deleted between snapshot and refresh.
	ids := s.store.IDs()

	var refreshed, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.GetHeartbeatConcurrency())

	for _, id := range ids {
		g.Go(func() error {
			snap, err := s.store.Snapshot(id)
			if err != nil {
				// Deleted since the snapshot of ids; not an error.
				skipped.Add(1)
				return nil
			}
			if !s.withinRefreshWindow(snap) {
				skipped.Add(1)
				return nil
			}

			if err := s.refresher.RefreshNow(gctx, id); err != nil {
				if errors.Is(err, errs.ErrSessionNotFound) {
					skipped.Add(1)
					return nil
				}
				failed.Add(1)
				s.log.Warn().
					Str("session_id", sessions.ShortID(id)).
					Err(err).
					Msg("heartbeat refresh failed")
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	stats := Stats{
		Total:     len(ids),
		Refreshed: int(refreshed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	if stats.Total > 0 {
		s.log.Info().
			Int("total", stats.Total).
			Int("refreshed", stats.Refreshed).
			Int("skipped", stats.Skipped).
			Int("failed", stats.Failed).
			Msg("heartbeat cycle complete")
	}
	return stats
}

// withinRefreshWindow reports whether the session's access token would lapse
// before the next cycle could save it: expiry within one interval plus the
// safety buffer.
func (s *Scheduler) withinRefreshWindow(snap sessions.Session) bool {
	deadline := token.NowTimeFunc().Add(s.config.GetHeartbeatInterval() + s.config.GetRefreshSafetyBuffer())
	return snap.AccessTokenExpiry.Before(deadline)
}
