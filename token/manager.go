// Package token implements the session-scoped token lifecycle manager. It
// decides when a session's access token needs refreshing, performs the
// refresh against the identity provider and publishes the rotated pair
// atomically, all under the session's own lock.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/capitalplanning/session-broker/internal/config"
	errs "github.com/capitalplanning/session-broker/internal/errors"
	"github.com/capitalplanning/session-broker/oidc"
	"github.com/capitalplanning/session-broker/sessions"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Manager orchestrates refresh decisions and rotation against the session
// store and the OIDC client. The per-session lock taken by store.Update is
// the sole serialization point: an interactive call and the heartbeat can
// never refresh the same session concurrently, so a refresh token is never
// presented twice.
type Manager struct {
	store     sessions.Store
	refresher oidc.Refresher
	config    config.TokenConfig
	log       zerolog.Logger
}

// NewManager creates a new token manager.
func NewManager(store sessions.Store, refresher oidc.Refresher, cfg config.TokenConfig, log zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		refresher: refresher,
		config:    cfg,
		log:       log.With().Str("component", "token-manager").Logger(),
	}
}

// EnsureValid returns a currently-valid access token for the session,
// refreshing the pair first when the access token is within the safety
// buffer of expiry. Any failure to produce a valid token surfaces as
// ErrAuthenticationExpired: the caller must re-authenticate, not retry.
func (m *Manager) EnsureValid(ctx context.Context, sessionID string) (string, error) {
	accessToken, err := m.ensure(ctx, sessionID, false)
	if err != nil {
		if errors.Is(err, errs.ErrAuthenticationExpired) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", errs.ErrAuthenticationExpired, err)
	}
	return accessToken, nil
}

// RefreshNow refreshes the session's tokens unconditionally, skipping the
// fast path. Used by the heartbeat scheduler for proactive refresh. Errors
// keep their underlying type (ErrSessionNotFound, ErrRefreshFailed,
// ErrRefreshRejected) so the scheduler can distinguish a deleted session
// from a failed refresh.
func (m *Manager) RefreshNow(ctx context.Context, sessionID string) error {
	_, err := m.ensure(ctx, sessionID, true)
	return err
}

func (m *Manager) ensure(ctx context.Context, sessionID string, force bool) (string, error) {
	var accessToken string
	var evict bool

	err := m.store.Update(sessionID, func(s *sessions.Session) error {
		now := NowTimeFunc()

		// Fast path: token still comfortably valid, no network call.
		if !force && s.AccessTokenExpiry.After(now.Add(m.config.GetRefreshSafetyBuffer())) {
			accessToken = s.AccessToken
			return nil
		}

		// Refresh chain exhausted: the refresh token itself has lapsed. The
		// session is unrecoverable, so it is evicted like one that exceeded
		// the failure threshold; otherwise the heartbeat would retry it on
		// every cycle forever.
		if !s.RefreshTokenExpiry.After(now) {
			s.Status = sessions.StatusExpired
			evict = true
			m.log.Warn().
				Str("session_id", sessions.ShortID(s.ID)).
				Msg("refresh token expired, re-authentication required")
			return errs.Wrapf(errs.ErrAuthenticationExpired, "re-authentication required")
		}

		pair, err := m.refresher.Refresh(ctx, s.RefreshToken)
		if err != nil {
			s.RefreshFailures++
			exceeded := s.RefreshFailures >= m.config.GetRefreshFailureThreshold()
			m.log.Warn().
				Str("session_id", sessions.ShortID(s.ID)).
				Int("consecutive_failures", s.RefreshFailures).
				Bool("threshold_exceeded", exceeded).
				Err(err).
				Msg("token refresh failed")
			if exceeded {
				s.Status = sessions.StatusExpired
				evict = true
			}
			if exceeded || errors.Is(err, errs.ErrRefreshRejected) {
				return fmt.Errorf("%w: %w", errs.ErrAuthenticationExpired, err)
			}
			return err
		}

		// Rotation: publish all token fields and counters as one unit under
		// the session lock. No reader ever observes a mix of old and new.
		s.AccessToken = pair.AccessToken
		s.AccessTokenExpiry = pair.AccessTokenExpiry
		s.RefreshToken = pair.RefreshToken
		s.RefreshTokenExpiry = pair.RefreshTokenExpiry
		s.RefreshCount++
		s.RefreshFailures = 0
		s.LastRefreshedAt = now
		accessToken = pair.AccessToken

		m.log.Debug().
			Str("session_id", sessions.ShortID(s.ID)).
			Int("refresh_count", s.RefreshCount).
			Time("access_expiry", s.AccessTokenExpiry).
			Msg("tokens refreshed")
		return nil
	})

	// Eviction happens outside the per-session lock so the store's map
	// mutex and the entry mutex are never held together here.
	if evict {
		_ = m.store.Delete(sessionID)
		m.log.Warn().
			Str("session_id", sessions.ShortID(sessionID)).
			Msg("unrecoverable session removed from store")
	}

	if err != nil {
		return "", err
	}
	return accessToken, nil
}
