// Package lifecycle implements the session lifecycle boundary: admitting a
// token pair as a new session, reporting session diagnostics and tearing a
// session down with best-effort revocation.
package lifecycle

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/capitalplanning/session-broker/internal/config"
	errs "github.com/capitalplanning/session-broker/internal/errors"
	"github.com/capitalplanning/session-broker/oidc"
	"github.com/capitalplanning/session-broker/sessions"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// revokeTimeout bounds the detached revocation notify on delete.
const revokeTimeout = 15 * time.Second

// AccessTokenVerifier verifies a raw access token against the identity
// provider and returns its subject. Optional: a nil verifier admits tokens
// unverified, which is how the demo runs without issuer discovery.
type AccessTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (subject string, err error)
}

// CreateParams carries the initial token pair and grants for a new session.
type CreateParams struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
	Scopes           []string
	UserID           string
}

// Info is the diagnostic snapshot returned for a session. Token values are
// deliberately absent.
type Info struct {
	SessionID             string
	UserID                string
	Scopes                []string
	AccessTokenExpiresIn  time.Duration
	RefreshTokenExpiresIn time.Duration
	RefreshCount          int
	Status                sessions.Status
	CreatedAt             time.Time
	LastRefreshedAt       time.Time
}

// Service is the session lifecycle API used by the HTTP boundary.
type Service struct {
	store    sessions.Store
	revoker  oidc.Revoker
	verifier AccessTokenVerifier
	config   config.TokenConfig
	log      zerolog.Logger
}

// NewService creates a lifecycle service. revoker and verifier may be nil.
func NewService(store sessions.Store, revoker oidc.Revoker, verifier AccessTokenVerifier, cfg config.TokenConfig, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		revoker:  revoker,
		verifier: verifier,
		config:   cfg,
		log:      log.With().Str("component", "lifecycle").Logger(),
	}
}

// Create admits a token pair as a new session and returns its id. Obviously
// expired input is rejected rather than creating a doomed session.
func (s *Service) Create(ctx context.Context, p CreateParams) (string, error) {
	now := NowTimeFunc()

	accessExpiry := now.Add(p.AccessExpiresIn)
	if p.AccessExpiresIn <= 0 {
		// Fall back to the exp claim when the caller omits expires_in.
		if exp, ok := tokenExpiry(p.AccessToken); ok {
			accessExpiry = exp
		} else {
			accessExpiry = now.Add(s.config.GetDefaultAccessTokenExpiry())
		}
	}
	refreshExpiry := now.Add(p.RefreshExpiresIn)
	if p.RefreshExpiresIn <= 0 {
		refreshExpiry = now.Add(s.config.GetDefaultRefreshTokenExpiry())
	}

	if !accessExpiry.After(now) {
		return "", errs.Wrapf(errs.ErrExpiredToken, "access token")
	}
	if !refreshExpiry.After(now) {
		return "", errs.Wrapf(errs.ErrExpiredToken, "refresh token")
	}

	userID := p.UserID
	if s.verifier != nil {
		subject, err := s.verifier.Verify(ctx, p.AccessToken)
		if err != nil {
			return "", errs.Wrapf(err, "access token verification")
		}
		userID = subject
	} else if subject, ok := tokenSubject(p.AccessToken); ok && subject != p.UserID {
		s.log.Warn().
			Str("user_id", p.UserID).
			Str("token_subject", subject).
			Msg("declared user id does not match token subject")
	}

	session := sessions.Session{
		ID:                 uuid.NewString(),
		UserID:             userID,
		AccessToken:        p.AccessToken,
		AccessTokenExpiry:  accessExpiry,
		RefreshToken:       p.RefreshToken,
		RefreshTokenExpiry: refreshExpiry,
		Scopes:             p.Scopes,
		CreatedAt:          now,
		Status:             sessions.StatusActive,
	}
	if err := s.store.Create(session); err != nil {
		return "", errs.Wrapf(err, "creating session")
	}

	s.log.Info().
		Str("session_id", sessions.ShortID(session.ID)).
		Str("user_id", userID).
		Strs("scopes", p.Scopes).
		Dur("access_expires_in", accessExpiry.Sub(now)).
		Dur("refresh_expires_in", refreshExpiry.Sub(now)).
		Msg("session created")
	return session.ID, nil
}

// Info returns diagnostics for a session, or ErrSessionNotFound.
func (s *Service) Info(sessionID string) (Info, error) {
	snap, err := s.store.Snapshot(sessionID)
	if err != nil {
		return Info{}, err
	}

	now := NowTimeFunc()
	return Info{
		SessionID:             sessions.ShortID(snap.ID),
		UserID:                snap.UserID,
		Scopes:                snap.Scopes,
		AccessTokenExpiresIn:  max(0, snap.AccessTokenExpiry.Sub(now)),
		RefreshTokenExpiresIn: max(0, snap.RefreshTokenExpiry.Sub(now)),
		RefreshCount:          snap.RefreshCount,
		Status:                snap.Status,
		CreatedAt:             snap.CreatedAt,
		LastRefreshedAt:       snap.LastRefreshedAt,
	}, nil
}

// Delete removes a session. Idempotent: deleting an unknown id succeeds.
// The identity provider is notified to revoke the refresh token in a
// detached goroutine; logout never blocks or fails on that call.
func (s *Service) Delete(ctx context.Context, sessionID string) {
	snap, err := s.store.Snapshot(sessionID)
	_ = s.store.Delete(sessionID)
	if err != nil {
		return
	}

	s.log.Info().
		Str("session_id", sessions.ShortID(sessionID)).
		Msg("session deleted")

	if s.revoker == nil || snap.RefreshToken == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revokeTimeout)
		defer cancel()
		if err := s.revoker.Revoke(ctx, snap.RefreshToken); err != nil {
			s.log.Warn().
				Str("session_id", sessions.ShortID(sessionID)).
				Err(err).
				Msg("refresh token revocation notify failed")
		}
	}()
}

// SessionCount reports the number of live sessions, for health reporting.
func (s *Service) SessionCount() int {
	return s.store.Len()
}

func tokenExpiry(rawToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func tokenSubject(rawToken string) (string, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}
