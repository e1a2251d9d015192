// Package oidcfakes provides a hand-rolled identity provider double that
// enforces refresh token rotation the way a real provider does: every
// refresh invalidates the presented token, and reuse of a rotated token is
// rejected with invalid_grant.
package oidcfakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	errs "github.com/capitalplanning/session-broker/internal/errors"
	"github.com/capitalplanning/session-broker/oidc"
)

var _ oidc.Refresher = (*FakeRefresher)(nil)

type FakeRefresher struct {
	lock       sync.Mutex
	accessTTL  time.Duration
	refreshTTL time.Duration
	live       map[string]bool // refresh tokens that have not been rotated away
	seq        int
	calls      int
	failNext   int
	failErr    error
	delay      time.Duration

	// Now supplies the mint time for issued pairs; override alongside the
	// manager's NowTimeFunc when testing with a synthetic clock.
	Now func() time.Time
}

// NewFakeRefresher seeds the provider with the given live refresh tokens.
func NewFakeRefresher(accessTTL, refreshTTL time.Duration, seedTokens ...string) *FakeRefresher {
	live := make(map[string]bool, len(seedTokens))
	for _, t := range seedTokens {
		live[t] = true
	}
	return &FakeRefresher{
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		live:       live,
		Now:        time.Now,
	}
}

func (f *FakeRefresher) Refresh(ctx context.Context, refreshToken string) (oidc.TokenPair, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return oidc.TokenPair{}, errs.Wrapf(errs.ErrRefreshFailed, "context cancelled")
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	f.calls++

	if f.failNext > 0 {
		f.failNext--
		return oidc.TokenPair{}, f.failErr
	}

	if !f.live[refreshToken] {
		return oidc.TokenPair{}, fmt.Errorf("%w: invalid_grant", errs.ErrRefreshRejected)
	}

	// Rotation: the presented token is spent.
	delete(f.live, refreshToken)
	f.seq++

	now := f.Now()
	pair := oidc.TokenPair{
		AccessToken:        fmt.Sprintf("access-%d", f.seq),
		AccessTokenExpiry:  now.Add(f.accessTTL),
		RefreshToken:       fmt.Sprintf("refresh-%d", f.seq),
		RefreshTokenExpiry: now.Add(f.refreshTTL),
	}
	f.live[pair.RefreshToken] = true
	return pair, nil
}

// Calls returns how many refresh exchanges have been attempted.
func (f *FakeRefresher) Calls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}

// FailNext makes the next n refreshes fail with err (ErrRefreshFailed when
// err is nil).
func (f *FakeRefresher) FailNext(n int, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err == nil {
		err = errs.Wrapf(errs.ErrRefreshFailed, "injected failure")
	}
	f.failNext = n
	f.failErr = err
}

// SetDelay adds latency to each refresh, widening race windows in
// concurrency tests.
func (f *FakeRefresher) SetDelay(d time.Duration) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.delay = d
}

// IsLive reports whether the given refresh token would still be accepted.
func (f *FakeRefresher) IsLive(refreshToken string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.live[refreshToken]
}
