// Package oidc implements the thin client contract against the identity
// provider's token endpoint: exchanging a refresh token for a rotated
// access/refresh pair, and best-effort revocation of refresh tokens.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/capitalplanning/session-broker/internal/config"
	errs "github.com/capitalplanning/session-broker/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// TokenPair is the result of a successful refresh exchange. Both tokens are
// new: the provider invalidates the presented refresh token on rotation.
type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

// Revoker notifies the identity provider that a refresh token is no longer
// in use.
type Revoker interface {
	Revoke(ctx context.Context, refreshToken string) error
}

// Client talks to the identity provider's token and revocation endpoints.
type Client struct {
	oauthConfig       *oauth2.Config
	httpClient        *http.Client
	revocationURL     string
	refreshTimeout    time.Duration
	defaultAccessTTL  time.Duration
	defaultRefreshTTL time.Duration
	log               zerolog.Logger
}

var _ Refresher = (*Client)(nil)
var _ Revoker = (*Client)(nil)

// NewClient creates a token endpoint client from configuration.
func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GetOidcClientID(),
			ClientSecret: cfg.GetOidcClientSecret(),
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.GetOidcTokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:        &http.Client{Timeout: cfg.GetRefreshTimeout()},
		revocationURL:     cfg.GetOidcRevocationURL(),
		refreshTimeout:    cfg.GetRefreshTimeout(),
		defaultAccessTTL:  cfg.GetDefaultAccessTokenExpiry(),
		defaultRefreshTTL: cfg.GetDefaultRefreshTokenExpiry(),
		log:               log.With().Str("component", "oidc-client").Logger(),
	}
}

// Refresh performs a refresh_token grant. A provider rejection (the token
// was already rotated, revoked or expired) is returned as ErrRefreshRejected;
// transport problems are returned as ErrRefreshFailed so the caller can tell
// a dead refresh chain from a transient outage.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	src := c.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			c.log.Warn().
				Int("status", retrieveErr.Response.StatusCode).
				Str("error_code", retrieveErr.ErrorCode).
				Msg("token endpoint rejected refresh")
			return TokenPair{}, fmt.Errorf("%w: %s", errs.ErrRefreshRejected, retrieveErr.ErrorCode)
		}
		return TokenPair{}, errs.Wrapf(errs.ErrRefreshFailed, "token endpoint unreachable: %v", err)
	}

	now := NowTimeFunc()
	pair := TokenPair{
		AccessToken:       tok.AccessToken,
		AccessTokenExpiry: tok.Expiry,
		RefreshToken:      tok.RefreshToken,
	}
	if pair.AccessTokenExpiry.IsZero() {
		pair.AccessTokenExpiry = now.Add(c.defaultAccessTTL)
	}
	if pair.RefreshToken == "" {
		// Provider did not rotate; keep using the presented token.
		pair.RefreshToken = refreshToken
	}
	if v, ok := tok.Extra("refresh_expires_in").(float64); ok && v > 0 {
		pair.RefreshTokenExpiry = now.Add(time.Duration(v) * time.Second)
	} else {
		pair.RefreshTokenExpiry = now.Add(c.defaultRefreshTTL)
	}
	return pair, nil
}

// Revoke posts the refresh token to the provider's revocation endpoint
// (RFC 7009), retrying transient failures a few times with exponential
// backoff. Intended to be called fire-and-forget: failures are logged by the
// caller, never surfaced to the user.
func (c *Client) Revoke(ctx context.Context, refreshToken string) error {
	operation := func() (struct{}, error) {
		return struct{}{}, c.revokeOnce(ctx, refreshToken)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	return err
}

func (c *Client) revokeOnce(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {c.oauthConfig.ClientID},
		"client_secret":   {c.oauthConfig.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building revocation request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request: %w", err)
	}
	defer resp.Body.Close()

	// RFC 7009: 200 even for unknown tokens. 4xx means the request itself
	// is malformed, so retrying is pointless.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return backoff.Permanent(fmt.Errorf("revocation rejected: status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("revocation failed: status %d", resp.StatusCode)
	}
	return nil
}
