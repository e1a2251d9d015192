// Package planning wraps outbound calls to the capital planning business
// services (assets, risk, investments). Every call runs the scope check and
// obtains a currently-valid access token before any network traffic.
package planning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/capitalplanning/session-broker/authz"
	"github.com/capitalplanning/session-broker/internal/config"
	errs "github.com/capitalplanning/session-broker/internal/errors"
	"github.com/capitalplanning/session-broker/sessions"
)

var (
	// ErrUpstreamUnauthorized means the downstream service rejected our
	// bearer token (401). This should not happen when the token manager is
	// healthy, so it is never retried automatically.
	ErrUpstreamUnauthorized = errors.New("upstream rejected access token")

	// ErrUpstreamForbidden means the downstream service rejected the token's
	// scopes (403) - its own second line of defense behind our enforcer.
	ErrUpstreamForbidden = errors.New("upstream denied operation")
)

// UpstreamError is a non-2xx response unrelated to auth, propagated as-is.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Status, e.Body)
}

// TokenSource yields a valid access token for a session, refreshing if
// necessary.
type TokenSource interface {
	EnsureValid(ctx context.Context, sessionID string) (string, error)
}

// Client calls the capital planning services with per-session bearer
// credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      sessions.Store
	tokens     TokenSource
	enforcer   *authz.Enforcer
	log        zerolog.Logger
}

// NewClient creates a planning services client.
func NewClient(cfg config.PlanningConfig, store sessions.Store, tokens TokenSource, enforcer *authz.Enforcer, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    cfg.GetServicesBaseURL(),
		httpClient: &http.Client{Timeout: cfg.GetServicesTimeout()},
		store:      store,
		tokens:     tokens,
		enforcer:   enforcer,
		log:        log.With().Str("component", "planning-client").Logger(),
	}
}

// ListAssets fetches all assets in a portfolio. Requires assets:read.
func (c *Client) ListAssets(ctx context.Context, sessionID, portfolioID string) ([]Asset, error) {
	query := url.Values{}
	if portfolioID != "" {
		query.Set("portfolio_id", portfolioID)
	}

	var assets []Asset
	if err := c.call(ctx, sessionID, authz.OpListAssets, http.MethodGet, "/assets", query, nil, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// GetAsset fetches a single asset by id. Requires assets:read.
func (c *Client) GetAsset(ctx context.Context, sessionID, assetID string) (*Asset, error) {
	var asset Asset
	path := "/assets/" + url.PathEscape(assetID)
	if err := c.call(ctx, sessionID, authz.OpGetAsset, http.MethodGet, path, nil, nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// AnalyzeRisk runs a risk analysis over the given assets. Requires
// risk:analyze.
func (c *Client) AnalyzeRisk(ctx context.Context, sessionID string, req RiskAnalysisRequest) (*RiskAnalysisResponse, error) {
	var resp RiskAnalysisResponse
	if err := c.call(ctx, sessionID, authz.OpAnalyzeRisk, http.MethodPost, "/risk/analyze", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OptimizeInvestments produces an investment plan within budget. Requires
// investments:write.
func (c *Client) OptimizeInvestments(ctx context.Context, sessionID string, req OptimizationRequest) (*OptimizationResponse, error) {
	var resp OptimizationResponse
	if err := c.call(ctx, sessionID, authz.OpOptimizeInvestments, http.MethodPost, "/investments/optimize", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// call runs the full sequence for one downstream operation: scope check,
// token acquisition, HTTP call, status mapping. The scope check fails before
// any network call is issued.
func (c *Client) call(ctx context.Context, sessionID, operation, method, path string, query url.Values, body, out any) error {
	snap, err := c.store.Snapshot(sessionID)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrAuthenticationExpired, err)
	}

	if err := c.enforcer.Check(operation, snap.Scopes); err != nil {
		c.log.Warn().
			Str("session_id", sessions.ShortID(sessionID)).
			Str("operation", operation).
			Msg("authorization denied")
		return err
	}

	accessToken, err := c.tokens.EnsureValid(ctx, sessionID)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", operation, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("building %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().
		Str("session_id", sessions.ShortID(sessionID)).
		Str("operation", operation).
		Str("method", method).
		Str("path", path).
		Msg("calling planning service")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Status: 0, Body: fmt.Sprintf("network error: %v", err)}
	}
	defer resp.Body.Close()

	if err := mapStatus(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", operation, err)
		}
	}
	return nil
}

func mapStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUpstreamUnauthorized
	case http.StatusForbidden:
		return ErrUpstreamForbidden
	default:
		return &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}
}
