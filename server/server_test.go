package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/capitalplanning/session-broker/authz"
	"github.com/capitalplanning/session-broker/internal/config"
	"github.com/capitalplanning/session-broker/lifecycle"
	"github.com/capitalplanning/session-broker/oidc/oidcfakes"
	"github.com/capitalplanning/session-broker/planning"
	"github.com/capitalplanning/session-broker/server"
	"github.com/capitalplanning/session-broker/sessions"
	"github.com/capitalplanning/session-broker/token"
)

// planningStub fakes the downstream planning services behind the tool
// endpoints.
type planningStub struct {
	requests atomic.Int64
	lastAuth atomic.Value
	status   atomic.Int64
}

func (p *planningStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /assets", func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		p.lastAuth.Store(r.Header.Get("Authorization"))
		if status := p.status.Load(); status != 0 {
			w.WriteHeader(int(status))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]planning.Asset{
			{ID: "asset-001", Name: "Main Street Bridge", Type: "bridge", Condition: "fair"},
			{ID: "asset-002", Name: "Water Treatment Plant", Type: "facility", Condition: "poor"},
		})
	})
	mux.HandleFunc("POST /risk/analyze", func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		p.lastAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(planning.RiskAnalysisResponse{
			AnalysisID: "analysis-1",
			Risks:      []planning.AssetRisk{{AssetID: "asset-001", RiskScore: 0.73}},
		})
	})
	return mux
}

type env struct {
	broker   *httptest.Server
	planning *planningStub
	store    *sessions.InMemoryStore
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	stub := &planningStub{}
	downstream := httptest.NewServer(stub.handler())
	t.Cleanup(downstream.Close)
	t.Setenv("SERVICES_BASE_URL", downstream.URL)

	cfg := config.New()
	store := sessions.NewInMemoryStore()
	refresher := oidcfakes.NewFakeRefresher(10*time.Second, 30*time.Second)
	manager := token.NewManager(store, refresher, cfg, zerolog.Nop())
	lc := lifecycle.NewService(store, nil, nil, cfg, zerolog.Nop())
	planner := planning.NewClient(cfg, store, manager, authz.NewEnforcer(), zerolog.Nop())

	s := server.New(cfg, lc, planner, zerolog.Nop())
	broker := httptest.NewServer(s)
	t.Cleanup(broker.Close)

	return &env{broker: broker, planning: stub, store: store}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.broker.URL+path, reqBody)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	decoded := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *env) createSession(t *testing.T, scopes []string) string {
	t.Helper()

	resp, body := e.do(t, http.MethodPost, "/sessions", map[string]any{
		"access_token":       "at-seed",
		"refresh_token":      "refresh-0",
		"access_expires_in":  600,
		"refresh_expires_in": 1800,
		"scopes":             scopes,
		"user_id":            "alice",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID, _ := body["session_id"].(string)
	require.NotEmpty(t, sessionID)
	return sessionID
}

func TestHealthEndpoint(t *testing.T) {
	e := setupEnv(t)

	resp, body := e.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, float64(0), body["session_count"])
}

func TestCreateSessionReturnsHandleNotTokens(t *testing.T) {
	e := setupEnv(t)

	resp, body := e.do(t, http.MethodPost, "/sessions", map[string]any{
		"access_token":       "at-seed",
		"refresh_token":      "rt-seed",
		"access_expires_in":  600,
		"refresh_expires_in": 1800,
		"scopes":             []string{"assets:read"},
		"user_id":            "alice",
	}, nil)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, body["session_id"])
	require.Equal(t, "alice", body["user_id"])
	require.NotContains(t, body, "access_token")
	require.NotContains(t, body, "refresh_token")
}

func TestCreateSessionValidation(t *testing.T) {
	e := setupEnv(t)

	// Missing scopes entirely.
	resp, body := e.do(t, http.MethodPost, "/sessions", map[string]any{
		"access_token":  "at-seed",
		"refresh_token": "rt-seed",
		"user_id":       "alice",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", body["error"])

	// Malformed JSON.
	req, err := http.NewRequest(http.MethodPost, e.broker.URL+"/sessions", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestSessionInfo(t *testing.T) {
	e := setupEnv(t)
	sessionID := e.createSession(t, []string{"assets:read", "risk:analyze"})

	resp, body := e.do(t, http.MethodGet, "/sessions/"+sessionID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "alice", body["user_id"])
	require.Equal(t, "active", body["status"])
	require.Equal(t, float64(0), body["refresh_count"])
	require.Greater(t, body["access_token_expires_in_seconds"], float64(0))
	require.NotContains(t, body, "access_token")
}

func TestSessionInfoUnknownID(t *testing.T) {
	e := setupEnv(t)

	resp, body := e.do(t, http.MethodGet, "/sessions/no-such-session", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "session_not_found", body["error"])
}

// Logout is idempotent at the HTTP surface: both deletes answer 200.
func TestDeleteSessionTwice(t *testing.T) {
	e := setupEnv(t)
	sessionID := e.createSession(t, []string{"assets:read"})

	resp, _ := e.do(t, http.MethodDelete, "/sessions/"+sessionID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodDelete, "/sessions/"+sessionID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestToolCallRequiresSessionHeader(t *testing.T) {
	e := setupEnv(t)

	resp, body := e.do(t, http.MethodGet, "/tools/assets", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "missing_session", body["error"])
	require.Equal(t, int64(0), e.planning.requests.Load())
}

func TestToolCallUnknownSessionRequiresReauth(t *testing.T) {
	e := setupEnv(t)

	resp, body := e.do(t, http.MethodGet, "/tools/assets", nil, map[string]string{
		server.HeaderSessionID: "no-such-session",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "authentication_expired", body["error"])
	require.Equal(t, int64(0), e.planning.requests.Load())
}

func TestToolCallHappyPath(t *testing.T) {
	e := setupEnv(t)
	sessionID := e.createSession(t, []string{"assets:read"})

	resp, _ := e.do(t, http.MethodGet, "/tools/assets", nil, map[string]string{
		server.HeaderSessionID: sessionID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(1), e.planning.requests.Load())
	require.Equal(t, "Bearer at-seed", e.planning.lastAuth.Load())
}

// A session without the risk:analyze scope is refused with the exact missing
// scopes in the body, before any downstream traffic.
func TestToolCallInsufficientScope(t *testing.T) {
	e := setupEnv(t)
	sessionID := e.createSession(t, []string{"assets:read"})

	resp, body := e.do(t, http.MethodPost, "/tools/risk/analyze", map[string]any{
		"asset_ids": []string{"asset-001"},
	}, map[string]string{server.HeaderSessionID: sessionID})

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "authorization_error", body["error"])
	require.Equal(t, []any{"risk:analyze"}, body["missing_scopes"])
	require.Equal(t, []any{"assets:read"}, body["held_scopes"])
	require.Equal(t, int64(0), e.planning.requests.Load())
}

func TestToolCallRiskAnalysis(t *testing.T) {
	e := setupEnv(t)
	sessionID := e.createSession(t, []string{"assets:read", "risk:analyze"})

	resp, body := e.do(t, http.MethodPost, "/tools/risk/analyze", map[string]any{
		"asset_ids":      []string{"asset-001"},
		"horizon_months": 24,
	}, map[string]string{server.HeaderSessionID: sessionID})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	risks, _ := body["risks"].([]any)
	require.Len(t, risks, 1)
}

func TestToolCallValidation(t *testing.T) {
	e := setupEnv(t)
	sessionID := e.createSession(t, []string{"risk:analyze"})

	resp, body := e.do(t, http.MethodPost, "/tools/risk/analyze", map[string]any{
		"asset_ids": []string{},
	}, map[string]string{server.HeaderSessionID: sessionID})

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", body["error"])
	require.Equal(t, int64(0), e.planning.requests.Load())
}

func TestToolCallUpstreamFailureIsBadGateway(t *testing.T) {
	e := setupEnv(t)
	sessionID := e.createSession(t, []string{"assets:read"})
	e.planning.status.Store(http.StatusServiceUnavailable)

	resp, body := e.do(t, http.MethodGet, "/tools/assets", nil, map[string]string{
		server.HeaderSessionID: sessionID,
	})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, "upstream_error", body["error"])
	require.Equal(t, float64(http.StatusServiceUnavailable), body["upstream_status"])
}

// Deleting a session mid-conversation turns subsequent tool calls into 401s,
// the signal the orchestrator uses to send the user back through login.
func TestDeletedSessionToolCallRequiresReauth(t *testing.T) {
	e := setupEnv(t)
	sessionID := e.createSession(t, []string{"assets:read"})

	resp, _ := e.do(t, http.MethodDelete, "/sessions/"+sessionID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodGet, "/tools/assets", nil, map[string]string{
		server.HeaderSessionID: sessionID,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "authentication_expired", body["error"])
}
