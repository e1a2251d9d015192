package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalplanning/session-broker/authz"
	errs "github.com/capitalplanning/session-broker/internal/errors"
	"github.com/capitalplanning/session-broker/planning"
)

// ErrorResponse is the stable error shape returned to the orchestrator. No
// raw network errors or token values ever appear in it.
type ErrorResponse struct {
	Error          string   `json:"error"`
	Detail         string   `json:"detail,omitempty"`
	MissingScopes  []string `json:"missing_scopes,omitempty"`
	HeldScopes     []string `json:"held_scopes,omitempty"`
	UpstreamStatus int      `json:"upstream_status,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("encoding response")
	}
}

// writeError maps the internal error taxonomy onto HTTP statuses:
// session/auth problems are 401 ("re-authenticate"), missing scopes are 403,
// upstream non-auth failures are 502.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var authzErr *authz.AuthorizationError
	if errors.As(err, &authzErr) {
		s.writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error:         "authorization_error",
			Detail:        "session lacks required scope(s)",
			MissingScopes: authzErr.MissingScopes,
			HeldScopes:    authzErr.HeldScopes,
		})
		return
	}

	var upstreamErr *planning.UpstreamError
	switch {
	case errors.Is(err, errs.ErrAuthenticationExpired):
		// Checked before ErrSessionNotFound: a tool call on a vanished
		// session means "re-authenticate", not 404.
		s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:  "authentication_expired",
			Detail: "re-authentication required",
		})
	case errors.Is(err, errs.ErrSessionNotFound):
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:  "session_not_found",
			Detail: "no session with that id",
		})
	case errors.Is(err, planning.ErrUpstreamUnauthorized):
		s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:  "upstream_unauthorized",
			Detail: "planning service rejected the access token",
		})
	case errors.Is(err, planning.ErrUpstreamForbidden):
		s.writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error:  "upstream_forbidden",
			Detail: "planning service denied the operation",
		})
	case errors.As(err, &upstreamErr):
		s.writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:          "upstream_error",
			Detail:         upstreamErr.Body,
			UpstreamStatus: upstreamErr.Status,
		})
	default:
		s.log.Error().Err(err).Msg("unexpected error")
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal_error",
		})
	}
}
