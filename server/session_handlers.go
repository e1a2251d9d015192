package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/capitalplanning/session-broker/lifecycle"
)

// CreateSessionRequest is the payload the front-end posts after completing
// the OIDC login flow. This is the only surface where token values cross the
// boundary; they go straight into the store and are never echoed back.
type CreateSessionRequest struct {
	AccessToken      string   `json:"access_token" validate:"required"`
	RefreshToken     string   `json:"refresh_token" validate:"required"`
	AccessExpiresIn  int      `json:"access_expires_in" validate:"gte=0"`
	RefreshExpiresIn int      `json:"refresh_expires_in" validate:"gte=0"`
	Scopes           []string `json:"scopes" validate:"required,min=1,dive,required"`
	UserID           string   `json:"user_id" validate:"required"`
}

// CreateSessionResponse returns the opaque handle for subsequent calls.
type CreateSessionResponse struct {
	SessionID string   `json:"session_id"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
}

// SessionInfoResponse is the diagnostic view of a session.
type SessionInfoResponse struct {
	SessionID                    string   `json:"session_id"`
	UserID                       string   `json:"user_id"`
	Scopes                       []string `json:"scopes"`
	AccessTokenExpiresInSeconds  float64  `json:"access_token_expires_in_seconds"`
	RefreshTokenExpiresInSeconds float64  `json:"refresh_token_expires_in_seconds"`
	RefreshCount                 int      `json:"refresh_count"`
	Status                       string   `json:"status"`
	CreatedAt                    string   `json:"created_at"`
	LastRefreshedAt              string   `json:"last_refreshed_at,omitempty"`
}

// HealthHandler reports service liveness and the live session count.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"service":       "session-broker",
			"session_count": s.lifecycle.SessionCount(),
		})
	}
}

// CreateSessionHandler admits a token pair as a new session.
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "invalid_request",
				Detail: "malformed JSON body",
			})
			return
		}
		if err := s.validate.Struct(req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "invalid_request",
				Detail: err.Error(),
			})
			return
		}

		sessionID, err := s.lifecycle.Create(r.Context(), lifecycle.CreateParams{
			AccessToken:      req.AccessToken,
			RefreshToken:     req.RefreshToken,
			AccessExpiresIn:  time.Duration(req.AccessExpiresIn) * time.Second,
			RefreshExpiresIn: time.Duration(req.RefreshExpiresIn) * time.Second,
			Scopes:           req.Scopes,
			UserID:           req.UserID,
		})
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "invalid_request",
				Detail: err.Error(),
			})
			return
		}

		s.writeJSON(w, http.StatusCreated, CreateSessionResponse{
			SessionID: sessionID,
			UserID:    req.UserID,
			Scopes:    req.Scopes,
		})
	}
}

// SessionInfoHandler returns session diagnostics; 404 if absent.
func (s *Server) SessionInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.lifecycle.Info(r.PathValue("session_id"))
		if err != nil {
			s.writeError(w, err)
			return
		}

		resp := SessionInfoResponse{
			SessionID:                    info.SessionID,
			UserID:                       info.UserID,
			Scopes:                       info.Scopes,
			AccessTokenExpiresInSeconds:  info.AccessTokenExpiresIn.Seconds(),
			RefreshTokenExpiresInSeconds: info.RefreshTokenExpiresIn.Seconds(),
			RefreshCount:                 info.RefreshCount,
			Status:                       string(info.Status),
			CreatedAt:                    info.CreatedAt.Format(time.RFC3339),
		}
		if !info.LastRefreshedAt.IsZero() {
			resp.LastRefreshedAt = info.LastRefreshedAt.Format(time.RFC3339)
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// DeleteSessionHandler tears a session down. Always 200: deleting an
// unknown or already-deleted session is not an error.
func (s *Server) DeleteSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.lifecycle.Delete(r.Context(), r.PathValue("session_id"))
		s.writeJSON(w, http.StatusOK, map[string]string{"message": "session deleted"})
	}
}
