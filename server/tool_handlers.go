package server

import (
	"encoding/json"
	"net/http"

	"github.com/capitalplanning/session-broker/planning"
)

// AnalyzeRiskToolRequest is the agent-facing risk analysis payload. Domain
// parameters only; the session travels in the X-Session-ID header.
type AnalyzeRiskToolRequest struct {
	AssetIDs      []string `json:"asset_ids" validate:"required,min=1,max=100,dive,required"`
	HorizonMonths int      `json:"horizon_months" validate:"omitempty,gte=1,lte=120"`
}

// OptimizeInvestmentsToolRequest is the agent-facing optimization payload.
type OptimizeInvestmentsToolRequest struct {
	Candidates    []planning.InvestmentCandidate `json:"candidates" validate:"required,min=1"`
	Budget        float64                        `json:"budget" validate:"required,gt=0"`
	HorizonMonths int                            `json:"horizon_months" validate:"omitempty,gte=1,lte=120"`
}

const defaultHorizonMonths = 12

// sessionID extracts the out-of-band session handle from a tool request.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(HeaderSessionID)
	if id == "" {
		s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:  "missing_session",
			Detail: "tool calls require the " + HeaderSessionID + " header",
		})
		return "", false
	}
	return id, true
}

// ListAssetsHandler fetches all assets in a portfolio.
func (s *Server) ListAssetsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := s.sessionID(w, r)
		if !ok {
			return
		}

		assets, err := s.planner.ListAssets(r.Context(), sessionID, r.URL.Query().Get("portfolio_id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, assets)
	}
}

// GetAssetHandler fetches a single asset by id.
func (s *Server) GetAssetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := s.sessionID(w, r)
		if !ok {
			return
		}

		asset, err := s.planner.GetAsset(r.Context(), sessionID, r.PathValue("asset_id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, asset)
	}
}

// AnalyzeRiskHandler runs a risk analysis over the requested assets.
func (s *Server) AnalyzeRiskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := s.sessionID(w, r)
		if !ok {
			return
		}

		var req AnalyzeRiskToolRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}
		if req.HorizonMonths == 0 {
			req.HorizonMonths = defaultHorizonMonths
		}

		resp, err := s.planner.AnalyzeRisk(r.Context(), sessionID, planning.RiskAnalysisRequest{
			AssetIDs:      req.AssetIDs,
			HorizonMonths: req.HorizonMonths,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// OptimizeInvestmentsHandler produces an investment plan within budget.
func (s *Server) OptimizeInvestmentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := s.sessionID(w, r)
		if !ok {
			return
		}

		var req OptimizeInvestmentsToolRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}
		if req.HorizonMonths == 0 {
			req.HorizonMonths = defaultHorizonMonths
		}

		resp, err := s.planner.OptimizeInvestments(r.Context(), sessionID, planning.OptimizationRequest{
			Candidates:    req.Candidates,
			Budget:        req.Budget,
			HorizonMonths: req.HorizonMonths,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "invalid_request",
			Detail: "malformed JSON body",
		})
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "invalid_request",
			Detail: err.Error(),
		})
		return false
	}
	return true
}
