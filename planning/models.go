package planning

// Asset is an infrastructure asset returned by the asset service.
type Asset struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Type              string  `json:"type"`
	InstallDate       string  `json:"install_date"`
	Location          string  `json:"location"`
	Condition         string  `json:"condition"`
	ReplacementCost   float64 `json:"replacement_cost"`
	ExpectedLifeYears int     `json:"expected_life_years"`
	CurrentAgeYears   int     `json:"current_age_years"`
}

// AssetRisk is the risk assessment for a single asset.
type AssetRisk struct {
	AssetID              string  `json:"asset_id"`
	ProbabilityOfFailure float64 `json:"probability_of_failure"`
	ConsequenceScore     float64 `json:"consequence_score"`
	RiskScore            float64 `json:"risk_score"`
	ConditionAssessment  string  `json:"condition_assessment"`
}

// RiskAnalysisRequest is the payload for the risk service analyze endpoint.
type RiskAnalysisRequest struct {
	AssetIDs      []string `json:"asset_ids"`
	HorizonMonths int      `json:"horizon_months"`
}

// RiskAnalysisResponse is returned by the risk service analyze endpoint.
type RiskAnalysisResponse struct {
	AnalysisID    string      `json:"analysis_id"`
	HorizonMonths int         `json:"horizon_months"`
	Risks         []AssetRisk `json:"risks"`
}

// InvestmentCandidate is one intervention option fed to the optimizer.
type InvestmentCandidate struct {
	AssetID               string  `json:"asset_id"`
	InterventionType      string  `json:"intervention_type"`
	Cost                  float64 `json:"cost"`
	ExpectedRiskReduction float64 `json:"expected_risk_reduction"`
}

// SelectedInvestment is an intervention chosen by the optimizer.
type SelectedInvestment struct {
	AssetID               string  `json:"asset_id"`
	InterventionType      string  `json:"intervention_type"`
	Cost                  float64 `json:"cost"`
	ExpectedRiskReduction float64 `json:"expected_risk_reduction"`
	PriorityRank          int     `json:"priority_rank"`
}

// OptimizationRequest is the payload for the investment optimize endpoint.
type OptimizationRequest struct {
	Candidates    []InvestmentCandidate `json:"candidates"`
	Budget        float64               `json:"budget"`
	HorizonMonths int                   `json:"horizon_months"`
}

// OptimizationResponse is returned by the investment optimize endpoint.
type OptimizationResponse struct {
	PlanID              string               `json:"plan_id"`
	TotalBudget         float64              `json:"total_budget"`
	BudgetUsed          float64              `json:"budget_used"`
	BudgetRemaining     float64              `json:"budget_remaining"`
	SelectedInvestments []SelectedInvestment `json:"selected_investments"`
	TotalRiskReduction  float64              `json:"total_risk_reduction"`
}
