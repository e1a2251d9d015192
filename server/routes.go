package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHealth = "/health"

	// Session lifecycle routes (consumed by the orchestrator front-end)
	RouteSessions    = "/sessions"
	RouteSessionByID = "/sessions/{session_id}"

	// Domain tool routes (consumed by the agent; session id via header)
	RouteToolAssets    = "/tools/assets"
	RouteToolAssetByID = "/tools/assets/{asset_id}"
	RouteToolRisk      = "/tools/risk/analyze"
	RouteToolOptimize  = "/tools/investments/optimize"
)

// HeaderSessionID carries the session identifier out-of-band on tool calls,
// keeping token material and session handles out of tool parameters.
const HeaderSessionID = "X-Session-ID"

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// Session lifecycle API
	s.RegisterRouteHandler("POST "+RouteSessions, ChainMiddleware(s.CreateSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSessionByID, ChainMiddleware(s.SessionInfoHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteSessionByID, ChainMiddleware(s.DeleteSessionHandler(), s.APIMiddleware()...))

	// Domain tools
	s.RegisterRouteHandler("GET "+RouteToolAssets, ChainMiddleware(s.ListAssetsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteToolAssetByID, ChainMiddleware(s.GetAssetHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteToolRisk, ChainMiddleware(s.AnalyzeRiskHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteToolOptimize, ChainMiddleware(s.OptimizeInvestmentsHandler(), s.APIMiddleware()...))
}
