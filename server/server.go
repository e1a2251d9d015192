package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/capitalplanning/session-broker/internal/config"
	"github.com/capitalplanning/session-broker/lifecycle"
	"github.com/capitalplanning/session-broker/planning"
)

// Server exposes the session lifecycle API (consumed by the front-end
// orchestrator) and the domain tool endpoints (consumed by the agent). Tool
// calls carry the session id in the X-Session-ID header; token material
// never appears in any request or response body on this surface.
type Server struct {
	env       string // Environment (e.g., "DEV", "production")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	lifecycle *lifecycle.Service
	planner   *planning.Client
	validate  *validator.Validate
	log       zerolog.Logger
}

// New creates the HTTP boundary over the lifecycle service and planning
// client.
func New(cfg config.Config, lc *lifecycle.Service, planner *planning.Client, log zerolog.Logger) *Server {
	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		lifecycle: lc,
		planner:   planner,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log.With().Str("component", "server").Logger(),
	}

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	s.log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
