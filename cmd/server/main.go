package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/capitalplanning/session-broker/authz"
	"github.com/capitalplanning/session-broker/heartbeat"
	"github.com/capitalplanning/session-broker/internal/config"
	"github.com/capitalplanning/session-broker/lifecycle"
	"github.com/capitalplanning/session-broker/oidc"
	"github.com/capitalplanning/session-broker/planning"
	"github.com/capitalplanning/session-broker/server"
	"github.com/capitalplanning/session-broker/sessions"
	"github.com/capitalplanning/session-broker/token"
)

func main() {
	log := newLogger()
	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	cfg := config.New()
	displayAppname(cfg.GetAppName())

	store := sessions.NewInMemoryStore()
	oidcClient := oidc.NewClient(cfg, log)
	manager := token.NewManager(store, oidcClient, cfg, log)
	scheduler := heartbeat.NewScheduler(store, manager, cfg, log)

	var verifier lifecycle.AccessTokenVerifier
	if issuer := cfg.GetOidcIssuerURL(); issuer != "" {
		v, err := oidc.NewTokenVerifier(context.Background(), issuer)
		if err != nil {
			return fmt.Errorf("building token verifier: %w", err)
		}
		verifier = v
		log.Info().Str("issuer", issuer).Msg("access token verification enabled")
	}

	lifecycleService := lifecycle.NewService(store, oidcClient, verifier, cfg, log)
	enforcer := authz.NewEnforcer()
	planner := planning.NewClient(cfg, store, manager, enforcer, log)

	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	go scheduler.Run(heartbeatCtx)

	httpServer := &http.Server{
		Addr:    cfg.GetPort(),
		Handler: server.New(cfg, lifecycleService, planner, log),
	}
	go listenAndServe(httpServer, log)
	waitForStopSignal()

	stopHeartbeat()
	return shutdown(httpServer)
}

func newLogger() zerolog.Logger {
	zerolog.DurationFieldUnit = time.Millisecond
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(config.GetEnv("LOG_LEVEL", "info")); err == nil {
		level = parsed
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func listenAndServe(httpServer *http.Server, log zerolog.Logger) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
