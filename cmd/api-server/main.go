package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/care-coordination/internal/api"
	"github.com/hackgods/care-coordination/internal/bootstrap"
	"github.com/hackgods/care-coordination/internal/config"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	logger := bootstrap.NewLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("version", version).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := bootstrap.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("backend connection error")
	}
	defer func() {
		if err := backends.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing backends")
		}
	}()

	services := bootstrap.NewServices(backends, cfg, logger)
	loadCtx, cancelLoad := context.WithTimeout(rootCtx, 30*time.Second)
	err = services.Load(loadCtx)
	cancelLoad()
	if err != nil {
		logger.Fatal().Err(err).Msg("initial load failed")
	}

	router := api.NewRouter(api.RouterConfig{
		Handler:      api.NewHandler(services.Appointments, services.Pharmacy, services.Notifications, logger),
		Store:        backends.Store,
		Redis:        backends.Redis,
		StoreBackend: cfg.StoreBackend,
		Env:          cfg.Env,
		Version:      version,
		CORSOrigins:  cfg.CORSOrigins,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
