package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/care-coordination/internal/appointment"
	"github.com/hackgods/care-coordination/internal/bootstrap"
	"github.com/hackgods/care-coordination/internal/config"
)

// slot-worker keeps SLOT_HORIZON_DAYS of slots materialised ahead of today.
func main() {
	cfg, err := config.Load()
	logger := bootstrap.NewLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Int("horizon_days", cfg.SlotHorizonDays).
		Strs("doctors", cfg.SlotProviderIDs).
		Msg("slot-worker starting up")

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

	svc := bootstrap.NewServices(backends, cfg, logger).Appointments

	// Run once at startup
	runOnce(rootCtx, svc, cfg, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping slot worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, cfg config.Config, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	added, err := svc.GenerateSlots(runCtx, cfg.SlotProviderIDs, cfg.SlotHorizonDays, cfg.SlotTimes)
	if err != nil {
		logger.Error().Err(err).Msg("slot run error")
		return
	}
	logger.Info().Int("added", added).Dur("took", time.Since(start)).Msg("slot run complete")
}
