package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/hazard-data-pipeline/internal/adapter/http"
	"github.com/couchcryptid/hazard-data-pipeline/internal/pipeline"
)

var serveEvery time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline on an interval with health and metrics endpoints",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		srv := httpadapter.NewServer(cfg.HTTP.Addr, a.pipeline, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()

		runLoop(ctx, a, clockwork.NewRealClock())

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

// runLoop triggers a run immediately and then on every tick until the
// context is cancelled. A failed run logs and waits for the next tick.
func runLoop(ctx context.Context, a *app, clock clockwork.Clock) {
	runOnce := func() {
		if _, err := a.pipeline.Run(ctx); err != nil {
			if errors.Is(err, pipeline.ErrRunInProgress) {
				logger.Warn("skipping tick, previous run still in progress")
				return
			}
			logger.Error("pipeline run failed", "error", err)
		}
	}

	runOnce()

	ticker := clock.NewTicker(serveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			runOnce()
		}
	}
}

func init() {
	serveCmd.Flags().DurationVar(&serveEvery, "every", 15*time.Minute, "interval between ingestion runs")
	rootCmd.AddCommand(serveCmd)
}
