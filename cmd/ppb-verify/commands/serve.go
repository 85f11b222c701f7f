package commands

import (
	"context"
	"time"

	"ppbverify/internal/components/chrono"
	"ppbverify/internal/config"
	"ppbverify/internal/server"
	"ppbverify/internal/verify"
	"ppbverify/lib/telemetry"
	"ppbverify/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--kind <kind>]",
	Short: "Serves the verification API of one record kind over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := selectedCfg
		kind := selectedKind()

		if cfg.TelemetryConfig != "" {
			otel, err := telemetry.SetupFromFile(ctx, "ppb-verify-"+string(kind), config.Version, cfg.TelemetryConfig)
			if err != nil {
				serviceutil.Fatal("failed to setup telemetry", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				otel.Shutdown(shutdownCtx)
			}()
			telemetry.InstrumentPerfStats(ctx, 15*time.Second)
		}

		tel := cliTelemetry()
		clock := chrono.NewStandardImpl()
		metrics := server.NewMetrics()

		verifier, err := newVerifier(ctx, cfg, kind, clock, tel, verify.WithObserver(metrics))
		if err != nil {
			serviceutil.Fatal("failed to initialize verifier", err)
		}
		defer verifier.Close()

		cron := chrono.NewStandardCron(tel, clock.Location())
		defer cron.Stop()
		if cfg.CacheOn() && cfg.CacheCleanupSpec != "" {
			err = cron.Cron(cfg.CacheCleanupSpec, func() {
				if removed := verifier.CleanupExpired(); removed > 0 {
					logger.Info("removed expired cache entries", "kind", kind, "count", removed)
				}
			})
			if err != nil {
				serviceutil.Fatal("failed to schedule cache cleanup", err)
			}
		}

		srv := server.New(verifier, server.Options{
			Version:          config.Version,
			MaxContentLength: cfg.MaxContentLength,
			Metrics:          metrics,
			Clock:            clock,
			Logger:           logger,
		})

		logger.Info("starting verification service",
			"kind", kind,
			"env", cfg.Env,
			"addr", cfg.Addr(),
			"cache_enabled", cfg.CacheOn(),
			"cache_backend", cfg.CacheBackend,
		)
		return serviceutil.StartHttpServer(ctx, cfg.Addr(), srv.Router())
	},
}
