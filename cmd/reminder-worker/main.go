package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/postclinics/clinic-agent/internal/clinic"
	appconfig "github.com/postclinics/clinic-agent/internal/config"
	"github.com/postclinics/clinic-agent/internal/observability/metrics"
	"github.com/postclinics/clinic-agent/internal/patient"
	"github.com/postclinics/clinic-agent/internal/reminder"
	"github.com/postclinics/clinic-agent/internal/scheduling"
	"github.com/postclinics/clinic-agent/internal/whatsapp"
	"github.com/postclinics/clinic-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-agent reminder worker",
		"env", cfg.Env,
		"interval", cfg.ReminderInterval.String(),
	)

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "tz", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	sender, err := whatsapp.New(whatsapp.Config{
		BaseURL:     cfg.ZAPIBaseURL,
		InstanceID:  cfg.ZAPIInstanceID,
		Token:       cfg.ZAPIToken,
		ClientToken: cfg.ZAPIClientToken,
		MaxAttempts: cfg.SendMaxAttempts,
		BaseDelay:   cfg.SendRetryBaseWait,
		Metrics:     pipelineMetrics,
		Logger:      logger.Named("whatsapp"),
	})
	if err != nil {
		logger.Error("failed to configure whatsapp client", "error", err)
		os.Exit(1)
	}

	sweeper := reminder.NewSweeper(
		scheduling.NewPostgresRepository(pool),
		patient.NewPostgresRepository(pool),
		reminder.NewPostgresLogStore(pool),
		sender,
		clinic.Reabilitare(),
		loc,
		cfg.ReminderInterval,
		logger.Named("reminder"),
	).WithMetrics(pipelineMetrics)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", "error", err)
		}
	}()

	sweeper.Run(ctx)
	logger.Info("reminder worker stopped")
}
