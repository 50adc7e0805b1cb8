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
	"github.com/redis/go-redis/v9"

	"github.com/postclinics/clinic-agent/internal/api/router"
	"github.com/postclinics/clinic-agent/internal/clinic"
	appconfig "github.com/postclinics/clinic-agent/internal/config"
	"github.com/postclinics/clinic-agent/internal/conversation"
	"github.com/postclinics/clinic-agent/internal/knowledge"
	"github.com/postclinics/clinic-agent/internal/messaging"
	"github.com/postclinics/clinic-agent/internal/observability/metrics"
	"github.com/postclinics/clinic-agent/internal/patient"
	"github.com/postclinics/clinic-agent/internal/scheduling"
	"github.com/postclinics/clinic-agent/internal/whatsapp"
	"github.com/postclinics/clinic-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = redisClient.Close() }()

	catalog := clinic.Reabilitare()
	patientRepo := patient.NewPostgresRepository(pool)
	resolver := patient.NewResolver(patientRepo, logger.Named("patients"))
	appointmentRepo := scheduling.NewPostgresRepository(pool)
	engine := scheduling.NewEngine(appointmentRepo, resolver, catalog, logger.Named("scheduling"))

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

	llm := conversation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	toolset := conversation.NewToolset(engine, knowledge.NewPostgresSearcher(pool), loc)
	history := conversation.NewHistoryStore(redisClient)
	contactState := conversation.NewRedisContactState(redisClient)

	processor := conversation.NewProcessor(
		llm,
		toolset,
		history,
		contactState,
		engine,
		sender,
		catalog,
		loc,
		conversation.ProcessorConfig{
			MaxTextChars:        cfg.MaxTextChars,
			MaxProfileChars:     cfg.MaxProfileChars,
			MaxToolOutputChars:  cfg.MaxToolOutputChars,
			MaxInlineToolCalls:  cfg.MaxInlineToolCalls,
			MaxRepeatedSameCall: cfg.MaxRepeatedSameCall,
			MaxToolRounds:       cfg.MaxToolRounds,
			LLMMaxTokens:        cfg.LLMMaxTokens,
			HandoffTTL:          cfg.HandoffTTL,
		},
		logger.Named("conversation"),
	)

	queue := conversation.NewMemoryQueue(0)
	publisher := conversation.NewPublisher(queue, logger.Named("publisher"))
	worker := conversation.NewWorker(processor, queue, logger.Named("worker"),
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithWorkerMetrics(pipelineMetrics),
	)
	worker.Start(ctx)

	gate := messaging.NewRedisGate(redisClient, messaging.GateConfig{
		DedupWindow:  cfg.DedupWindow,
		MaxPerMinute: cfg.MaxMessagesPerMinute,
		Cooldown:     cfg.Cooldown,
	})
	webhook := messaging.NewWebhookHandler(messaging.WebhookConfig{
		Secret:    cfg.WebhookSecret,
		Gate:      gate,
		Publisher: publisher,
		Metrics:   pipelineMetrics,
		Logger:    logger.Named("webhook"),
	})

	r := router.New(&router.Config{
		Webhook:        webhook,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	worker.Wait()
	logger.Info("server stopped")
}
