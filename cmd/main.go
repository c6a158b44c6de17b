/**
 * @description
 * Entry point for the creator payout and subscription lifecycle service.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/WeAreKoji/getkoji-sub002/internal/api"
	"github.com/WeAreKoji/getkoji-sub002/internal/app"
	"github.com/WeAreKoji/getkoji-sub002/internal/config"
	"github.com/WeAreKoji/getkoji-sub002/internal/store"
	payoutrabbit "github.com/WeAreKoji/getkoji-sub002/pkg/rabbitmq"
	"github.com/WeAreKoji/getkoji-sub002/pkg/stripeclient"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewRepository(dbpool)
	processor := stripeclient.NewClient(cfg.StripeKey)

	var publisher app.EventPublisher = &payoutrabbit.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := payoutrabbit.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}

	var lock app.JobLock = app.NewRedisJobLock(nil, "")
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid Redis URL, scheduled jobs run unguarded", "error", err)
		} else {
			lock = app.NewRedisJobLock(redis.NewClient(opts), "")
			logger.Info("redis job lock enabled")
		}
	}

	connector := app.NewConnector(repository, processor, cfg.PlatformBaseURL)
	lifecycle := app.NewLifecycle(repository, processor, publisher)
	adjudicator := app.NewAdjudicator(repository, processor, publisher)
	retry := app.NewRetryEngine(repository, processor, connector, publisher, cfg.RetryMaxAttempts, cfg.RetryBatchSize)
	attributor := app.NewAttributor(repository, processor, connector, publisher, cfg.CommissionRateBPS, cfg.ReferralWindowMonths, cfg.ReferralActivationRevenue, cfg.DefaultCurrency)

	jobs := app.NewJobs(retry, attributor, lock, logger)
	scheduler := app.NewScheduler(jobs, logger, *cfg)
	scheduler.Start()

	handler := api.NewHandler(connector, lifecycle, adjudicator, retry, attributor)
	router := api.NewRouter(handler, cfg.JWKSURL, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-shutdownCtx.Done():
		logger.Warn("timed out waiting for running jobs to finish")
	}

	logger.Info("server stopped")
}
