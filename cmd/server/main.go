package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/explorers-club/progress/internal/badge"
	"github.com/explorers-club/progress/internal/catalog"
	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/handler"
	"github.com/explorers-club/progress/internal/kafka"
	"github.com/explorers-club/progress/internal/metrics"
	"github.com/explorers-club/progress/internal/postgres"
	"github.com/explorers-club/progress/internal/redis"
	"github.com/explorers-club/progress/internal/service"
	"github.com/explorers-club/progress/internal/websocket"
	"github.com/explorers-club/progress/internal/worker"
	"github.com/joho/godotenv"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// .env is optional; values already in the environment win
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	loadErr := err
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	if loadErr != nil {
		logger.Warn("failed to load config file, using defaults", "error", loadErr)
	}

	location, err := cfg.Progress.Location()
	if err != nil {
		logger.Error("invalid club timezone", "error", err)
		os.Exit(1)
	}

	metrics.Register()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize Redis. The scoreboard is a read model, so the service keeps
	// running without it and ranks teams from PostgreSQL.
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	scoreboard, err := redis.NewScoreboard(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("failed to connect to Redis, continuing without scoreboard", "error", err)
		scoreboard = nil
	} else {
		defer scoreboard.Close()
		logger.Info("connected to Redis")
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger, cfg.Server.AllowedOrigins)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	awards := service.NewAwardEngine(repo, badge.NewEvaluator(repo, logger), &cfg.Progress, logger)

	completions := service.NewCompletionService(repo, awards, &cfg.Progress, logger)
	completions.SetNotifier(wsHub)

	chapters, err := service.NewChapterAggregator(repo, &cfg.Progress, logger)
	if err != nil {
		logger.Error("failed to create chapter aggregator", "error", err)
		os.Exit(1)
	}

	feed := service.NewFeedBuilder(repo, &cfg.Progress, logger)

	categories, err := catalog.NewCache(repo, &cfg.Categories, logger)
	if err != nil {
		logger.Error("failed to create category cache", "error", err)
		os.Exit(1)
	}

	var rankings service.RankingSource
	var reconcileWorker *worker.ReconcileWorker
	if scoreboard != nil {
		rankings = scoreboard
		completions.SetScoreboard(scoreboard)

		reconcileWorker = worker.NewReconcileWorker(repo, scoreboard, &cfg.Sync, logger)

		// Rebuild the scoreboard from PostgreSQL on startup (recovery)
		logger.Info("reconciling scoreboard from database")
		if err := reconcileWorker.RunOnce(ctx); err != nil {
			logger.Warn("failed to reconcile scoreboard on startup", "error", err)
		}

		if cfg.Sync.Enabled {
			if err := reconcileWorker.Start(ctx); err != nil {
				logger.Error("failed to start reconcile worker", "error", err)
				os.Exit(1)
			}
		}
	}
	scoreboardService := service.NewScoreboardService(rankings, repo, &cfg.Scoreboard, logger)

	// Announce chapter unlocks to connected clients
	var announcer *worker.UnlockAnnouncer
	if cfg.Unlock.Enabled {
		announcer = worker.NewUnlockAnnouncer(chapters, wsHub, &cfg.Unlock, location, logger)
		if err := announcer.Start(ctx); err != nil {
			logger.Warn("failed to start unlock announcer", "error", err)
			announcer = nil
		}
	}

	// Initialize Kafka consumer for bulk completion ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, completions, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(handler.Services{
		Completions: completions,
		Chapters:    chapters,
		Feed:        feed,
		Rankings:    scoreboardService,
		Categories:  categories,
	}, wsHub, cfg.Server.AllowedOrigins, logger)
	httpHandler.AddReadinessCheck("postgres", repo.Ping)
	if scoreboard != nil {
		httpHandler.AddReadinessCheck("redis", scoreboard.Ping)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "timezone", location.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting requests before tearing down the workers behind them
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if announcer != nil {
		if err := announcer.Stop(); err != nil {
			logger.Error("failed to stop unlock announcer", "error", err)
		}
	}

	if reconcileWorker != nil {
		if err := reconcileWorker.Stop(); err != nil {
			logger.Error("failed to stop reconcile worker", "error", err)
		}
	}

	wsHub.Stop()

	logger.Info("server stopped")
}
