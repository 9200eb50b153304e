package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"potledger/internal/amqp"
	"potledger/internal/bank"
	"potledger/internal/config"
	"potledger/internal/services"
	"potledger/internal/storage"
	"potledger/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting bank-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.BankAPIBaseURL == "" {
		logger.Error("BANK_API_BASE_URL is required for the bank worker")
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher services.EventPublisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, transaction events will not be published", "error", err)
	} else {
		defer amqpClient.Close()
		publisher = amqpClient
	}

	feed := bank.NewThrottled(
		bank.NewClient(cfg.BankAPIBaseURL, cfg.BankAPIToken, cfg.BankAPITimeout),
		cfg.BankRatePerSec, cfg.BankBurst)

	gate := services.NewRolloverGate()
	ledger := services.NewPotLedger(repo, gate)
	ingestor := services.NewTransactionIngestor(repo, feed, publisher, nil)
	categorizer := services.NewCategorizationEngine(repo, ledger, gate)

	pollerConfig := worker.DefaultPollerConfig()
	pollerConfig.PollInterval = cfg.PollInterval
	pollerConfig.ProviderTimeout = cfg.BankAPITimeout * 4
	pollerConfig.PulledAccounts = cfg.PulledAccounts

	poller := worker.NewPoller(ingestor, categorizer, pollerConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := poller.Start(ctx); err != nil {
		logger.Error("Failed to start poller", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := poller.Stop(stopCtx); err != nil {
		logger.Error("Poller shutdown error", "error", err)
	}

	logger.Info("Bank worker stopped")
}
