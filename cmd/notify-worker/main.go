package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"potledger/internal/amqp"
	"potledger/internal/config"
	"potledger/internal/log"
	"potledger/internal/notify"
	"potledger/internal/services"
	"potledger/internal/sheets"
	gsheet "potledger/internal/sheets/google"
	mem "potledger/internal/sheets/memory"
	"potledger/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting notify-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Archive to Sheets when configured, otherwise keep exports in memory so
	// the worker still drains the queue.
	var writer sheets.ArchiveWriter
	if cfg.ArchiveSpreadsheetID != "" {
		writer, err = gsheet.New(ctx, cfg.ArchiveSpreadsheetID, cfg.ArchiveSheetName)
		if err != nil {
			logger.Error("Failed to initialize Sheets archive", "error", err)
			os.Exit(1)
		}
		logger.Info("Archiving to Google Sheets", "spreadsheet_id", cfg.ArchiveSpreadsheetID)
	} else {
		writer = mem.New()
		logger.Info("Sheets archive disabled - no ARCHIVE_SPREADSHEET_ID provided")
	}

	var notifier notify.Sender
	if cfg.NotifyEndpoint != "" {
		notifier = notify.NewHTTPSender(cfg.NotifyEndpoint, cfg.NotifyTimeout)
	} else {
		notifier = notify.NewLogSender(log.New(log.Config{Component: log.ComponentNotify}))
	}

	handler := services.NewEventHandler(repo, writer, notifier)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	err = amqpClient.Consume(ctx, amqp.Handlers{
		TransactionAdded: func(msg *amqp.TransactionAddedMessage) error {
			return handler.HandleTransactionAdded(ctx, msg)
		},
		PeriodClosed: func(msg *amqp.PeriodClosedMessage) error {
			return handler.HandlePeriodClosed(ctx, msg)
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Notify worker stopped")
}
