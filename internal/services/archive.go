package services

import (
	"context"
	"fmt"
	"log/slog"

	"potledger/internal/amqp"
	"potledger/internal/notify"
	"potledger/internal/sheets"
	"potledger/internal/storage"
)

// EventHandler reacts to ledger events from the queue: pushes a notification
// for each new transaction and exports each closed period to the archive.
type EventHandler struct {
	repo     *storage.Repository
	writer   sheets.ArchiveWriter
	notifier notify.Sender
}

func NewEventHandler(repo *storage.Repository, writer sheets.ArchiveWriter, notifier notify.Sender) *EventHandler {
	return &EventHandler{
		repo:     repo,
		writer:   writer,
		notifier: notifier,
	}
}

// HandleTransactionAdded notifies about an ingested transaction.
func (h *EventHandler) HandleTransactionAdded(ctx context.Context, msg *amqp.TransactionAddedMessage) error {
	if h.notifier == nil {
		return nil
	}
	body := fmt.Sprintf("%s: £%.2f", msg.MerchantName, float64(msg.AmountCents)/100.0)
	if err := h.notifier.SendPushNotification(ctx, "New transaction", body); err != nil {
		// Returning the error would requeue and eventually re-notify; a lost
		// push is cheaper than a duplicate one.
		slog.WarnContext(ctx, "Failed to send push notification",
			"transaction_id", msg.TransactionID, "error", err)
	}
	return nil
}

// HandlePeriodClosed exports the closed period. Errors propagate so the
// delivery is requeued; the export is idempotent per period.
func (h *EventHandler) HandlePeriodClosed(ctx context.Context, msg *amqp.PeriodClosedMessage) error {
	archive, err := h.loadArchive(ctx, msg.PeriodID)
	if err != nil {
		return err
	}

	ref, err := h.writer.WriteArchive(ctx, *archive)
	if err != nil {
		return fmt.Errorf("export period %s: %w", msg.PeriodID, err)
	}

	slog.InfoContext(ctx, "Exported closed period",
		"period_id", msg.PeriodID, "ref", ref)
	return nil
}

func (h *EventHandler) loadArchive(ctx context.Context, periodID string) (*sheets.PeriodArchive, error) {
	q := h.repo.Queries()

	period, err := q.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	spending, err := q.ListSpendingSnapshots(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("load spending history: %w", err)
	}
	savings, err := q.ListSavingsSnapshots(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("load savings history: %w", err)
	}

	return &sheets.PeriodArchive{
		Period:   *period,
		Spending: spending,
		Savings:  savings,
	}, nil
}
