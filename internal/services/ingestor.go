package services

import (
	"context"
	"fmt"
	"log/slog"

	"potledger/internal/amqp"
	"potledger/internal/bank"
	"potledger/internal/core"
	"potledger/internal/notify"
	"potledger/internal/storage"
)

// EventPublisher is the slice of the AMQP client the services use.
type EventPublisher interface {
	PublishTransactionAdded(ctx context.Context, msg *amqp.TransactionAddedMessage) error
	PublishPeriodClosed(ctx context.Context, msg *amqp.PeriodClosedMessage) error
}

// IngestResult reports one ingestion pass: how many feed transactions became
// new rows and how many were duplicates of earlier passes.
type IngestResult struct {
	Added   int
	Skipped int
}

// TransactionIngestor pulls transactions from the bank feed into local
// storage. Ingestion is idempotent on the provider's transaction id, so
// overlapping polls and provider replays are harmless.
type TransactionIngestor struct {
	repo      *storage.Repository
	feed      bank.FeedAdapter
	publisher EventPublisher
	notifier  notify.Sender
}

func NewTransactionIngestor(
	repo *storage.Repository,
	feed bank.FeedAdapter,
	publisher EventPublisher,
	notifier notify.Sender,
) *TransactionIngestor {
	return &TransactionIngestor{
		repo:      repo,
		feed:      feed,
		publisher: publisher,
		notifier:  notifier,
	}
}

// IngestPushed ingests the provider's pushed (webhook-buffered) transactions.
func (s *TransactionIngestor) IngestPushed(ctx context.Context) (IngestResult, error) {
	feed, err := s.feed.FetchPushedTransactions(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("fetch pushed transactions: %w", err)
	}
	return s.ingest(ctx, feed)
}

// IngestAccount ingests the pulled transactions of one linked account.
func (s *TransactionIngestor) IngestAccount(ctx context.Context, accountID string) (IngestResult, error) {
	feed, err := s.feed.FetchPulledTransactions(ctx, accountID)
	if err != nil {
		return IngestResult{}, fmt.Errorf("fetch transactions for account %s: %w", accountID, err)
	}
	return s.ingest(ctx, feed)
}

func (s *TransactionIngestor) ingest(ctx context.Context, feed []bank.FeedTransaction) (IngestResult, error) {
	var result IngestResult
	q := s.repo.Queries()

	for _, ft := range feed {
		tx, err := normalizeFeedTransaction(ft)
		if err != nil {
			// A malformed feed item never blocks the rest of the batch.
			slog.WarnContext(ctx, "Skipping malformed feed transaction",
				"transaction_id", ft.ExternalID, "error", err)
			continue
		}

		added, err := q.CreateTransactionIfNew(ctx, tx)
		if err != nil {
			return result, fmt.Errorf("store transaction %s: %w", tx.ID, err)
		}
		if !added {
			result.Skipped++
			continue
		}
		result.Added++

		s.announce(ctx, tx)
	}

	return result, nil
}

// announce fires the side effects for a newly stored transaction. Both are
// best-effort: the transaction is already durable and a lost notification
// must never look like a failed ingestion.
func (s *TransactionIngestor) announce(ctx context.Context, tx core.Transaction) {
	if s.publisher != nil {
		msg := amqp.NewTransactionAddedMessage(tx.ID, tx.MerchantName, tx.Amount.Cents)
		if err := s.publisher.PublishTransactionAdded(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish transaction event",
				"transaction_id", tx.ID, "error", err)
		}
	}

	if s.notifier != nil {
		title := "New transaction"
		body := fmt.Sprintf("%s: £%.2f", tx.MerchantName, tx.Amount.Pounds())
		if err := s.notifier.SendPushNotification(ctx, title, body); err != nil {
			slog.WarnContext(ctx, "Failed to send push notification",
				"transaction_id", tx.ID, "error", err)
		}
	}
}

// normalizeFeedTransaction turns a provider item into a ledger transaction:
// the signed provider amount at provider scale becomes an unsigned Money in
// cents. Direction is not stored; spending and refunds alike are magnitudes.
func normalizeFeedTransaction(ft bank.FeedTransaction) (core.Transaction, error) {
	amount, err := core.NormalizeMinorUnits(ft.AmountMinor, ft.Scale)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{
		ID:           ft.ExternalID,
		MerchantName: ft.MerchantName,
		IconURL:      ft.IconURL,
		Amount:       amount,
		Date:         ft.Timestamp.UTC(),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}
