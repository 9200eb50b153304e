package services

import (
	"context"
	"fmt"
	"log/slog"

	"potledger/internal/core"
	"potledger/internal/storage"
)

// TransactionService handles the manual review surface: unprocessed
// transactions, reassignment and subscription marking.
type TransactionService struct {
	repo   *storage.Repository
	ledger *PotLedger
}

func NewTransactionService(repo *storage.Repository, ledger *PotLedger) *TransactionService {
	return &TransactionService{repo: repo, ledger: ledger}
}

// GetUnprocessedTransactions lists transactions no rule matched, oldest
// first.
func (s *TransactionService) GetUnprocessedTransactions(ctx context.Context) ([]core.Transaction, error) {
	return s.repo.Queries().ListUnprocessedTransactions(ctx)
}

// GetCurrentPeriodTransactions lists the open period's transactions, newest
// first. Before the first rollover every transaction qualifies.
func (s *TransactionService) GetCurrentPeriodTransactions(ctx context.Context) ([]core.Transaction, error) {
	q := s.repo.Queries()
	period, err := q.GetOpenPeriod(ctx)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return q.ListTransactionsSince(ctx, zeroTime())
	}
	return q.ListTransactionsSince(ctx, period.StartDate)
}

// UpdateTransaction assigns a transaction to a pot (or clears the
// assignment), rebalancing both pots atomically.
func (s *TransactionService) UpdateTransaction(ctx context.Context, transactionID string, potID *string) error {
	return s.ledger.Reassign(ctx, transactionID, potID)
}

// MarkAsSubscription flags the transaction as a recurring payment and adds
// its monthly cost to the open period's subscription total. Yearly
// subscriptions contribute a twelfth of the payment.
func (s *TransactionService) MarkAsSubscription(ctx context.Context, transactionID string, frequency core.BillingFrequency) error {
	return s.repo.WithTx(ctx, func(q *storage.Queries) error {
		tx, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if tx.IsSubscription {
			// Marking twice must not double-count the cost.
			return nil
		}
		if err := q.MarkTransactionSubscription(ctx, transactionID); err != nil {
			return err
		}

		period, err := q.GetOpenPeriod(ctx)
		if err != nil {
			return err
		}
		if period == nil {
			slog.WarnContext(ctx, "No open period, subscription cost not tracked",
				"transaction_id", transactionID)
			return nil
		}

		monthly := frequency.MonthlyCost(tx.Amount)
		if err := q.AddPeriodSubscriptionCost(ctx, period.ID, monthly.Cents); err != nil {
			return fmt.Errorf("track subscription cost: %w", err)
		}
		return nil
	})
}

// AddRule appends a categorization rule. New rules only affect transactions
// ingested (or reviewed) after the rule exists; nothing is reprocessed.
func (s *TransactionService) AddRule(ctx context.Context, merchantPattern string, targetPotID *string, isSubscription bool) (int64, error) {
	rule := core.Rule{MerchantPattern: merchantPattern, TargetPotID: targetPotID}
	if err := rule.Validate(); err != nil {
		return 0, err
	}
	if targetPotID != nil {
		if _, err := s.repo.Queries().GetSpendingPot(ctx, *targetPotID); err != nil {
			return 0, err
		}
	}
	return s.repo.Queries().CreateRule(ctx, merchantPattern, targetPotID, isSubscription)
}

// GetRules lists every rule in evaluation order.
func (s *TransactionService) GetRules(ctx context.Context) ([]core.Rule, error) {
	return s.repo.Queries().ListRules(ctx)
}
