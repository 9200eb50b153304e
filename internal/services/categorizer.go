package services

import (
	"context"
	"fmt"
	"log/slog"

	"potledger/internal/core"
	"potledger/internal/storage"
)

// CategorizeResult reports one categorization pass.
type CategorizeResult struct {
	Applied   int // matched a rule and were booked against a pot (or marked only)
	Unmatched int // no rule matched, left for manual review
	Failed    int // errored individually and will be retried next pass
}

// CategorizationEngine assigns unprocessed transactions to pots using the
// ordered rule list. Each transaction is booked in its own database
// transaction, so one failure never poisons the batch.
type CategorizationEngine struct {
	repo   *storage.Repository
	ledger *PotLedger
	gate   *RolloverGate
}

func NewCategorizationEngine(repo *storage.Repository, ledger *PotLedger, gate *RolloverGate) *CategorizationEngine {
	return &CategorizationEngine{
		repo:   repo,
		ledger: ledger,
		gate:   gate,
	}
}

// CategorizeUnprocessed runs one pass over every unprocessed transaction.
func (e *CategorizationEngine) CategorizeUnprocessed(ctx context.Context) (CategorizeResult, error) {
	var result CategorizeResult

	rules, err := e.repo.Queries().ListRules(ctx)
	if err != nil {
		return result, fmt.Errorf("load rules: %w", err)
	}

	pending, err := e.repo.Queries().ListUnprocessedTransactions(ctx)
	if err != nil {
		return result, fmt.Errorf("load unprocessed transactions: %w", err)
	}

	for _, tx := range pending {
		rule, ok := firstMatch(rules, tx.MerchantName)
		if !ok {
			result.Unmatched++
			continue
		}

		if err := e.categorizeOne(ctx, tx, rule); err != nil {
			result.Failed++
			slog.ErrorContext(ctx, "Failed to categorize transaction",
				"transaction_id", tx.ID,
				"merchant", tx.MerchantName,
				"rule_id", rule.ID,
				"error", err)
			continue
		}
		result.Applied++
	}

	if result.Applied > 0 || result.Failed > 0 {
		slog.InfoContext(ctx, "Categorization pass complete",
			"applied", result.Applied,
			"unmatched", result.Unmatched,
			"failed", result.Failed)
	}

	return result, nil
}

func (e *CategorizationEngine) categorizeOne(ctx context.Context, tx core.Transaction, rule core.Rule) error {
	e.gate.Enter()
	defer e.gate.Leave()

	return e.repo.WithTx(ctx, func(q *storage.Queries) error {
		if err := q.MarkTransactionProcessed(ctx, tx.ID, rule.TargetPotID, rule.IsSubscription); err != nil {
			return err
		}
		if rule.TargetPotID == nil {
			// Marker-only rule: the transaction is processed but never
			// touches a pot.
			return nil
		}
		return e.ledger.Apply(ctx, q, *rule.TargetPotID, tx.Amount)
	})
}

// firstMatch returns the earliest rule matching the merchant name. Rule order
// is the tiebreaker when patterns overlap.
func firstMatch(rules []core.Rule, merchantName string) (core.Rule, bool) {
	for _, r := range rules {
		if r.Matches(merchantName) {
			return r, true
		}
	}
	return core.Rule{}, false
}
