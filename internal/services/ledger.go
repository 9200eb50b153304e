package services

import (
	"context"
	"fmt"

	"potledger/internal/core"
	"potledger/internal/storage"
)

// PotLedger owns the pot balance arithmetic. Every mutation funnels through
// Apply or Reverse so left == allocated - spent holds after each commit.
type PotLedger struct {
	repo *storage.Repository
	gate *RolloverGate
}

func NewPotLedger(repo *storage.Repository, gate *RolloverGate) *PotLedger {
	return &PotLedger{repo: repo, gate: gate}
}

// Apply books an amount against a pot inside the caller's transaction:
// spent grows, left shrinks. Overspending is allowed; left simply goes
// negative.
func (l *PotLedger) Apply(ctx context.Context, q *storage.Queries, potID string, amount core.Money) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	if err := q.AddToPotSpent(ctx, potID, amount.Cents); err != nil {
		return err
	}
	return l.checkPot(ctx, q, potID)
}

// Reverse undoes a previous Apply inside the caller's transaction.
func (l *PotLedger) Reverse(ctx context.Context, q *storage.Queries, potID string, amount core.Money) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	if err := q.AddToPotSpent(ctx, potID, -amount.Cents); err != nil {
		return err
	}
	return l.checkPot(ctx, q, potID)
}

// Reassign moves a transaction to a different pot (or to none). The reversal
// on the old pot and the application on the new pot commit together or not
// at all.
func (l *PotLedger) Reassign(ctx context.Context, transactionID string, newPotID *string) error {
	l.gate.Enter()
	defer l.gate.Leave()

	return l.repo.WithTx(ctx, func(q *storage.Queries) error {
		tx, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}

		if samePot(tx.PotID, newPotID) {
			// Same target: still marks the transaction processed, which is
			// how a manual review confirms an uncategorized transaction.
			return q.SetTransactionPot(ctx, transactionID, newPotID)
		}

		if tx.PotID != nil {
			if err := l.Reverse(ctx, q, *tx.PotID, tx.Amount); err != nil {
				return fmt.Errorf("reverse from pot %s: %w", *tx.PotID, err)
			}
		}
		if newPotID != nil {
			if _, err := q.GetSpendingPot(ctx, *newPotID); err != nil {
				return err
			}
			if err := l.Apply(ctx, q, *newPotID, tx.Amount); err != nil {
				return fmt.Errorf("apply to pot %s: %w", *newPotID, err)
			}
		}

		return q.SetTransactionPot(ctx, transactionID, newPotID)
	})
}

func (l *PotLedger) checkPot(ctx context.Context, q *storage.Queries, potID string) error {
	pot, err := q.GetSpendingPot(ctx, potID)
	if err != nil {
		return err
	}
	return pot.CheckInvariant()
}

func samePot(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
