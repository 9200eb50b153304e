package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"potledger/internal/amqp"
	"potledger/internal/clock"
	"potledger/internal/core"
	"potledger/internal/storage"
)

// RolloverRequest carries everything a new period needs. Allocations must
// cover every existing spending pot; optional per-pot overrides take
// precedence over the pot's stored defaults.
type RolloverRequest struct {
	Income core.Money

	// Allocations maps spending pot id to its budget for the new period.
	Allocations map[string]core.Money

	// Rollover overrides the pot's rollover-by-default flag for this
	// rollover only.
	Rollover map[string]bool

	// SavingsAdditions overrides a savings pot's planned monthly addition.
	SavingsAdditions map[string]core.Money
}

// PeriodRolloverCoordinator closes the open period and opens the next one as
// a single atomic sequence: close, snapshot, reset spending pots, credit
// savings pots, open. Nothing else may move money while it runs.
type PeriodRolloverCoordinator struct {
	repo      *storage.Repository
	gate      *RolloverGate
	clock     clock.Clock
	publisher EventPublisher
}

func NewPeriodRolloverCoordinator(
	repo *storage.Repository,
	gate *RolloverGate,
	clk clock.Clock,
	publisher EventPublisher,
) *PeriodRolloverCoordinator {
	return &PeriodRolloverCoordinator{
		repo:      repo,
		gate:      gate,
		clock:     clk,
		publisher: publisher,
	}
}

// AddNewMonth performs the rollover and returns the new period's id. On the
// very first call there is no period to close, so it validates, seeds the
// pots and opens the opening period.
func (c *PeriodRolloverCoordinator) AddNewMonth(ctx context.Context, req RolloverRequest) (string, error) {
	c.gate.Exclusive()
	defer c.gate.ExclusiveEnd()

	var closedPeriodID string
	newPeriodID := uuid.NewString()
	now := c.clock.Now()

	err := c.repo.WithTx(ctx, func(q *storage.Queries) error {
		spending, err := q.ListSpendingPots(ctx)
		if err != nil {
			return fmt.Errorf("load spending pots: %w", err)
		}
		savings, err := q.ListSavingsPots(ctx)
		if err != nil {
			return fmt.Errorf("load savings pots: %w", err)
		}

		if err := validateRollover(req, spending); err != nil {
			return err
		}

		open, err := q.GetOpenPeriod(ctx)
		if err != nil {
			return err
		}

		if open != nil {
			if err := c.closePeriod(ctx, q, open, spending, savings, now); err != nil {
				return err
			}
			closedPeriodID = open.ID
		}

		for _, pot := range spending {
			if err := resetSpendingPot(ctx, q, pot, req); err != nil {
				return err
			}
		}
		var saved core.Money
		for _, pot := range savings {
			added, err := creditSavingsPot(ctx, q, pot, req)
			if err != nil {
				return err
			}
			saved = saved.Add(added)
		}

		// The savings additions are credited up front, so the new period
		// already counts them as saved.
		return q.CreatePeriod(ctx, core.Period{
			ID:        newPeriodID,
			StartDate: now,
			Income:    req.Income,
			Saved:     saved,
		})
	})
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "Rolled over to new period",
		"period_id", newPeriodID,
		"closed_period_id", closedPeriodID)

	// The rollover is committed; a lost event only delays the archive.
	if closedPeriodID != "" && c.publisher != nil {
		msg := amqp.NewPeriodClosedMessage(closedPeriodID)
		if err := c.publisher.PublishPeriodClosed(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish period closed event",
				"period_id", closedPeriodID, "error", err)
		}
	}

	return newPeriodID, nil
}

// closePeriod stamps the closing totals and snapshots every pot into the
// period's history.
func (c *PeriodRolloverCoordinator) closePeriod(
	ctx context.Context,
	q *storage.Queries,
	open *core.Period,
	spending []core.SpendingPot,
	savings []core.SavingsPot,
	now time.Time,
) error {
	var spent, leftOver, saved core.Money
	for _, pot := range spending {
		if err := pot.CheckInvariant(); err != nil {
			return err
		}
		spent = spent.Add(pot.Spent)
		leftOver = leftOver.Add(pot.Left)
	}
	for _, pot := range savings {
		saved = saved.Add(pot.AmountToAdd)
	}

	if err := q.ClosePeriod(ctx, open.ID, now, spent.Cents, saved.Cents, leftOver.Cents); err != nil {
		return err
	}

	for _, pot := range spending {
		snap := core.SpendingSnapshot{
			PotID:     pot.ID,
			PeriodID:  open.ID,
			Allocated: pot.Allocated,
			Spent:     pot.Spent,
			Left:      pot.Left,
		}
		if err := q.CreateSpendingSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	for _, pot := range savings {
		snap := core.SavingsSnapshot{
			PotID:    pot.ID,
			PeriodID: open.ID,
			Balance:  pot.Balance,
			Added:    pot.AmountToAdd,
		}
		if err := q.CreateSavingsSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// resetSpendingPot rebuilds a pot for the new period. A rolled-over pot
// keeps its unspent remainder on top of the fresh allocation; either way the
// pot starts the period with spent zero and left equal to allocated.
func resetSpendingPot(ctx context.Context, q *storage.Queries, pot core.SpendingPot, req RolloverRequest) error {
	allocated := req.Allocations[pot.ID]

	rollover := pot.RolloverByDefault
	if v, ok := req.Rollover[pot.ID]; ok {
		rollover = v
	}
	if rollover {
		allocated = allocated.Add(pot.Left)
	}

	return q.ResetSpendingPot(ctx, pot.ID, allocated.Cents, 0, allocated.Cents)
}

// creditSavingsPot executes the pot's planned addition and returns the
// amount credited; the new period opens with these sums already saved.
func creditSavingsPot(ctx context.Context, q *storage.Queries, pot core.SavingsPot, req RolloverRequest) (core.Money, error) {
	addition := pot.AmountToAdd
	if v, ok := req.SavingsAdditions[pot.ID]; ok {
		addition = v
	}
	balance := pot.Balance.Add(addition)
	if err := q.ResetSavingsPot(ctx, pot.ID, balance.Cents, addition.Cents); err != nil {
		return core.Money{}, err
	}
	return addition, nil
}

func validateRollover(req RolloverRequest, spending []core.SpendingPot) error {
	if req.Income.Cents < 0 {
		return core.ErrInvalidAmount
	}
	known := make(map[string]bool, len(spending))
	for _, pot := range spending {
		known[pot.ID] = true
		alloc, ok := req.Allocations[pot.ID]
		if !ok {
			return fmt.Errorf("pot %s (%s): %w", pot.ID, pot.Name, core.ErrMissingAllocation)
		}
		if alloc.Cents < 0 {
			return fmt.Errorf("pot %s: negative allocation: %w", pot.ID, core.ErrInvalidAmount)
		}
	}
	for id := range req.Allocations {
		if !known[id] {
			return fmt.Errorf("allocation for unknown pot %s: %w", id, core.ErrPotNotFound)
		}
	}
	for id, v := range req.SavingsAdditions {
		if v.Cents < 0 {
			return fmt.Errorf("savings pot %s: negative addition: %w", id, core.ErrInvalidAmount)
		}
	}
	return nil
}
