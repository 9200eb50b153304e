package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"potledger/internal/core"
)

// CreateSpendingPot inserts a new spending pot. A duplicate name surfaces as
// a validation error, not a raw constraint failure.
func (q *Queries) CreateSpendingPot(ctx context.Context, p core.SpendingPot) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO spending_pots (id, name, allocated_cents, spent_cents, left_cents, rollover_by_default)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Allocated.Cents, p.Spent.Cents, p.Left.Cents, boolToInt(p.RolloverByDefault))
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateName
		}
		return fmt.Errorf("create spending pot %s: %w", p.Name, err)
	}
	return nil
}

// CreateSavingsPot inserts a new savings pot.
func (q *Queries) CreateSavingsPot(ctx context.Context, p core.SavingsPot) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO savings_pots (id, name, balance_cents, amount_to_add_cents)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Balance.Cents, p.AmountToAdd.Cents)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateName
		}
		return fmt.Errorf("create savings pot %s: %w", p.Name, err)
	}
	return nil
}

// GetSpendingPot returns one spending pot by id.
func (q *Queries) GetSpendingPot(ctx context.Context, id string) (*core.SpendingPot, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, name, allocated_cents, spent_cents, left_cents, rollover_by_default
		FROM spending_pots WHERE id = ?`, id)

	var (
		p        core.SpendingPot
		rollover int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Allocated.Cents, &p.Spent.Cents, &p.Left.Cents, &rollover); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrPotNotFound
		}
		return nil, fmt.Errorf("get spending pot %s: %w", id, err)
	}
	p.RolloverByDefault = rollover != 0
	return &p, nil
}

// ListSpendingPots returns all spending pots ordered by name.
func (q *Queries) ListSpendingPots(ctx context.Context) ([]core.SpendingPot, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, name, allocated_cents, spent_cents, left_cents, rollover_by_default
		FROM spending_pots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list spending pots: %w", err)
	}
	defer rows.Close()

	var out []core.SpendingPot
	for rows.Next() {
		var (
			p        core.SpendingPot
			rollover int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Allocated.Cents, &p.Spent.Cents, &p.Left.Cents, &rollover); err != nil {
			return nil, fmt.Errorf("scan spending pot: %w", err)
		}
		p.RolloverByDefault = rollover != 0
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spending pots: %w", err)
	}
	return out, nil
}

// GetSavingsPot returns one savings pot by id.
func (q *Queries) GetSavingsPot(ctx context.Context, id string) (*core.SavingsPot, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, name, balance_cents, amount_to_add_cents
		FROM savings_pots WHERE id = ?`, id)

	var p core.SavingsPot
	if err := row.Scan(&p.ID, &p.Name, &p.Balance.Cents, &p.AmountToAdd.Cents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrPotNotFound
		}
		return nil, fmt.Errorf("get savings pot %s: %w", id, err)
	}
	return &p, nil
}

// ListSavingsPots returns all savings pots ordered by name.
func (q *Queries) ListSavingsPots(ctx context.Context) ([]core.SavingsPot, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, name, balance_cents, amount_to_add_cents
		FROM savings_pots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list savings pots: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsPot
	for rows.Next() {
		var p core.SavingsPot
		if err := rows.Scan(&p.ID, &p.Name, &p.Balance.Cents, &p.AmountToAdd.Cents); err != nil {
			return nil, fmt.Errorf("scan savings pot: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate savings pots: %w", err)
	}
	return out, nil
}

// AddToPotSpent applies a spend delta to a pot as one atomic read-modify-write:
// spent moves by delta and left moves by -delta, so left == allocated - spent
// is preserved without a read in between. Negative deltas reverse a spend.
func (q *Queries) AddToPotSpent(ctx context.Context, potID string, deltaCents int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE spending_pots
		SET spent_cents = spent_cents + ?, left_cents = left_cents - ?
		WHERE id = ?`, deltaCents, deltaCents, potID)
	if err != nil {
		return fmt.Errorf("apply %d to pot %s: %w", deltaCents, potID, err)
	}
	return requireRow(res, core.ErrPotNotFound)
}

// ResetSpendingPot writes a pot's new-period balances. Only rollover uses
// this; it is the one place allocated changes.
func (q *Queries) ResetSpendingPot(ctx context.Context, potID string, allocated, spent, left int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE spending_pots
		SET allocated_cents = ?, spent_cents = ?, left_cents = ?
		WHERE id = ?`, allocated, spent, left, potID)
	if err != nil {
		return fmt.Errorf("reset spending pot %s: %w", potID, err)
	}
	return requireRow(res, core.ErrPotNotFound)
}

// ResetSavingsPot writes a savings pot's new-period balance and marker.
func (q *Queries) ResetSavingsPot(ctx context.Context, potID string, balance, amountToAdd int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE savings_pots
		SET balance_cents = ?, amount_to_add_cents = ?
		WHERE id = ?`, balance, amountToAdd, potID)
	if err != nil {
		return fmt.Errorf("reset savings pot %s: %w", potID, err)
	}
	return requireRow(res, core.ErrPotNotFound)
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text;
	// there is no exported error code type to compare against.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
