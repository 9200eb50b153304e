package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"potledger/internal/core"
)

const periodColumns = `id, start_date, end_date, income_cents, spent_cents, saved_cents, left_over_cents, subscription_cost_cents`

// CreatePeriod opens a new budgeting period. The partial unique index on
// open periods makes a second open period a constraint failure.
func (q *Queries) CreatePeriod(ctx context.Context, p core.Period) error {
	var endDate sql.NullInt64
	if p.EndDate != nil {
		endDate = sql.NullInt64{Int64: p.EndDate.Unix(), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO periods (id, start_date, end_date, income_cents, spent_cents, saved_cents, left_over_cents, subscription_cost_cents)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.StartDate.Unix(), endDate,
		p.Income.Cents, p.Spent.Cents, p.Saved.Cents, p.LeftOver.Cents, p.SubscriptionCost.Cents)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Invariantf("period %s: another period is already open", p.ID)
		}
		return fmt.Errorf("create period %s: %w", p.ID, err)
	}
	return nil
}

// GetOpenPeriod returns the single open period, or (nil, nil) when none
// exists yet.
func (q *Queries) GetOpenPeriod(ctx context.Context) (*core.Period, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+periodColumns+` FROM periods WHERE end_date IS NULL`)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get open period: %w", err)
	}
	return p, nil
}

// GetPeriod returns a period by id.
func (q *Queries) GetPeriod(ctx context.Context, id string) (*core.Period, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+periodColumns+` FROM periods WHERE id = ?`, id)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrPeriodNotFound
		}
		return nil, fmt.Errorf("get period %s: %w", id, err)
	}
	return p, nil
}

// ListClosedPeriods returns closed periods, most recently started first.
func (q *Queries) ListClosedPeriods(ctx context.Context) ([]core.Period, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+periodColumns+` FROM periods WHERE end_date IS NOT NULL
		ORDER BY start_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list closed periods: %w", err)
	}
	defer rows.Close()
	return collectPeriods(rows)
}

// ListClosedPeriodsByYear returns closed periods whose start falls in the
// given calendar year, oldest first.
func (q *Queries) ListClosedPeriodsByYear(ctx context.Context, year int) ([]core.Period, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+periodColumns+` FROM periods
		WHERE end_date IS NOT NULL AND start_date >= ? AND start_date < ?
		ORDER BY start_date`, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("list periods for %d: %w", year, err)
	}
	defer rows.Close()
	return collectPeriods(rows)
}

// ClosePeriod stamps the end date and the closing totals on an open period.
func (q *Queries) ClosePeriod(ctx context.Context, id string, endDate time.Time, spent, saved, leftOver int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE periods
		SET end_date = ?, spent_cents = ?, saved_cents = ?, left_over_cents = ?
		WHERE id = ? AND end_date IS NULL`,
		endDate.Unix(), spent, saved, leftOver, id)
	if err != nil {
		return fmt.Errorf("close period %s: %w", id, err)
	}
	return requireRow(res, core.ErrPeriodNotFound)
}

// AddPeriodSubscriptionCost bumps the open period's running subscription
// total by the given amount.
func (q *Queries) AddPeriodSubscriptionCost(ctx context.Context, id string, deltaCents int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE periods SET subscription_cost_cents = subscription_cost_cents + ? WHERE id = ?`,
		deltaCents, id)
	if err != nil {
		return fmt.Errorf("add subscription cost to period %s: %w", id, err)
	}
	return requireRow(res, core.ErrPeriodNotFound)
}

// CreateSpendingSnapshot freezes a spending pot's balances into a closed
// period's history.
func (q *Queries) CreateSpendingSnapshot(ctx context.Context, s core.SpendingSnapshot) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO historic_spending_pots (pot_id, period_id, allocated_cents, spent_cents, left_cents)
		VALUES (?, ?, ?, ?, ?)`,
		s.PotID, s.PeriodID, s.Allocated.Cents, s.Spent.Cents, s.Left.Cents)
	if err != nil {
		return fmt.Errorf("snapshot spending pot %s for period %s: %w", s.PotID, s.PeriodID, err)
	}
	return nil
}

// CreateSavingsSnapshot freezes a savings pot's balances into a closed
// period's history.
func (q *Queries) CreateSavingsSnapshot(ctx context.Context, s core.SavingsSnapshot) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO historic_savings_pots (pot_id, period_id, balance_cents, added_cents)
		VALUES (?, ?, ?, ?)`,
		s.PotID, s.PeriodID, s.Balance.Cents, s.Added.Cents)
	if err != nil {
		return fmt.Errorf("snapshot savings pot %s for period %s: %w", s.PotID, s.PeriodID, err)
	}
	return nil
}

// ListSpendingSnapshots returns the spending history for one period, with
// the pot name resolved from the live pot row.
func (q *Queries) ListSpendingSnapshots(ctx context.Context, periodID string) ([]core.SpendingSnapshot, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT h.pot_id, h.period_id, p.name, h.allocated_cents, h.spent_cents, h.left_cents
		FROM historic_spending_pots h
		JOIN spending_pots p ON p.id = h.pot_id
		WHERE h.period_id = ? ORDER BY p.name`, periodID)
	if err != nil {
		return nil, fmt.Errorf("list spending snapshots for %s: %w", periodID, err)
	}
	defer rows.Close()

	var out []core.SpendingSnapshot
	for rows.Next() {
		var s core.SpendingSnapshot
		if err := rows.Scan(&s.PotID, &s.PeriodID, &s.Name, &s.Allocated.Cents,
			&s.Spent.Cents, &s.Left.Cents); err != nil {
			return nil, fmt.Errorf("scan spending snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spending snapshots: %w", err)
	}
	return out, nil
}

// ListSavingsSnapshots returns the savings history for one period.
func (q *Queries) ListSavingsSnapshots(ctx context.Context, periodID string) ([]core.SavingsSnapshot, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT h.pot_id, h.period_id, p.name, h.balance_cents, h.added_cents
		FROM historic_savings_pots h
		JOIN savings_pots p ON p.id = h.pot_id
		WHERE h.period_id = ? ORDER BY p.name`, periodID)
	if err != nil {
		return nil, fmt.Errorf("list savings snapshots for %s: %w", periodID, err)
	}
	defer rows.Close()

	var out []core.SavingsSnapshot
	for rows.Next() {
		var s core.SavingsSnapshot
		if err := rows.Scan(&s.PotID, &s.PeriodID, &s.Name, &s.Balance.Cents, &s.Added.Cents); err != nil {
			return nil, fmt.Errorf("scan savings snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate savings snapshots: %w", err)
	}
	return out, nil
}

func scanPeriod(row rowScanner) (*core.Period, error) {
	var (
		p       core.Period
		start   int64
		endDate sql.NullInt64
	)
	if err := row.Scan(&p.ID, &start, &endDate,
		&p.Income.Cents, &p.Spent.Cents, &p.Saved.Cents, &p.LeftOver.Cents, &p.SubscriptionCost.Cents); err != nil {
		return nil, err
	}
	p.StartDate = time.Unix(start, 0).UTC()
	if endDate.Valid {
		t := time.Unix(endDate.Int64, 0).UTC()
		p.EndDate = &t
	}
	return &p, nil
}

func collectPeriods(rows *sql.Rows) ([]core.Period, error) {
	var out []core.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate periods: %w", err)
	}
	return out, nil
}
