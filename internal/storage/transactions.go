package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"potledger/internal/core"
)

// CreateTransactionIfNew inserts a transaction unless its external id already
// exists. Returns true when a row was added. This is the ingestion
// idempotency mechanism: the INSERT and the duplicate check are one atomic
// statement against the primary key.
func (q *Queries) CreateTransactionIfNew(ctx context.Context, t core.Transaction) (bool, error) {
	var iconURL sql.NullString
	if t.IconURL != "" {
		iconURL = sql.NullString{String: t.IconURL, Valid: true}
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(id, merchant_name, icon_url, amount_cents, date, processed, pot_id, is_subscription)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.MerchantName, iconURL, t.Amount.Cents, t.Date.Unix(),
		boolToInt(t.Processed), nullString(t.PotID), boolToInt(t.IsSubscription),
	)
	if err != nil {
		return false, fmt.Errorf("insert transaction %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected for transaction %s: %w", t.ID, err)
	}
	return n > 0, nil
}

// GetTransaction returns a transaction by its external id.
func (q *Queries) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, merchant_name, icon_url, amount_cents, date, processed, pot_id, is_subscription
		FROM transactions WHERE id = ?`, id)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

// ListUnprocessedTransactions returns transactions awaiting categorization,
// oldest first.
func (q *Queries) ListUnprocessedTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, merchant_name, icon_url, amount_cents, date, processed, pot_id, is_subscription
		FROM transactions WHERE processed = 0 ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListTransactionsSince returns transactions dated at or after the given
// instant, newest first. Used for the current-period view.
func (q *Queries) ListTransactionsSince(ctx context.Context, since time.Time) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, merchant_name, icon_url, amount_cents, date, processed, pot_id, is_subscription
		FROM transactions WHERE date >= ? ORDER BY date DESC, id`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("list transactions since %v: %w", since, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// MarkTransactionProcessed records the categorization outcome on the
// transaction row.
func (q *Queries) MarkTransactionProcessed(ctx context.Context, id string, potID *string, isSubscription bool) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions SET processed = 1, pot_id = ?, is_subscription = ? WHERE id = ?`,
		nullString(potID), boolToInt(isSubscription), id)
	if err != nil {
		return fmt.Errorf("mark transaction %s processed: %w", id, err)
	}
	return requireRow(res, core.ErrTransactionNotFound)
}

// SetTransactionPot updates only the pot assignment. Used by reassignment
// inside the ledger transaction.
func (q *Queries) SetTransactionPot(ctx context.Context, id string, potID *string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions SET processed = 1, pot_id = ? WHERE id = ?`,
		nullString(potID), id)
	if err != nil {
		return fmt.Errorf("set pot for transaction %s: %w", id, err)
	}
	return requireRow(res, core.ErrTransactionNotFound)
}

// MarkTransactionSubscription flags a transaction as a subscription payment.
func (q *Queries) MarkTransactionSubscription(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions SET is_subscription = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark transaction %s as subscription: %w", id, err)
	}
	return requireRow(res, core.ErrTransactionNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var (
		t       core.Transaction
		iconURL sql.NullString
		potID   sql.NullString
		date    int64
		proc    int64
		sub     int64
	)
	if err := row.Scan(&t.ID, &t.MerchantName, &iconURL, &t.Amount.Cents, &date, &proc, &potID, &sub); err != nil {
		return nil, err
	}
	t.IconURL = iconURL.String
	t.PotID = stringPtr(potID)
	t.Date = time.Unix(date, 0).UTC()
	t.Processed = proc != 0
	t.IsSubscription = sub != 0
	return &t, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
