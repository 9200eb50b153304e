package storage

import (
	"context"
	"database/sql"
	"fmt"

	"potledger/internal/core"
)

// CreateRule appends a categorization rule. Rules are evaluated in insertion
// order, which the AUTOINCREMENT id preserves.
func (q *Queries) CreateRule(ctx context.Context, merchantPattern string, targetPotID *string, isSubscription bool) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO transaction_rules (merchant_pattern, target_pot_id, is_subscription)
		VALUES (?, ?, ?)`,
		merchantPattern, nullString(targetPotID), boolToInt(isSubscription))
	if err != nil {
		return 0, fmt.Errorf("create rule %q: %w", merchantPattern, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create rule %q: %w", merchantPattern, err)
	}
	return id, nil
}

// ListRules returns every rule in evaluation order.
func (q *Queries) ListRules(ctx context.Context) ([]core.Rule, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, merchant_pattern, target_pot_id, is_subscription
		FROM transaction_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []core.Rule
	for rows.Next() {
		var (
			r     core.Rule
			potID sql.NullString
			isSub int64
		)
		if err := rows.Scan(&r.ID, &r.MerchantPattern, &potID, &isSub); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.TargetPotID = stringPtr(potID)
		r.IsSubscription = isSub != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}
