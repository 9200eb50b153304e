// Package bank defines the upstream feed contract and adapters over it.
package bank

import (
	"context"
	"time"
)

// FeedTransaction is a transaction as the provider reports it: a signed
// amount in the provider's own minor-unit scale, before normalization.
type FeedTransaction struct {
	ExternalID   string
	MerchantName string
	IconURL      string
	AmountMinor  int64
	Scale        int
	Timestamp    time.Time
}

// FeedAdapter is the upstream bank feed. Pushed transactions arrive from the
// provider's webhook buffer; pulled transactions are fetched per linked
// account. Adapter failures are upstream errors and never touch the ledger.
type FeedAdapter interface {
	FetchPushedTransactions(ctx context.Context) ([]FeedTransaction, error)
	FetchPulledTransactions(ctx context.Context, accountID string) ([]FeedTransaction, error)
}
