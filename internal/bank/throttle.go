package bank

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled wraps a FeedAdapter with a client-side rate limit so the poller
// cannot trip the provider's request quota when many accounts are linked.
type Throttled struct {
	inner   FeedAdapter
	limiter *rate.Limiter
}

func NewThrottled(inner FeedAdapter, perSecond float64, burst int) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *Throttled) FetchPushedTransactions(ctx context.Context) ([]FeedTransaction, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.FetchPushedTransactions(ctx)
}

func (t *Throttled) FetchPulledTransactions(ctx context.Context, accountID string) ([]FeedTransaction, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.FetchPulledTransactions(ctx, accountID)
}
