// Package worker runs the background ingestion and categorization loop.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"potledger/internal/services"
)

// PollerConfig holds configuration for the bank feed poller.
type PollerConfig struct {
	// PollInterval is how often to poll the provider (default: 5m)
	PollInterval time.Duration

	// ProviderTimeout bounds one full poll cycle (default: 2m)
	ProviderTimeout time.Duration

	// PulledAccounts lists the linked account ids fetched by pull.
	PulledAccounts []string
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		PollInterval:    5 * time.Minute,
		ProviderTimeout: 2 * time.Minute,
	}
}

// Poller periodically ingests the bank feed and runs a categorization pass
// over whatever arrived.
type Poller struct {
	ingestor    *services.TransactionIngestor
	categorizer *services.CategorizationEngine
	config      PollerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewPoller(
	ingestor *services.TransactionIngestor,
	categorizer *services.CategorizationEngine,
	config PollerConfig,
) *Poller {
	return &Poller{
		ingestor:    ingestor,
		categorizer: categorizer,
		config:      config,
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Bank feed poller started",
		"poll_interval", p.config.PollInterval,
		"accounts", len(p.config.PulledAccounts))

	return nil
}

// Stop gracefully stops the poller and waits for the current cycle.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Bank feed poller stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Bank feed poller stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning reports whether the poller loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Poll immediately on startup.
	p.pollOnce(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce runs one ingestion cycle followed by a categorization pass. The
// pushed feed and every pulled account are fetched concurrently and fail
// independently: a broken provider is logged and left for the next tick
// (safe because ingestion is idempotent) while the others still land.
func (p *Poller) pollOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.config.ProviderTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		total  services.IngestResult
		failed int
	)

	var g errgroup.Group
	ingest := func(provider string, fetch func(context.Context) (services.IngestResult, error)) {
		g.Go(func() error {
			r, err := fetch(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "Provider ingestion failed",
					"provider", provider, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			total.Added += r.Added
			total.Skipped += r.Skipped
			mu.Unlock()
			return nil
		})
	}

	ingest("pushed", p.ingestor.IngestPushed)
	for _, account := range p.config.PulledAccounts {
		ingest("account "+account, func(ctx context.Context) (services.IngestResult, error) {
			return p.ingestor.IngestAccount(ctx, account)
		})
	}
	_ = g.Wait()

	if total.Added > 0 || failed > 0 {
		slog.InfoContext(ctx, "Ingestion cycle complete",
			"added", total.Added,
			"skipped", total.Skipped,
			"failed_providers", failed)
	}

	if _, err := p.categorizer.CategorizeUnprocessed(ctx); err != nil {
		slog.ErrorContext(ctx, "Categorization pass failed", "error", err)
	}
}
