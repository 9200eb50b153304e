package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"potledger/internal/amqp"
	"potledger/internal/bank"
	"potledger/internal/core"
	"potledger/internal/storage"
)

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

type fakeFeed struct {
	pushed []bank.FeedTransaction
	pulled map[string][]bank.FeedTransaction
	err    error
}

func (f *fakeFeed) FetchPushedTransactions(ctx context.Context) ([]bank.FeedTransaction, error) {
	return f.pushed, f.err
}

func (f *fakeFeed) FetchPulledTransactions(ctx context.Context, accountID string) ([]bank.FeedTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pulled[accountID], nil
}

type fakePublisher struct {
	added  []*amqp.TransactionAddedMessage
	closed []*amqp.PeriodClosedMessage
	err    error
}

func (f *fakePublisher) PublishTransactionAdded(ctx context.Context, msg *amqp.TransactionAddedMessage) error {
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, msg)
	return nil
}

func (f *fakePublisher) PublishPeriodClosed(ctx context.Context, msg *amqp.PeriodClosedMessage) error {
	if f.err != nil {
		return f.err
	}
	f.closed = append(f.closed, msg)
	return nil
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) SendPushNotification(ctx context.Context, title, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title+": "+body)
	return nil
}

func feedItem(id string, amountMinor int64, scale int) bank.FeedTransaction {
	return bank.FeedTransaction{
		ExternalID:   id,
		MerchantName: "Tesco Stores 2204",
		AmountMinor:  amountMinor,
		Scale:        scale,
		Timestamp:    time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC),
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	feed := &fakeFeed{pushed: []bank.FeedTransaction{
		feedItem("tx_1", -1250, 2), // outgoing payments arrive negative
		feedItem("tx_2", 4200, 2),
		feedItem("tx_3", -999, 2),
	}}
	publisher := &fakePublisher{}
	ingestor := NewTransactionIngestor(repo, feed, publisher, &fakeNotifier{})

	first, err := ingestor.IngestPushed(ctx)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.Added != 3 || first.Skipped != 0 {
		t.Errorf("first pass = %+v, want 3 added", first)
	}

	second, err := ingestor.IngestPushed(ctx)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.Added != 0 || second.Skipped != 3 {
		t.Errorf("second pass = %+v, want 3 skipped", second)
	}

	// Replays must not re-announce either.
	if len(publisher.added) != 3 {
		t.Errorf("published %d events, want 3", len(publisher.added))
	}

	tx, err := repo.Queries().GetTransaction(ctx, "tx_1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx.Amount.Cents != 1250 {
		t.Errorf("amount = %d, want sign-normalized 1250", tx.Amount.Cents)
	}
}

func TestIngestNormalizesProviderScale(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	feed := &fakeFeed{pushed: []bank.FeedTransaction{
		feedItem("tx_milli", -12500, 3), // 12.500 at scale 3 -> 1250 cents
	}}
	ingestor := NewTransactionIngestor(repo, feed, nil, nil)

	if _, err := ingestor.IngestPushed(ctx); err != nil {
		t.Fatalf("IngestPushed: %v", err)
	}

	tx, err := repo.Queries().GetTransaction(ctx, "tx_milli")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx.Amount.Cents != 1250 {
		t.Errorf("amount = %d, want 1250", tx.Amount.Cents)
	}
}

func TestIngestSideEffectFailuresDoNotFailIngestion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	feed := &fakeFeed{pushed: []bank.FeedTransaction{feedItem("tx_1", -1000, 2)}}
	ingestor := NewTransactionIngestor(repo,
		feed,
		&fakePublisher{err: errors.New("broker down")},
		&fakeNotifier{err: errors.New("push service down")})

	result, err := ingestor.IngestPushed(ctx)
	if err != nil {
		t.Fatalf("ingest should survive side effect failures: %v", err)
	}
	if result.Added != 1 {
		t.Errorf("added = %d, want 1", result.Added)
	}

	if _, err := repo.Queries().GetTransaction(ctx, "tx_1"); err != nil {
		t.Errorf("transaction should be stored despite failed notification: %v", err)
	}
}

func TestIngestSkipsMalformedItems(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	feed := &fakeFeed{pushed: []bank.FeedTransaction{
		feedItem("tx_zero", 0, 2), // zero amount is invalid
		{ExternalID: "tx_loss", MerchantName: "x", AmountMinor: -12345, Scale: 4,
			Timestamp: time.Now()}, // 1.2345 loses precision at cent scale
		feedItem("tx_good", -500, 2),
	}}
	ingestor := NewTransactionIngestor(repo, feed, nil, nil)

	result, err := ingestor.IngestPushed(ctx)
	if err != nil {
		t.Fatalf("IngestPushed: %v", err)
	}
	if result.Added != 1 {
		t.Errorf("added = %d, want only the well-formed item", result.Added)
	}
}

func TestIngestUpstreamFailure(t *testing.T) {
	repo := newTestRepo(t)

	ingestor := NewTransactionIngestor(repo,
		&fakeFeed{err: core.Upstreamf(errors.New("timeout"), "provider")},
		nil, nil)

	_, err := ingestor.IngestPushed(context.Background())
	if core.KindOf(err) != core.KindUpstream {
		t.Errorf("kind = %v, want KindUpstream", core.KindOf(err))
	}
}

func mustPot(t *testing.T, repo *storage.Repository, name string, allocatedCents int64, rollover bool) string {
	t.Helper()
	svc := NewPotService(repo)
	pot, err := svc.AddSpendingPot(context.Background(), name, core.Money{Cents: allocatedCents}, rollover)
	if err != nil {
		t.Fatalf("AddSpendingPot(%s): %v", name, err)
	}
	return pot.ID
}

func mustIngest(t *testing.T, repo *storage.Repository, items ...bank.FeedTransaction) {
	t.Helper()
	ingestor := NewTransactionIngestor(repo, &fakeFeed{pushed: items}, nil, nil)
	if _, err := ingestor.IngestPushed(context.Background()); err != nil {
		t.Fatalf("ingest fixture: %v", err)
	}
}

func TestCategorizeFirstMatchWins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	gate := NewRolloverGate()
	ledger := NewPotLedger(repo, gate)

	subsPot := mustPot(t, repo, "Subscriptions", 50000, false)
	shoppingPot := mustPot(t, repo, "Shopping", 100000, false)

	txSvc := NewTransactionService(repo, ledger)
	if _, err := txSvc.AddRule(ctx, "Amazon Prime", &subsPot, true); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if _, err := txSvc.AddRule(ctx, "Amazon", &shoppingPot, false); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	item := feedItem("tx_prime", -799, 2)
	item.MerchantName = "Amazon Prime Video"
	mustIngest(t, repo, item)

	engine := NewCategorizationEngine(repo, ledger, gate)
	result, err := engine.CategorizeUnprocessed(ctx)
	if err != nil {
		t.Fatalf("CategorizeUnprocessed: %v", err)
	}
	if result.Applied != 1 {
		t.Fatalf("applied = %d, want 1", result.Applied)
	}

	tx, _ := repo.Queries().GetTransaction(ctx, "tx_prime")
	if tx.PotID == nil || *tx.PotID != subsPot {
		t.Errorf("pot = %v, want earlier Amazon Prime rule to win", tx.PotID)
	}
	if !tx.IsSubscription {
		t.Error("rule should mark transaction as subscription")
	}

	pot, _ := repo.Queries().GetSpendingPot(ctx, subsPot)
	if pot.Spent.Cents != 799 || pot.Left.Cents != 50000-799 {
		t.Errorf("pot balances = %+v", pot)
	}
}

func TestCategorizeSubstringMatchesMerchantSuffix(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	gate := NewRolloverGate()
	ledger := NewPotLedger(repo, gate)

	groceries := mustPot(t, repo, "Groceries", 30000, false)
	txSvc := NewTransactionService(repo, ledger)
	if _, err := txSvc.AddRule(ctx, "tesco", &groceries, false); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	// Provider reports "Tesco Stores 2204"; the lowercase substring rule
	// must still catch it.
	mustIngest(t, repo, feedItem("tx_tesco", -2350, 2))

	engine := NewCategorizationEngine(repo, ledger, gate)
	if _, err := engine.CategorizeUnprocessed(ctx); err != nil {
		t.Fatalf("CategorizeUnprocessed: %v", err)
	}

	tx, _ := repo.Queries().GetTransaction(ctx, "tx_tesco")
	if tx.PotID == nil || *tx.PotID != groceries {
		t.Errorf("pot = %v, want groceries", tx.PotID)
	}
	if !tx.Processed {
		t.Error("transaction should be marked processed")
	}

	pot, _ := repo.Queries().GetSpendingPot(ctx, groceries)
	if pot.Spent.Cents != 2350 || pot.Left.Cents != 27650 {
		t.Errorf("pot = spent %d left %d, want spent 2350 left 27650", pot.Spent.Cents, pot.Left.Cents)
	}
}

func TestCategorizeLeavesUnmatchedUnprocessed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	gate := NewRolloverGate()
	ledger := NewPotLedger(repo, gate)

	item := feedItem("tx_unknown", -100, 2)
	item.MerchantName = "Mystery Shop"
	mustIngest(t, repo, item)

	engine := NewCategorizationEngine(repo, ledger, gate)
	result, err := engine.CategorizeUnprocessed(ctx)
	if err != nil {
		t.Fatalf("CategorizeUnprocessed: %v", err)
	}
	if result.Unmatched != 1 {
		t.Errorf("unmatched = %d, want 1", result.Unmatched)
	}

	pending, _ := repo.Queries().ListUnprocessedTransactions(ctx)
	if len(pending) != 1 {
		t.Errorf("pending = %d, want transaction left for manual review", len(pending))
	}
}

func TestCategorizeFailureIsolation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	gate := NewRolloverGate()
	ledger := NewPotLedger(repo, gate)

	broken := mustPot(t, repo, "Broken", 30000, false)
	healthy := mustPot(t, repo, "Groceries", 30000, false)
	txSvc := NewTransactionService(repo, ledger)
	if _, err := txSvc.AddRule(ctx, "Corrupt Shop", &broken, false); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if _, err := txSvc.AddRule(ctx, "tesco", &healthy, false); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	// Corrupt the first pot so its post-booking invariant check fails.
	if err := repo.Queries().ResetSpendingPot(ctx, broken, 30000, 0, 10000); err != nil {
		t.Fatalf("corrupt pot fixture: %v", err)
	}

	bad := feedItem("tx_bad", -500, 2)
	bad.MerchantName = "Corrupt Shop"
	bad.Timestamp = bad.Timestamp.Add(-time.Hour) // processed first
	good := feedItem("tx_good", -700, 2)
	mustIngest(t, repo, bad, good)

	engine := NewCategorizationEngine(repo, ledger, gate)
	result, err := engine.CategorizeUnprocessed(ctx)
	if err != nil {
		t.Fatalf("CategorizeUnprocessed: %v", err)
	}
	if result.Failed != 1 || result.Applied != 1 {
		t.Fatalf("result = %+v, want the healthy transaction booked despite the earlier failure", result)
	}

	// The failed booking rolled back: the transaction stays unprocessed and
	// the corrupt pot is untouched.
	pending, _ := repo.Queries().ListUnprocessedTransactions(ctx)
	if len(pending) != 1 || pending[0].ID != "tx_bad" {
		t.Errorf("pending = %+v, want tx_bad retried next pass", pending)
	}
	pot, _ := repo.Queries().GetSpendingPot(ctx, broken)
	if pot.Spent.Cents != 0 || pot.Left.Cents != 10000 {
		t.Errorf("broken pot mutated: %+v", pot)
	}

	tx, _ := repo.Queries().GetTransaction(ctx, "tx_good")
	if tx.PotID == nil || *tx.PotID != healthy {
		t.Errorf("healthy transaction pot = %v, want groceries", tx.PotID)
	}
}

func TestReassignMovesSpendBetweenPots(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	gate := NewRolloverGate()
	ledger := NewPotLedger(repo, gate)

	potA := mustPot(t, repo, "Pot A", 100000, false)
	potB := mustPot(t, repo, "Pot B", 50000, false)

	txSvc := NewTransactionService(repo, ledger)
	if _, err := txSvc.AddRule(ctx, "tesco", &potA, false); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	mustIngest(t, repo,
		feedItem("tx_other", -10000, 2),
		feedItem("tx_move", -20000, 2))

	engine := NewCategorizationEngine(repo, ledger, gate)
	if _, err := engine.CategorizeUnprocessed(ctx); err != nil {
		t.Fatalf("categorize fixture: %v", err)
	}
	// A: allocated 1000.00, spent 300.00, left 700.00; B untouched.

	if err := txSvc.UpdateTransaction(ctx, "tx_move", &potB); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	a, _ := repo.Queries().GetSpendingPot(ctx, potA)
	b, _ := repo.Queries().GetSpendingPot(ctx, potB)
	if a.Spent.Cents != 10000 || a.Left.Cents != 90000 {
		t.Errorf("pot A = spent %d left %d, want 10000/90000", a.Spent.Cents, a.Left.Cents)
	}
	if b.Spent.Cents != 20000 || b.Left.Cents != 30000 {
		t.Errorf("pot B = spent %d left %d, want 20000/30000", b.Spent.Cents, b.Left.Cents)
	}
	for _, pot := range []*core.SpendingPot{a, b} {
		if err := pot.CheckInvariant(); err != nil {
			t.Errorf("invariant: %v", err)
		}
	}

	tx, _ := repo.Queries().GetTransaction(ctx, "tx_move")
	if tx.PotID == nil || *tx.PotID != potB {
		t.Errorf("transaction pot = %v, want pot B", tx.PotID)
	}
}

func TestReassignToUnknownPotRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	gate := NewRolloverGate()
	ledger := NewPotLedger(repo, gate)

	potA := mustPot(t, repo, "Pot A", 100000, false)
	txSvc := NewTransactionService(repo, ledger)
	if _, err := txSvc.AddRule(ctx, "tesco", &potA, false); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	mustIngest(t, repo, feedItem("tx_1", -20000, 2))
	engine := NewCategorizationEngine(repo, ledger, gate)
	if _, err := engine.CategorizeUnprocessed(ctx); err != nil {
		t.Fatalf("categorize fixture: %v", err)
	}

	ghost := "pot_ghost"
	err := txSvc.UpdateTransaction(ctx, "tx_1", &ghost)
	if !errors.Is(err, core.ErrPotNotFound) {
		t.Fatalf("err = %v, want ErrPotNotFound", err)
	}

	// The reversal on pot A must have rolled back with the failed apply.
	a, _ := repo.Queries().GetSpendingPot(ctx, potA)
	if a.Spent.Cents != 20000 || a.Left.Cents != 80000 {
		t.Errorf("pot A = spent %d left %d, want untouched 20000/80000", a.Spent.Cents, a.Left.Cents)
	}
}

func TestMarkAsSubscription(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	gate := NewRolloverGate()
	ledger := NewPotLedger(repo, gate)
	txSvc := NewTransactionService(repo, ledger)

	mustIngest(t, repo, feedItem("tx_yearly", -12000, 2))

	coordinator := newTestCoordinator(repo, gate, nil, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if _, err := coordinator.AddNewMonth(ctx, RolloverRequest{
		Income:      core.Money{Cents: 250000},
		Allocations: map[string]core.Money{},
	}); err != nil {
		t.Fatalf("AddNewMonth: %v", err)
	}

	if err := txSvc.MarkAsSubscription(ctx, "tx_yearly", core.Yearly); err != nil {
		t.Fatalf("MarkAsSubscription: %v", err)
	}
	// Marking again must not double-count.
	if err := txSvc.MarkAsSubscription(ctx, "tx_yearly", core.Yearly); err != nil {
		t.Fatalf("second MarkAsSubscription: %v", err)
	}

	period, err := repo.Queries().GetOpenPeriod(ctx)
	if err != nil || period == nil {
		t.Fatalf("GetOpenPeriod: %v %v", period, err)
	}
	// 120.00 yearly -> 10.00 a month.
	if period.SubscriptionCost.Cents != 1000 {
		t.Errorf("subscription cost = %d, want 1000", period.SubscriptionCost.Cents)
	}

	tx, _ := repo.Queries().GetTransaction(ctx, "tx_yearly")
	if !tx.IsSubscription {
		t.Error("transaction should be flagged as subscription")
	}
}
