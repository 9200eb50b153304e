package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"potledger/internal/core"
	"potledger/internal/storage"
)

// MonthData is one closed period with its frozen pot history.
type MonthData struct {
	Period   core.Period
	Spending []core.SpendingSnapshot
	Savings  []core.SavingsSnapshot
}

// YearSummary aggregates a calendar year of closed periods.
type YearSummary struct {
	Year          int
	Months        []core.Period
	TotalIncome   core.Money
	TotalSpent    core.Money
	TotalSaved    core.Money
	TotalLeftOver core.Money
}

// HistoryService serves closed-period analytics. Closed periods never change,
// so results are cached; the short TTL only bounds how stale a year view can
// be right after a rollover.
type HistoryService struct {
	repo  *storage.Repository
	cache *gocache.Cache
}

func NewHistoryService(repo *storage.Repository) *HistoryService {
	return &HistoryService{
		repo:  repo,
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// GetHistoricMonths lists all closed periods, most recent first.
func (s *HistoryService) GetHistoricMonths(ctx context.Context) ([]core.Period, error) {
	return s.repo.Queries().ListClosedPeriods(ctx)
}

// GetHistoricMonthData returns one closed period with its snapshots.
func (s *HistoryService) GetHistoricMonthData(ctx context.Context, periodID string) (*MonthData, error) {
	if cached, ok := s.cache.Get("month:" + periodID); ok {
		return cached.(*MonthData), nil
	}

	q := s.repo.Queries()
	period, err := q.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if period.IsOpen() {
		return nil, core.Invalidf("period %s is still open", periodID)
	}

	spending, err := q.ListSpendingSnapshots(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("load spending history: %w", err)
	}
	savings, err := q.ListSavingsSnapshots(ctx, periodID)
	if err != nil {
		return nil, fmt.Errorf("load savings history: %w", err)
	}

	data := &MonthData{Period: *period, Spending: spending, Savings: savings}
	s.cache.Set("month:"+periodID, data, gocache.DefaultExpiration)
	return data, nil
}

// GetYearlyData aggregates the closed periods of one calendar year.
func (s *HistoryService) GetYearlyData(ctx context.Context, year int) (*YearSummary, error) {
	key := "year:" + strconv.Itoa(year)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*YearSummary), nil
	}

	periods, err := s.repo.Queries().ListClosedPeriodsByYear(ctx, year)
	if err != nil {
		return nil, err
	}

	summary := &YearSummary{Year: year, Months: periods}
	for _, p := range periods {
		summary.TotalIncome = summary.TotalIncome.Add(p.Income)
		summary.TotalSpent = summary.TotalSpent.Add(p.Spent)
		summary.TotalSaved = summary.TotalSaved.Add(p.Saved)
		summary.TotalLeftOver = summary.TotalLeftOver.Add(p.LeftOver)
	}

	s.cache.Set(key, summary, gocache.DefaultExpiration)
	return summary, nil
}

func zeroTime() time.Time {
	return time.Unix(0, 0).UTC()
}
