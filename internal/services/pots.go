package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"potledger/internal/core"
	"potledger/internal/storage"
)

// PotService handles pot creation and the read models the UI is built from.
type PotService struct {
	repo *storage.Repository
}

func NewPotService(repo *storage.Repository) *PotService {
	return &PotService{repo: repo}
}

// AddSpendingPot creates a spending pot. The pot starts fully unspent:
// left equals the allocation.
func (s *PotService) AddSpendingPot(ctx context.Context, name string, allocated core.Money, rolloverByDefault bool) (*core.SpendingPot, error) {
	if err := core.ValidatePotName(name); err != nil {
		return nil, err
	}
	if allocated.Cents < 0 {
		return nil, core.ErrInvalidAmount
	}

	pot := core.SpendingPot{
		ID:                uuid.NewString(),
		Name:              name,
		Allocated:         allocated,
		Left:              allocated,
		RolloverByDefault: rolloverByDefault,
	}
	if err := s.repo.Queries().CreateSpendingPot(ctx, pot); err != nil {
		return nil, err
	}
	return &pot, nil
}

// AddSavingsPot creates a savings pot with an opening balance and a planned
// monthly addition.
func (s *PotService) AddSavingsPot(ctx context.Context, name string, balance, amountToAdd core.Money) (*core.SavingsPot, error) {
	if err := core.ValidatePotName(name); err != nil {
		return nil, err
	}
	if balance.Cents < 0 || amountToAdd.Cents < 0 {
		return nil, core.ErrInvalidAmount
	}

	pot := core.SavingsPot{
		ID:          uuid.NewString(),
		Name:        name,
		Balance:     balance,
		AmountToAdd: amountToAdd,
	}
	if err := s.repo.Queries().CreateSavingsPot(ctx, pot); err != nil {
		return nil, err
	}
	return &pot, nil
}

// PotOverview is the dashboard read model: every pot plus the open period.
type PotOverview struct {
	Spending []core.SpendingPot
	Savings  []core.SavingsPot
	Period   *core.Period // nil before the first rollover
}

// GetAllPotData returns the full dashboard view.
func (s *PotService) GetAllPotData(ctx context.Context) (*PotOverview, error) {
	q := s.repo.Queries()

	spending, err := q.ListSpendingPots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list spending pots: %w", err)
	}
	savings, err := q.ListSavingsPots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list savings pots: %w", err)
	}
	period, err := q.GetOpenPeriod(ctx)
	if err != nil {
		return nil, fmt.Errorf("get open period: %w", err)
	}

	return &PotOverview{
		Spending: spending,
		Savings:  savings,
		Period:   period,
	}, nil
}

// PotOption is the minimal pot representation for selection dropdowns.
type PotOption struct {
	ID   string
	Name string
}

// GetPotDropdownData lists spending pots as id/name pairs.
func (s *PotService) GetPotDropdownData(ctx context.Context) ([]PotOption, error) {
	spending, err := s.repo.Queries().ListSpendingPots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list spending pots: %w", err)
	}
	out := make([]PotOption, 0, len(spending))
	for _, p := range spending {
		out = append(out, PotOption{ID: p.ID, Name: p.Name})
	}
	return out, nil
}

// GetSpendingPot returns one spending pot.
func (s *PotService) GetSpendingPot(ctx context.Context, id string) (*core.SpendingPot, error) {
	return s.repo.Queries().GetSpendingPot(ctx, id)
}
