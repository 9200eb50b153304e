package core

import (
	"strings"
	"time"
)

const (
	Monthly BillingFrequency = "monthly"
	Yearly  BillingFrequency = "yearly"
)

type (
	// BillingFrequency describes how often a subscription bills.
	BillingFrequency string

	// Transaction is one bank transaction pulled from a provider feed.
	// ID is the provider-assigned external id and the sole idempotency key
	// for ingestion. Amount is always positive: money spent.
	Transaction struct {
		ID             string
		MerchantName   string
		IconURL        string
		Amount         Money
		Date           time.Time
		Processed      bool
		PotID          *string
		IsSubscription bool
	}

	// SpendingPot tracks one budget bucket within the open period.
	SpendingPot struct {
		ID                string
		Name              string
		Allocated         Money
		Spent             Money
		Left              Money
		RolloverByDefault bool
	}

	// SavingsPot accumulates a balance across periods.
	SavingsPot struct {
		ID          string
		Name        string
		Balance     Money
		AmountToAdd Money
	}

	// Rule auto-categorizes transactions by merchant name. A nil TargetPotID
	// with IsSubscription set tags the transaction as a subscription payment
	// without assigning a pot.
	Rule struct {
		ID              int64
		MerchantPattern string
		TargetPotID     *string
		IsSubscription  bool
	}

	// Period is one budgeting cycle. A nil EndDate marks the single open
	// period; at most one period is ever open.
	Period struct {
		ID               string
		StartDate        time.Time
		EndDate          *time.Time
		Income           Money
		Spent            Money
		Saved            Money
		LeftOver         Money
		SubscriptionCost Money
	}

	// SpendingSnapshot is a spending pot's end-of-period state, written once
	// when the period closes.
	SpendingSnapshot struct {
		PotID     string
		PeriodID  string
		Name      string // resolved from the pot on reads, not stored
		Allocated Money
		Spent     Money
		Left      Money
	}

	// SavingsSnapshot is a savings pot's end-of-period state.
	SavingsSnapshot struct {
		PotID    string
		PeriodID string
		Name     string // resolved from the pot on reads, not stored
		Balance  Money
		Added    Money
	}
)

// Matches reports whether the rule applies to the given merchant name.
//
// Matching is deliberately case-insensitive SUBSTRING matching, not exact:
// payment processors append varying suffixes to merchant names ("Tesco
// Stores 2204"). The flip side is that rule order is semantically
// significant: with rules for both "Amazon Prime" and "Amazon", the earlier
// rule wins for "Amazon Prime Video".
func (r Rule) Matches(merchantName string) bool {
	if r.MerchantPattern == "" {
		return false
	}
	return strings.Contains(strings.ToLower(merchantName), strings.ToLower(r.MerchantPattern))
}

// Validate rejects rules with no pattern.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.MerchantPattern) == "" {
		return ErrEmptyPattern
	}
	return nil
}

// Validate checks a transaction before it is persisted.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return Invalidf("empty transaction id")
	}
	if strings.TrimSpace(t.MerchantName) == "" {
		return ErrEmptyMerchant
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return Invalidf("transaction %s has no date", t.ID)
	}
	return nil
}

// CheckInvariant verifies left == allocated - spent. A failure is an
// internal inconsistency, never a recoverable caller error.
func (p SpendingPot) CheckInvariant() error {
	if p.Left != p.Allocated.Sub(p.Spent) {
		return Invariantf("pot %s: left %d != allocated %d - spent %d",
			p.ID, p.Left.Cents, p.Allocated.Cents, p.Spent.Cents)
	}
	return nil
}

// ValidatePotName rejects empty names. Duplicate detection happens against
// the store.
func ValidatePotName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > 100 {
		return Invalidf("pot name too long (max 100 characters)")
	}
	return nil
}

// ParseBillingFrequency validates a frequency string.
func ParseBillingFrequency(s string) (BillingFrequency, error) {
	switch BillingFrequency(strings.ToLower(strings.TrimSpace(s))) {
	case Monthly:
		return Monthly, nil
	case Yearly:
		return Yearly, nil
	default:
		return "", ErrUnknownFrequency
	}
}

// MonthlyCost normalizes a subscription amount billed at the given frequency
// to a per-month figure (yearly amounts divide by 12, truncating).
func (f BillingFrequency) MonthlyCost(amount Money) Money {
	if f == Yearly {
		return Money{Cents: amount.Cents / 12}
	}
	return amount
}

// IsOpen reports whether the period is the currently open one.
func (p Period) IsOpen() bool {
	return p.EndDate == nil
}
