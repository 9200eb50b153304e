package http

import (
	"net/http"
	"strconv"
	"time"

	"potledger/internal/core"
	"potledger/internal/services"
)

type spendingPotJSON struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	AllocatedCents    int64  `json:"allocated_cents"`
	SpentCents        int64  `json:"spent_cents"`
	LeftCents         int64  `json:"left_cents"`
	RolloverByDefault bool   `json:"rollover_by_default"`
}

type savingsPotJSON struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	BalanceCents     int64  `json:"balance_cents"`
	AmountToAddCents int64  `json:"amount_to_add_cents"`
}

type periodJSON struct {
	ID                    string     `json:"id"`
	StartDate             time.Time  `json:"start_date"`
	EndDate               *time.Time `json:"end_date,omitempty"`
	IncomeCents           int64      `json:"income_cents"`
	SpentCents            int64      `json:"spent_cents"`
	SavedCents            int64      `json:"saved_cents"`
	LeftOverCents         int64      `json:"left_over_cents"`
	SubscriptionCostCents int64      `json:"subscription_cost_cents"`
}

type transactionJSON struct {
	ID             string    `json:"id"`
	MerchantName   string    `json:"merchant_name"`
	IconURL        string    `json:"icon_url,omitempty"`
	AmountCents    int64     `json:"amount_cents"`
	Date           time.Time `json:"date"`
	Processed      bool      `json:"processed"`
	PotID          *string   `json:"pot_id"`
	IsSubscription bool      `json:"is_subscription"`
}

func toSpendingPotJSON(p core.SpendingPot) spendingPotJSON {
	return spendingPotJSON{
		ID:                p.ID,
		Name:              p.Name,
		AllocatedCents:    p.Allocated.Cents,
		SpentCents:        p.Spent.Cents,
		LeftCents:         p.Left.Cents,
		RolloverByDefault: p.RolloverByDefault,
	}
}

func toSavingsPotJSON(p core.SavingsPot) savingsPotJSON {
	return savingsPotJSON{
		ID:               p.ID,
		Name:             p.Name,
		BalanceCents:     p.Balance.Cents,
		AmountToAddCents: p.AmountToAdd.Cents,
	}
}

func toPeriodJSON(p core.Period) periodJSON {
	return periodJSON{
		ID:                    p.ID,
		StartDate:             p.StartDate,
		EndDate:               p.EndDate,
		IncomeCents:           p.Income.Cents,
		SpentCents:            p.Spent.Cents,
		SavedCents:            p.Saved.Cents,
		LeftOverCents:         p.LeftOver.Cents,
		SubscriptionCostCents: p.SubscriptionCost.Cents,
	}
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:             t.ID,
		MerchantName:   t.MerchantName,
		IconURL:        t.IconURL,
		AmountCents:    t.Amount.Cents,
		Date:           t.Date,
		Processed:      t.Processed,
		PotID:          t.PotID,
		IsSubscription: t.IsSubscription,
	}
}

func (s *Server) handleGetPots(w http.ResponseWriter, r *http.Request) {
	overview, err := s.pots.GetAllPotData(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := struct {
		Spending []spendingPotJSON `json:"spending_pots"`
		Savings  []savingsPotJSON  `json:"savings_pots"`
		Period   *periodJSON       `json:"period,omitempty"`
	}{
		Spending: make([]spendingPotJSON, 0, len(overview.Spending)),
		Savings:  make([]savingsPotJSON, 0, len(overview.Savings)),
	}
	for _, p := range overview.Spending {
		resp.Spending = append(resp.Spending, toSpendingPotJSON(p))
	}
	for _, p := range overview.Savings {
		resp.Savings = append(resp.Savings, toSavingsPotJSON(p))
	}
	if overview.Period != nil {
		pj := toPeriodJSON(*overview.Period)
		resp.Period = &pj
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSpendingPot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string `json:"name"`
		AllocatedCents    int64  `json:"allocated_cents"`
		Allocated         string `json:"allocated,omitempty"`
		RolloverByDefault bool   `json:"rollover_by_default"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	allocated, err := moneyField(req.AllocatedCents, req.Allocated)
	if err != nil {
		writeError(w, err)
		return
	}

	pot, err := s.pots.AddSpendingPot(r.Context(), req.Name, allocated, req.RolloverByDefault)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSpendingPotJSON(*pot))
}

func (s *Server) handleCreateSavingsPot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name             string `json:"name"`
		BalanceCents     int64  `json:"balance_cents"`
		Balance          string `json:"balance,omitempty"`
		AmountToAddCents int64  `json:"amount_to_add_cents"`
		AmountToAdd      string `json:"amount_to_add,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	balance, err := moneyField(req.BalanceCents, req.Balance)
	if err != nil {
		writeError(w, err)
		return
	}
	amountToAdd, err := moneyField(req.AmountToAddCents, req.AmountToAdd)
	if err != nil {
		writeError(w, err)
		return
	}

	pot, err := s.pots.AddSavingsPot(r.Context(), req.Name, balance, amountToAdd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSavingsPotJSON(*pot))
}

func (s *Server) handlePotDropdown(w http.ResponseWriter, r *http.Request) {
	options, err := s.pots.GetPotDropdownData(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	type option struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := make([]option, 0, len(options))
	for _, o := range options {
		out = append(out, option{ID: o.ID, Name: o.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSpendingPot(w http.ResponseWriter, r *http.Request) {
	pot, err := s.pots.GetSpendingPot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSpendingPotJSON(*pot))
}

func (s *Server) handleCurrentTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.txs.GetCurrentPeriodTransactions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionList(txs))
}

func (s *Server) handleUnprocessedTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.txs.GetUnprocessedTransactions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionList(txs))
}

func toTransactionList(txs []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

func (s *Server) handleUpdateTransactionPot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PotID *string `json:"pot_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.txs.UpdateTransaction(r.Context(), r.PathValue("id"), req.PotID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Frequency string `json:"frequency"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	frequency, err := core.ParseBillingFrequency(req.Frequency)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.txs.MarkAsSubscription(r.Context(), r.PathValue("id"), frequency); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.txs.GetRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	type ruleJSON struct {
		ID              int64   `json:"id"`
		MerchantPattern string  `json:"merchant_pattern"`
		TargetPotID     *string `json:"target_pot_id"`
		IsSubscription  bool    `json:"is_subscription"`
	}
	out := make([]ruleJSON, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleJSON{
			ID:              rule.ID,
			MerchantPattern: rule.MerchantPattern,
			TargetPotID:     rule.TargetPotID,
			IsSubscription:  rule.IsSubscription,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MerchantPattern string  `json:"merchant_pattern"`
		TargetPotID     *string `json:"target_pot_id"`
		IsSubscription  bool    `json:"is_subscription"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.txs.AddRule(r.Context(), req.MerchantPattern, req.TargetPotID, req.IsSubscription)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IncomeCents      int64            `json:"income_cents"`
		Income           string           `json:"income,omitempty"`
		Allocations      map[string]int64 `json:"allocations"`
		Rollover         map[string]bool  `json:"rollover,omitempty"`
		SavingsAdditions map[string]int64 `json:"savings_additions,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	income, err := moneyField(req.IncomeCents, req.Income)
	if err != nil {
		writeError(w, err)
		return
	}

	rollover := services.RolloverRequest{
		Income:           income,
		Allocations:      centsMap(req.Allocations),
		Rollover:         req.Rollover,
		SavingsAdditions: centsMap(req.SavingsAdditions),
	}
	periodID, err := s.coordinator.AddNewMonth(r.Context(), rollover)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"period_id": periodID})
}

// moneyField resolves an amount sent either as integer minor units or as a
// decimal string ("12.34"); the decimal form wins when both are present.
func moneyField(cents int64, decimal string) (core.Money, error) {
	if decimal == "" {
		return core.Money{Cents: cents}, nil
	}
	c, err := core.ParseDecimalToCents(decimal)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: c}, nil
}

func centsMap(in map[string]int64) map[string]core.Money {
	out := make(map[string]core.Money, len(in))
	for k, v := range in {
		out[k] = core.Money{Cents: v}
	}
	return out
}

func (s *Server) handleHistoricMonths(w http.ResponseWriter, r *http.Request) {
	periods, err := s.history.GetHistoricMonths(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]periodJSON, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistoricMonth(w http.ResponseWriter, r *http.Request) {
	data, err := s.history.GetHistoricMonthData(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	type spendingSnapJSON struct {
		PotID          string `json:"pot_id"`
		Name           string `json:"name"`
		AllocatedCents int64  `json:"allocated_cents"`
		SpentCents     int64  `json:"spent_cents"`
		LeftCents      int64  `json:"left_cents"`
	}
	type savingsSnapJSON struct {
		PotID        string `json:"pot_id"`
		Name         string `json:"name"`
		BalanceCents int64  `json:"balance_cents"`
		AddedCents   int64  `json:"added_cents"`
	}

	resp := struct {
		Period   periodJSON         `json:"period"`
		Spending []spendingSnapJSON `json:"spending_pots"`
		Savings  []savingsSnapJSON  `json:"savings_pots"`
	}{Period: toPeriodJSON(data.Period)}

	for _, snap := range data.Spending {
		resp.Spending = append(resp.Spending, spendingSnapJSON{
			PotID:          snap.PotID,
			Name:           snap.Name,
			AllocatedCents: snap.Allocated.Cents,
			SpentCents:     snap.Spent.Cents,
			LeftCents:      snap.Left.Cents,
		})
	}
	for _, snap := range data.Savings {
		resp.Savings = append(resp.Savings, savingsSnapJSON{
			PotID:        snap.PotID,
			Name:         snap.Name,
			BalanceCents: snap.Balance.Cents,
			AddedCents:   snap.Added.Cents,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleYearlyData(w http.ResponseWriter, r *http.Request) {
	year := s.clock.Now().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, core.Invalidf("invalid year %q", v))
			return
		}
		year = parsed
	}

	summary, err := s.history.GetYearlyData(r.Context(), year)
	if err != nil {
		writeError(w, err)
		return
	}

	months := make([]periodJSON, 0, len(summary.Months))
	for _, p := range summary.Months {
		months = append(months, toPeriodJSON(p))
	}
	writeJSON(w, http.StatusOK, struct {
		Year               int          `json:"year"`
		Months             []periodJSON `json:"months"`
		TotalIncomeCents   int64        `json:"total_income_cents"`
		TotalSpentCents    int64        `json:"total_spent_cents"`
		TotalSavedCents    int64        `json:"total_saved_cents"`
		TotalLeftOverCents int64        `json:"total_left_over_cents"`
	}{
		Year:               summary.Year,
		Months:             months,
		TotalIncomeCents:   summary.TotalIncome.Cents,
		TotalSpentCents:    summary.TotalSpent.Cents,
		TotalSavedCents:    summary.TotalSaved.Cents,
		TotalLeftOverCents: summary.TotalLeftOver.Cents,
	})
}
