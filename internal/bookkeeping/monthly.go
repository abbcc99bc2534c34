// Package bookkeeping derives balance, income/expense and category reports
// from bank activities. Expenses are stored as negative amounts and are
// reported as positive magnitudes. Functions never modify their inputs.
package bookkeeping

import (
	"fmt"
	"time"

	"bilancio/internal/core"
)

// TrackedTypes are the account types covered by MonthlyOverview.
var TrackedTypes = []core.AccountType{core.Checking, core.CreditCard, core.Cash}

type (
	Totals struct {
		Income   core.Money `json:"income"`
		Expenses core.Money `json:"expenses"`
	}

	// MonthOverview holds balances per account type at the end of the
	// previous and of the selected month, plus the month's income and
	// expense totals.
	MonthOverview struct {
		Year      int                             `json:"year"`
		Month     int                             `json:"month"`
		LastMonth map[core.AccountType]core.Money `json:"lastMonth"`
		Total     Totals                          `json:"total"`
		Current   map[core.AccountType]core.Money `json:"current"`
	}
)

// MonthlyOverview computes the overview of month (1-12) of year.
//
// Balances sum every activity of an account of the given type dated before
// the cutoff. A transfer credits its account and debits the account named
// by its source. Income and expenses only count non-transfer activities of
// tracked accounts dated inside the month.
func MonthlyOverview(year, month int, activities []core.Activity, accounts []core.Account) (MonthOverview, error) {
	if month < 1 || month > 12 {
		return MonthOverview{}, fmt.Errorf("%w: month %d out of range", core.ErrMalformedInput, month)
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	types := make(map[string]core.AccountType, len(accounts))
	for _, a := range accounts {
		types[a.ID] = a.Type
	}

	out := MonthOverview{
		Year:      year,
		Month:     month,
		LastMonth: zeroBalances(),
		Current:   zeroBalances(),
		Total:     Totals{Income: core.Euro(0), Expenses: core.Euro(0)},
	}

	post := func(accountID string, value core.Money, date time.Time) error {
		typ, ok := types[accountID]
		if !ok || !tracked(typ) {
			return nil
		}
		var err error
		if date.Before(end) {
			if out.Current[typ], err = out.Current[typ].Add(value); err != nil {
				return err
			}
		}
		if date.Before(start) {
			if out.LastMonth[typ], err = out.LastMonth[typ].Add(value); err != nil {
				return err
			}
		}
		return nil
	}

	for _, a := range activities {
		if err := post(a.Account, a.Value, a.Date.Time); err != nil {
			return MonthOverview{}, fmt.Errorf("activity on %s: %w", a.Account, err)
		}
		if a.Transfer {
			if err := post(a.Source, a.Value.Neg(), a.Date.Time); err != nil {
				return MonthOverview{}, fmt.Errorf("transfer from %s: %w", a.Source, err)
			}
			continue
		}

		typ, ok := types[a.Account]
		if !ok || !tracked(typ) || a.Date.Before(start) || !a.Date.Before(end) {
			continue
		}
		var err error
		switch {
		case a.Value.Amount > 0:
			out.Total.Income, err = out.Total.Income.Add(a.Value)
		case a.Value.Amount < 0:
			out.Total.Expenses, err = out.Total.Expenses.Add(a.Value.Abs())
		}
		if err != nil {
			return MonthOverview{}, fmt.Errorf("activity on %s: %w", a.Account, err)
		}
	}
	return out, nil
}

func zeroBalances() map[core.AccountType]core.Money {
	m := make(map[core.AccountType]core.Money, len(TrackedTypes))
	for _, t := range TrackedTypes {
		m[t] = core.Euro(0)
	}
	return m
}

func tracked(t core.AccountType) bool {
	for _, tt := range TrackedTypes {
		if tt == t {
			return true
		}
	}
	return false
}
