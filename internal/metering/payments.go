package metering

import (
	"fmt"

	"bilancio/internal/core"
)

// PaymentGroup sums the instalments paid towards one bill.
type PaymentGroup struct {
	Bill core.BillID `json:"bill"`
	From core.Date   `json:"from"`
	To   core.Date   `json:"to"`
	Sum  core.Money  `json:"sum"`
}

// GroupedPayments groups payments by bill id. Groups appear in the order
// their bill id is first seen; From and To are the earliest and latest
// payment dates and Sum carries the first payment's currency.
func GroupedPayments(payments []core.MeterPayment) ([]PaymentGroup, error) {
	groups := make([]PaymentGroup, 0)
	index := make(map[core.BillID]int)

	for _, p := range payments {
		i, seen := index[p.Bill]
		if !seen {
			index[p.Bill] = len(groups)
			groups = append(groups, PaymentGroup{Bill: p.Bill, From: p.Date, To: p.Date, Sum: p.Value})
			continue
		}

		g := &groups[i]
		sum, err := g.Sum.Add(p.Value)
		if err != nil {
			return nil, fmt.Errorf("bill %s: %w", p.Bill, err)
		}
		g.Sum = sum
		if p.Date.Before(g.From.Time) {
			g.From = p.Date
		}
		if p.Date.After(g.To.Time) {
			g.To = p.Date
		}
	}
	return groups, nil
}

// Contains reports whether d lies within [From, To].
func (g PaymentGroup) Contains(d core.Date) bool {
	return !d.Before(g.From.Time) && !d.After(g.To.Time)
}
