package metering

import (
	"fmt"

	"bilancio/internal/core"
)

type (
	BillCost struct {
		Unit  core.Money `json:"unit"`
		Base  core.Money `json:"base"`
		Total core.Money `json:"total"`
	}

	// Bill summarizes consumption and cost between two boundary readings.
	Bill struct {
		Year        int           `json:"year"`
		From        core.Date     `json:"from"`
		To          core.Date     `json:"to"`
		Consumption float64       `json:"consumption"`
		Days        float64       `json:"days"`
		Cost        BillCost      `json:"cost"`
		Payments    *PaymentGroup `json:"payments,omitempty"`
	}
)

// Bills computes the bills of a meter with the policy of its kind and
// attaches matching payment groups. Water and heating meters are billed per
// calendar year, electricity and gas per billable reading.
func Bills(m core.Meter, readings []Reading, groups []PaymentGroup) ([]Bill, error) {
	var (
		bills []Bill
		err   error
	)
	if m.Kind.YearBucketed() {
		bills, err = YearBills(m, readings)
	} else {
		bills, err = ComputeBills(m, readings)
	}
	if err != nil {
		return nil, err
	}
	return AttachPayments(bills, groups), nil
}

// ComputeBills emits one bill per pair of consecutive boundary readings.
// A boundary is a billable reading or the last reading of the sequence.
//
// Unit and base costs are summed over every reading after the previous
// boundary up to and including the current one. The first boundary only
// anchors the sequence; costs before it are discarded. Every reading of a
// bill must be priced in one currency, otherwise core.ErrCurrencyMismatch
// is returned.
func ComputeBills(m core.Meter, readings []Reading) ([]Bill, error) {
	bills := make([]Bill, 0)
	factor := consumptionFactor(m)

	var (
		anchor     Reading
		haveAnchor bool
		unit, base core.Money
		err        error
	)
	for i, r := range readings {
		if haveAnchor {
			if unit, err = unit.Add(r.UnitCost); err != nil {
				return nil, fmt.Errorf("meter %s at %s: %w", m.ID, r.Date.Format(core.DateLayout), err)
			}
			if base, err = base.Add(r.BaseCost); err != nil {
				return nil, fmt.Errorf("meter %s at %s: %w", m.ID, r.Date.Format(core.DateLayout), err)
			}
		}
		if !r.Billable && i != len(readings)-1 {
			continue
		}
		if haveAnchor {
			cost, err := newBillCost(unit, base)
			if err != nil {
				return nil, fmt.Errorf("meter %s at %s: %w", m.ID, r.Date.Format(core.DateLayout), err)
			}
			bills = append(bills, Bill{
				Year:        r.Date.Year(),
				From:        anchor.Date,
				To:          r.Date,
				Consumption: (r.Measurement - anchor.Measurement) * factor,
				Days:        core.DaysBetween(anchor.Date, r.Date),
				Cost:        cost,
			})
		}
		anchor, haveAnchor = r, true
		unit, base = core.Money{}, core.Money{}
	}
	return bills, nil
}

// YearBills emits at most one bill per calendar year between the first and
// the last reading. A year runs from the boundary of the previous year (or
// the first reading) to the last boundary dated in that year. Cost is the
// endpoint delta priced at the closing reading's tariff plus one base charge
// scaled by the meter area.
func YearBills(m core.Meter, readings []Reading) ([]Bill, error) {
	bills := make([]Bill, 0)
	if len(readings) == 0 {
		return bills, nil
	}

	first := readings[0].Date.Year()
	last := readings[len(readings)-1].Date.Year()
	for year := first; year <= last; year++ {
		end, ok := yearBoundary(readings, year)
		if !ok {
			continue
		}
		start, ok := yearBoundary(readings, year-1)
		if !ok {
			start = readings[0]
		}
		if !end.Date.After(start.Date.Time) {
			continue
		}

		consumption := end.Measurement - start.Measurement
		cost, err := newBillCost(end.Price.Unit.Scale(consumption), end.Price.Base.Scale(m.Area))
		if err != nil {
			return nil, fmt.Errorf("meter %s year %d: %w", m.ID, year, err)
		}
		bills = append(bills, Bill{
			Year:        year,
			From:        start.Date,
			To:          end.Date,
			Consumption: consumption,
			Days:        core.DaysBetween(start.Date, end.Date),
			Cost:        cost,
		})
	}
	return bills, nil
}

// yearBoundary returns the last billable-or-final reading dated in year or
// earlier.
func yearBoundary(readings []Reading, year int) (Reading, bool) {
	for i := len(readings) - 1; i >= 0; i-- {
		r := readings[i]
		if r.Date.Year() > year {
			continue
		}
		if r.Billable || i == len(readings)-1 {
			return r, true
		}
	}
	return Reading{}, false
}

// AttachPayments returns a copy of bills where each bill carries the first
// payment group whose date range contains the bill's end date.
func AttachPayments(bills []Bill, groups []PaymentGroup) []Bill {
	out := make([]Bill, len(bills))
	copy(out, bills)
	for i := range out {
		for _, g := range groups {
			if g.Contains(out[i].To) {
				g := g
				out[i].Payments = &g
				break
			}
		}
	}
	return out
}

func newBillCost(unit, base core.Money) (BillCost, error) {
	total, err := unit.Add(base)
	if err != nil {
		return BillCost{}, err
	}
	// an empty side takes the total's currency
	unit.Currency, base.Currency = total.Currency, total.Currency
	return BillCost{Unit: unit, Base: base, Total: total}, nil
}
