package metering

import "bilancio/internal/core"

type (
	// HeaterBills are the bills of one heating meter.
	HeaterBills struct {
		Meter core.Meter
		Bills []Bill
	}

	HeaterBill struct {
		Bill
		ID       string `json:"id"`
		Location string `json:"location"`
	}

	// YearSummary collects every utility bill of one calendar year.
	YearSummary struct {
		Year    int          `json:"year"`
		Cold    *Bill        `json:"cold,omitempty"`
		Warm    *Bill        `json:"warm,omitempty"`
		Heaters []HeaterBill `json:"heaters"`
		Cost    BillCost     `json:"cost"`
	}
)

// YearlyOverview merges cold water, warm water and per-heater bills into
// one summary per year. Every year seen in any source is present; the
// summary cost is the sum of all bills of that year.
func YearlyOverview(cold, warm []Bill, heaters []HeaterBills) map[int]YearSummary {
	out := make(map[int]YearSummary)
	summary := func(year int) YearSummary {
		if s, ok := out[year]; ok {
			return s
		}
		return YearSummary{Year: year, Heaters: []HeaterBill{}}
	}

	for _, b := range cold {
		s := summary(b.Year)
		b := b
		s.Cold = &b
		s.Cost = s.Cost.plus(b.Cost)
		out[b.Year] = s
	}
	for _, b := range warm {
		s := summary(b.Year)
		b := b
		s.Warm = &b
		s.Cost = s.Cost.plus(b.Cost)
		out[b.Year] = s
	}
	for _, h := range heaters {
		for _, b := range h.Bills {
			s := summary(b.Year)
			s.Heaters = append(s.Heaters, HeaterBill{Bill: b, ID: h.Meter.ID, Location: h.Meter.Location})
			s.Cost = s.Cost.plus(b.Cost)
			out[b.Year] = s
		}
	}
	return out
}

// plus adds amounts; the currency is taken from o whenever o has one.
func (c BillCost) plus(o BillCost) BillCost {
	return BillCost{
		Unit:  accumulate(c.Unit, o.Unit),
		Base:  accumulate(c.Base, o.Base),
		Total: accumulate(c.Total, o.Total),
	}
}

func accumulate(acc, m core.Money) core.Money {
	currency := acc.Currency
	if m.Currency != "" {
		currency = m.Currency
	}
	return core.Money{Amount: acc.Amount + m.Amount, Currency: currency}
}
