// Package upkeep normalizes semiannual household costs by the first
// recorded salary and derives their year-over-year change.
package upkeep

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"bilancio/internal/core"
)

const (
	MetricIncome    = "income"
	MetricSavings   = "savings"
	MetricGroceries = "groceries"
	MetricPet       = "pet"
	MetricArea      = "area"
	MetricHousing   = "housing"
	MetricCar       = "car"
)

// Options holds the reference constants of the normalization.
type Options struct {
	// MonthlyCalories is the reference intake per month (30 days x 2000 kcal).
	MonthlyCalories float64
	// BudgetMultiplier scales the cheapest-calorie price to a realistic budget.
	BudgetMultiplier float64
	// ReferenceKm is the distance driven per period for fuel based car costs.
	ReferenceKm float64
	MonthsPerPeriod float64
	// PeriodsPerYear divides yearly sums, whether or not every period exists.
	PeriodsPerYear float64
	// InflationFloorYear is excluded from the inflation walk.
	InflationFloorYear int
	// MissingPrior is reported when the prior year's value is zero or absent.
	MissingPrior float64
	// CurrentYear starts the inflation walk; zero means the current calendar year.
	CurrentYear int
}

func DefaultOptions() Options {
	return Options{
		MonthlyCalories:    30 * 2000,
		BudgetMultiplier:   4,
		ReferenceKm:        2500,
		MonthsPerPeriod:    6,
		PeriodsPerYear:     2,
		InflationFloorYear: 2009,
		MissingPrior:       1000,
	}
}

type (
	// Metrics are salary normalized ratios keyed by metric name.
	Metrics map[string]float64

	Report struct {
		Base      *core.Money                `json:"base,omitempty"`
		Report    map[int]map[int]Metrics    `json:"report,omitempty"`
		Inflation map[int]map[string]float64 `json:"inflation,omitempty"`
	}
)

// CalculateUpkeepReport normalizes every half by the salary of the first
// one in input order. Callers sort halves chronologically. An empty input
// yields an empty report.
func CalculateUpkeepReport(halfs []core.UpkeepHalf, opts Options) (Report, error) {
	if len(halfs) == 0 {
		return Report{}, nil
	}
	opts = opts.withDefaults()

	first := halfs[0]
	base := first.Salary
	if base.Amount == 0 {
		return Report{}, fmt.Errorf("%w: upkeep base salary is zero", core.ErrMalformedInput)
	}

	report := make(map[int]map[int]Metrics)
	for _, h := range halfs {
		m, err := normalize(h, first, opts)
		if err != nil {
			return Report{}, fmt.Errorf("upkeep %d/%d: %w", h.Year, h.Period, err)
		}
		periods, ok := report[h.Year]
		if !ok {
			periods = make(map[int]Metrics)
			report[h.Year] = periods
		}
		periods[h.Period] = m
	}

	return Report{
		Base:      &base,
		Report:    report,
		Inflation: inflation(report, opts),
	}, nil
}

func normalize(h, first core.UpkeepHalf, opts Options) (Metrics, error) {
	base := first.Salary
	ratio := func(m core.Money) (float64, error) {
		if m.Currency != "" && m.Currency != base.Currency {
			return 0, fmt.Errorf("%w: %s against base %s", core.ErrCurrencyMismatch, m.Currency, base.Currency)
		}
		return m.Amount / base.Amount, nil
	}

	out := Metrics{}
	var err error
	if out[MetricIncome], err = ratio(h.Salary); err != nil {
		return nil, err
	}
	if h.Savings != nil {
		if out[MetricSavings], err = ratio(*h.Savings); err != nil {
			return nil, err
		}
	}

	if price, ok := caloriePrice(h.Groceries); ok {
		budget := core.Money{Amount: price * opts.MonthlyCalories * opts.BudgetMultiplier, Currency: base.Currency}
		if out[MetricGroceries], err = ratio(budget); err != nil {
			return nil, err
		}
	}

	pet, err := sum(mapValues(h.Pet))
	if err != nil {
		return nil, fmt.Errorf("pet: %w", err)
	}
	if pet.Amount > 0 {
		if out[MetricPet], err = ratio(pet.Scale(1 / opts.MonthsPerPeriod)); err != nil {
			return nil, err
		}
	}

	if first.Housing.Area > 0 {
		out[MetricArea] = h.Housing.Area / first.Housing.Area
	}
	housing, err := sum(mapValues(h.Housing.Costs))
	if err != nil {
		return nil, fmt.Errorf("housing: %w", err)
	}
	if out[MetricHousing], err = ratio(housing); err != nil {
		return nil, err
	}

	if h.Car != nil {
		car, err := carCost(*h.Car, opts)
		if err != nil {
			return nil, fmt.Errorf("car: %w", err)
		}
		if car.Amount > 0 {
			if out[MetricCar], err = ratio(car.Scale(1 / opts.MonthsPerPeriod)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// caloriePrice is the mean price of one kcal over the groceries with a
// positive calorie count.
func caloriePrice(groceries []core.Grocery) (float64, bool) {
	var total float64
	var n int
	for _, g := range groceries {
		if g.Calories <= 0 {
			continue
		}
		total += g.Price.Amount / g.Calories
		n++
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

// carCost is the car cost of one period. The variable part is fuel based
// over the reference distance when consumption and fuel price are known,
// otherwise the actual km at the per-km price.
func carCost(c core.Car, opts Options) (core.Money, error) {
	parts := []core.Money{c.Maintenance, c.Insurance}
	switch {
	case c.Fuel != nil && c.Consumption != nil:
		parts = append(parts, c.Fuel.Scale(opts.ReferenceKm * *c.Consumption / 100))
	case c.Km != nil && c.KmPrice != nil:
		parts = append(parts, c.KmPrice.Scale(*c.Km))
	}
	if c.Loan != nil {
		parts = append(parts, *c.Loan)
	}
	return sum(parts)
}

func sum(ms []core.Money) (core.Money, error) {
	var total core.Money
	for _, m := range ms {
		var err error
		if total, err = total.Add(m); err != nil {
			return core.Money{}, err
		}
	}
	return total, nil
}

// mapValues lists the values of m by key, so float sums do not depend on
// map iteration order.
func mapValues(m map[string]core.Money) []core.Money {
	out := make([]core.Money, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[k])
	}
	return out
}

// inflation averages every metric per year and reports the percentage
// change against the prior year, walking down from the current year.
func inflation(report map[int]map[int]Metrics, opts Options) map[int]map[string]float64 {
	averages := make(map[int]Metrics, len(report))
	for year, periods := range report {
		avg := Metrics{}
		for _, m := range periods {
			for k, v := range m {
				avg[k] += v
			}
		}
		for k := range avg {
			avg[k] /= opts.PeriodsPerYear
		}
		averages[year] = avg
	}

	current := opts.CurrentYear
	if current == 0 {
		current = time.Now().Year()
	}

	out := make(map[int]map[string]float64)
	for year := current; year > opts.InflationFloorYear; year-- {
		cur, ok := averages[year]
		if !ok {
			continue
		}
		prior := averages[year-1]
		changes := make(map[string]float64, len(cur))
		for k, v := range cur {
			p := prior[k]
			if p == 0 {
				changes[k] = opts.MissingPrior
				continue
			}
			changes[k] = (v - p) / p * 100
		}
		out[year] = changes
	}
	return out
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MonthlyCalories <= 0 {
		o.MonthlyCalories = d.MonthlyCalories
	}
	if o.BudgetMultiplier <= 0 {
		o.BudgetMultiplier = d.BudgetMultiplier
	}
	if o.ReferenceKm <= 0 {
		o.ReferenceKm = d.ReferenceKm
	}
	if o.MonthsPerPeriod <= 0 {
		o.MonthsPerPeriod = d.MonthsPerPeriod
	}
	if o.PeriodsPerYear <= 0 {
		o.PeriodsPerYear = d.PeriodsPerYear
	}
	if o.InflationFloorYear == 0 {
		o.InflationFloorYear = d.InflationFloorYear
	}
	if o.MissingPrior == 0 {
		o.MissingPrior = d.MissingPrior
	}
	return o
}
