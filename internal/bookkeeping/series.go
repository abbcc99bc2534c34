package bookkeeping

import (
	"sort"

	"bilancio/internal/core"
)

// Uncategorized labels activities without a category, source or description.
const Uncategorized = "Uncategorized"

type (
	// ChartSeries is one value per calendar month, January first.
	ChartSeries struct {
		Label string    `json:"label"`
		Data  []float64 `json:"data"`
	}

	Point struct {
		X int     `json:"x"`
		Y float64 `json:"y"`
	}

	DisplaySeries struct {
		Label   string  `json:"label"`
		Points  []Point `json:"points"`
		Total   float64 `json:"total"`
		Average float64 `json:"average"`
	}
)

func newSeries(label string) ChartSeries {
	return ChartSeries{Label: label, Data: make([]float64, 12)}
}

// Total sums the series.
func (s ChartSeries) Total() float64 {
	var sum float64
	for _, v := range s.Data {
		sum += v
	}
	return sum
}

// expense returns the positive magnitude of a non-transfer expense.
func expense(a core.Activity) (float64, bool) {
	if a.Transfer || a.Value.Amount >= 0 {
		return 0, false
	}
	return -a.Value.Amount, true
}

func label(s string) string {
	if s == "" {
		return Uncategorized
	}
	return s
}

// YearlyOverview buckets expenses by year and category into monthly series.
func YearlyOverview(activities []core.Activity) map[int]map[string]ChartSeries {
	out := make(map[int]map[string]ChartSeries)
	for _, a := range activities {
		amount, ok := expense(a)
		if !ok || a.Date.IsZero() {
			continue
		}
		year := a.Date.Year()
		categories, ok := out[year]
		if !ok {
			categories = make(map[string]ChartSeries)
			out[year] = categories
		}
		add(categories, label(a.Category), int(a.Date.Month())-1, amount)
	}
	return out
}

// CategoryOverview turns the category series of one year into display
// series ordered by label. X is the month number (1-12).
func CategoryOverview(categories map[string]ChartSeries) []DisplaySeries {
	labels := make([]string, 0, len(categories))
	for l := range categories {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	out := make([]DisplaySeries, 0, len(labels))
	for _, l := range labels {
		s := categories[l]
		ds := DisplaySeries{Label: l, Points: make([]Point, len(s.Data))}
		for i, v := range s.Data {
			ds.Points[i] = Point{X: i + 1, Y: v}
		}
		ds.Total = s.Total()
		if len(s.Data) > 0 {
			ds.Average = ds.Total / float64(len(s.Data))
		}
		out = append(out, ds)
	}
	return out
}

func add(series map[string]ChartSeries, key string, month int, amount float64) {
	s, ok := series[key]
	if !ok {
		s = newSeries(key)
		series[key] = s
	}
	s.Data[month] += amount
}
