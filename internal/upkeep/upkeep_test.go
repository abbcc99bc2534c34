package upkeep

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"bilancio/internal/core"
)

func ptr[T any](v T) *T { return &v }

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func half(year, period int, salary float64, housing float64) core.UpkeepHalf {
	return core.UpkeepHalf{
		Year:    year,
		Period:  period,
		Salary:  core.Euro(salary),
		Housing: core.Housing{Area: 80, Costs: map[string]core.Money{"rent": core.Euro(housing)}},
	}
}

func TestCalculateUpkeepReportEmpty(t *testing.T) {
	for _, in := range [][]core.UpkeepHalf{nil, {}} {
		got, err := CalculateUpkeepReport(in, DefaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got, Report{}) {
			t.Fatalf("expected empty report, got %+v", got)
		}
		data, _ := json.Marshal(got)
		if string(data) != "{}" {
			t.Errorf("empty report should encode as {}, got %s", data)
		}
	}
}

func TestCalculateUpkeepReportBaseIsFirstSalary(t *testing.T) {
	halfs := []core.UpkeepHalf{half(2023, 2, 2100, 800), half(2023, 1, 2000, 800)}

	got, err := CalculateUpkeepReport(halfs, DefaultOptions())
	if err != nil {
		t.Fatalf("CalculateUpkeepReport() error = %v", err)
	}
	if got.Base == nil || *got.Base != halfs[0].Salary {
		t.Fatalf("base = %v, want %v", got.Base, halfs[0].Salary)
	}
	if !near(got.Report[2023][1][MetricIncome], 2000.0/2100.0) {
		t.Errorf("income ratio = %v", got.Report[2023][1][MetricIncome])
	}
}

func TestCalculateUpkeepReportMetrics(t *testing.T) {
	first := core.UpkeepHalf{
		Year:    2022,
		Period:  1,
		Salary:  core.Euro(2000),
		Savings: ptr(core.Euro(400)),
		Groceries: []core.Grocery{
			{Calories: 100, Price: core.Euro(0.5)},
			{Calories: 200, Price: core.Euro(0.5)},
			{Calories: 0, Price: core.Euro(99)},
		},
		Pet: map[string]core.Money{"food": core.Euro(60), "vet": core.Euro(60)},
		Housing: core.Housing{Area: 80, Costs: map[string]core.Money{
			"rent":    core.Euro(600),
			"heating": core.Euro(200),
		}},
		Car: &core.Car{
			Maintenance: core.Euro(120),
			Insurance:   core.Euro(300),
			Fuel:        ptr(core.Euro(2)),
			Consumption: ptr(6.0),
		},
	}
	second := core.UpkeepHalf{
		Year:    2022,
		Period:  2,
		Salary:  core.Euro(2000),
		Housing: core.Housing{Area: 40},
		Car:     &core.Car{Km: ptr(1000.0), KmPrice: ptr(core.Euro(0.3))},
	}

	got, err := CalculateUpkeepReport([]core.UpkeepHalf{first, second}, DefaultOptions())
	if err != nil {
		t.Fatalf("CalculateUpkeepReport() error = %v", err)
	}

	tests := []struct {
		period int
		metric string
		want   float64
	}{
		{1, MetricIncome, 1},
		{1, MetricSavings, 0.2},
		{1, MetricGroceries, 0.45},
		{1, MetricPet, 0.01},
		{1, MetricArea, 1},
		{1, MetricHousing, 0.4},
		{1, MetricCar, 0.06},
		{2, MetricArea, 0.5},
		{2, MetricHousing, 0},
		{2, MetricCar, 0.025},
	}
	for _, tt := range tests {
		if v, ok := got.Report[2022][tt.period][tt.metric]; !ok || !near(v, tt.want) {
			t.Errorf("period %d %s = %v (present %v), want %v", tt.period, tt.metric, v, ok, tt.want)
		}
	}
	for _, metric := range []string{MetricSavings, MetricGroceries, MetricPet} {
		if _, ok := got.Report[2022][2][metric]; ok {
			t.Errorf("period 2 should not report %s", metric)
		}
	}
}

func TestCalculateUpkeepReportInflation(t *testing.T) {
	halfs := []core.UpkeepHalf{
		half(2009, 1, 2000, 700),
		half(2009, 2, 2000, 700),
		half(2023, 1, 2000, 800),
		half(2023, 2, 2000, 800),
		half(2024, 1, 2000, 880),
		half(2024, 2, 2000, 880),
		half(2026, 1, 2000, 1000),
	}
	opts := DefaultOptions()
	opts.CurrentYear = 2024

	got, err := CalculateUpkeepReport(halfs, opts)
	if err != nil {
		t.Fatalf("CalculateUpkeepReport() error = %v", err)
	}

	if v := got.Inflation[2024][MetricHousing]; !near(v, 10) {
		t.Errorf("2024 housing inflation = %v, want 10", v)
	}
	if v := got.Inflation[2024][MetricIncome]; !near(v, 0) {
		t.Errorf("2024 income inflation = %v, want 0", v)
	}
	if v := got.Inflation[2023][MetricHousing]; v != opts.MissingPrior {
		t.Errorf("2023 without a prior year should report %v, got %v", opts.MissingPrior, v)
	}
	if _, ok := got.Inflation[2009]; ok {
		t.Errorf("floor year must be excluded")
	}
	if _, ok := got.Inflation[2026]; ok {
		t.Errorf("years after the current year are not walked")
	}
	if _, ok := got.Report[2026]; !ok {
		t.Errorf("report keeps every year")
	}
}

func TestCalculateUpkeepReportHalfYearAssumption(t *testing.T) {
	halfs := []core.UpkeepHalf{
		half(2023, 1, 2000, 800),
		half(2023, 2, 2000, 800),
		half(2024, 1, 2000, 800),
	}
	opts := DefaultOptions()
	opts.CurrentYear = 2024

	got, err := CalculateUpkeepReport(halfs, opts)
	if err != nil {
		t.Fatalf("CalculateUpkeepReport() error = %v", err)
	}
	// a single recorded half is still divided by two periods
	if v := got.Inflation[2024][MetricHousing]; !near(v, -50) {
		t.Errorf("2024 housing inflation = %v, want -50", v)
	}
}

func TestCalculateUpkeepReportErrors(t *testing.T) {
	if _, err := CalculateUpkeepReport([]core.UpkeepHalf{half(2024, 1, 0, 0)}, DefaultOptions()); !errors.Is(err, core.ErrMalformedInput) {
		t.Errorf("zero base salary: expected ErrMalformedInput, got %v", err)
	}

	mixed := half(2024, 1, 2000, 0)
	mixed.Housing.Costs["rent"] = core.Money{Amount: 10, Currency: "USD"}
	if _, err := CalculateUpkeepReport([]core.UpkeepHalf{mixed}, DefaultOptions()); !errors.Is(err, core.ErrCurrencyMismatch) {
		t.Errorf("foreign housing cost: expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestMapValuesFollowsKeyOrder(t *testing.T) {
	m := map[string]core.Money{"c": core.Euro(3), "a": core.Euro(1), "b": core.Euro(2)}
	got := mapValues(m)
	want := []core.Money{core.Euro(1), core.Euro(2), core.Euro(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mapValues() = %v, want %v", got, want)
	}
}

func TestCalculateUpkeepReportPetSumIsStable(t *testing.T) {
	h := half(2024, 1, 2000, 800)
	// Float addition is not associative over these, so the total depends
	// on the order the costs are summed in.
	h.Pet = map[string]core.Money{
		"food": core.Euro(1e16), "vet": core.Euro(1), "toys": core.Euro(-1e16),
		"litter": core.Euro(0.1), "insurance": core.Euro(0.2), "grooming": core.Euro(0.3),
	}

	first, err := CalculateUpkeepReport([]core.UpkeepHalf{h}, DefaultOptions())
	if err != nil {
		t.Fatalf("CalculateUpkeepReport() error = %v", err)
	}
	for i := 0; i < 50; i++ {
		got, err := CalculateUpkeepReport([]core.UpkeepHalf{h}, DefaultOptions())
		if err != nil {
			t.Fatalf("CalculateUpkeepReport() error = %v", err)
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got.Report, first.Report)
		}
	}
}
