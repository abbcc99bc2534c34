package services

import (
	"context"
	"errors"
	"testing"

	"bilancio/internal/bookkeeping"
	"bilancio/internal/core"
	"bilancio/internal/sources"
	"bilancio/internal/sources/memory"
	"bilancio/internal/upkeep"
)

func fixture() memory.Data {
	return memory.Data{
		Accounts: []core.Account{{ID: "chk", Name: "Main", Type: core.Checking}},
		Activities: []core.Activity{
			{Date: core.NewDate(2024, 5, 2), Source: "ACME", Value: core.Euro(1000), Account: "chk", Category: "Salary"},
			{Date: core.NewDate(2024, 5, 10), Source: "Shop", Description: "weekly", Value: core.Euro(-50), Account: "chk", Category: "Food"},
		},
		Meters: []core.Meter{
			{ID: "e2", Kind: core.Electricity},
			{ID: "e1", Kind: core.Electricity},
			{ID: "c1", Kind: core.ColdWater, Area: 1},
		},
		// Unsorted on purpose.
		Measurements: []core.MeterMeasurement{
			{Meter: "e1", Date: core.NewDate(2024, 2, 1), Measurement: 180, Billable: true},
			{Meter: "e1", Date: core.NewDate(2024, 1, 1), Measurement: 100, Billable: true},
			{Meter: "e2", Date: core.NewDate(2024, 1, 1), Measurement: 5},
			{Meter: "c1", Date: core.NewDate(2023, 1, 1), Measurement: 10},
			{Meter: "c1", Date: core.NewDate(2023, 12, 31), Measurement: 30, Billable: true},
		},
		Prices: []core.MeterPrice{
			{Meter: "e1", Date: core.NewDate(2020, 1, 1), Unit: core.Euro(0.5), Base: core.Euro(0)},
			{Meter: "e1", Date: core.NewDate(2024, 1, 15), Unit: core.Euro(1), Base: core.Euro(0)},
			{Meter: "c1", Date: core.NewDate(2023, 1, 1), Unit: core.Euro(2), Base: core.Euro(5)},
		},
		Payments: []core.MeterPayment{
			{Meter: "e1", Date: core.NewDate(2024, 1, 20), Value: core.Euro(60), Bill: "B1"},
			{Meter: "e1", Date: core.NewDate(2024, 2, 3), Value: core.Euro(50), Bill: "B1"},
		},
		Upkeep: []core.UpkeepHalf{
			{Year: 2024, Period: 1, Salary: core.Euro(2000)},
			{Year: 2023, Period: 2, Salary: core.Euro(1000)},
		},
	}
}

func newService(t *testing.T) (*ReportService, *memory.Store) {
	t.Helper()
	store := memory.New(fixture())
	return NewReportService(store, Options{}), store
}

func TestMeterReportSortsInputs(t *testing.T) {
	svc, _ := newService(t)
	r, err := svc.MeterReport(context.Background(), "e1")
	if err != nil {
		t.Fatalf("MeterReport() error = %v", err)
	}
	if len(r.Readings) != 2 || r.Readings[1].Consumption != 80 {
		t.Fatalf("expected ascending readings with delta 80, got %+v", r.Readings)
	}
	if len(r.Bills) != 1 {
		t.Fatalf("expected 1 bill, got %d", len(r.Bills))
	}
	// The newest tariff applies to the February reading.
	if got := r.Bills[0].Cost.Unit.Amount; got != 80 {
		t.Errorf("unit cost = %v, want 80", got)
	}
	if r.Bills[0].Payments == nil || r.Bills[0].Payments.Sum.Amount != 110 {
		t.Errorf("expected payment group B1 with sum 110, got %+v", r.Bills[0].Payments)
	}
}

func TestMeterReportNotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.MeterReport(context.Background(), "nope")
	if !errors.Is(err, ErrMeterNotFound) {
		t.Fatalf("expected ErrMeterNotFound, got %v", err)
	}
}

func TestMeterReportMissingPrice(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.MeterReport(context.Background(), "e2")
	if !errors.Is(err, core.ErrMissingPrice) {
		t.Fatalf("expected ErrMissingPrice, got %v", err)
	}
}

func TestUtilityOverviewIsolatesFailures(t *testing.T) {
	svc, _ := newService(t)
	out, err := svc.UtilityOverview(context.Background())
	if err != nil {
		t.Fatalf("UtilityOverview() error = %v", err)
	}
	if len(out.Failures) != 1 || out.Failures[0].Meter != "e2" {
		t.Fatalf("expected e2 to fail, got %+v", out.Failures)
	}
	if len(out.Meters) != 2 || out.Meters[0].Meter.ID != "c1" || out.Meters[1].Meter.ID != "e1" {
		t.Fatalf("expected c1 and e1 ordered by id, got %+v", out.Meters)
	}
	y, ok := out.Years[2023]
	if !ok || y.Cold == nil {
		t.Fatalf("expected a 2023 summary with a cold bill, got %+v", out.Years)
	}
	if y.Cost.Total.Amount != 45 {
		t.Errorf("2023 total = %v, want 45", y.Cost.Total.Amount)
	}
}

func TestCacheAndInvalidate(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	first, err := svc.MeterReport(ctx, "e1")
	if err != nil {
		t.Fatalf("MeterReport() error = %v", err)
	}
	err = store.Append(ctx, sources.Measurements, core.MeterMeasurement{
		Meter: "e1", Date: core.NewDate(2024, 3, 1), Measurement: 200, Billable: true,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	cached, _ := svc.MeterReport(ctx, "e1")
	if len(cached.Readings) != len(first.Readings) {
		t.Fatalf("expected cached report, got %d readings", len(cached.Readings))
	}

	svc.Invalidate()
	fresh, _ := svc.MeterReport(ctx, "e1")
	if len(fresh.Readings) != 3 {
		t.Fatalf("expected recomputed report with 3 readings, got %d", len(fresh.Readings))
	}
}

func TestBookkeepingReports(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	month, err := svc.MonthlyOverview(ctx, 2024, 5)
	if err != nil {
		t.Fatalf("MonthlyOverview() error = %v", err)
	}
	if month.Total.Income.Amount != 1000 || month.Total.Expenses.Amount != 50 {
		t.Errorf("unexpected totals %+v", month.Total)
	}
	if got := month.Current[core.Checking].Amount; got != 950 {
		t.Errorf("current checking = %v, want 950", got)
	}

	if _, err := svc.MonthlyOverview(ctx, 2024, 13); !errors.Is(err, core.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput for month 13, got %v", err)
	}

	yearly, err := svc.YearlyOverview(ctx)
	if err != nil {
		t.Fatalf("YearlyOverview() error = %v", err)
	}
	if got := yearly[2024]["Food"].Data[4]; got != 50 {
		t.Errorf("Food May = %v, want 50", got)
	}

	cats, err := svc.CategoryOverview(ctx, 2024)
	if err != nil || len(cats) != 1 || cats[0].Label != "Food" {
		t.Fatalf("unexpected category overview %+v err=%v", cats, err)
	}
	if empty, _ := svc.CategoryOverview(ctx, 1999); len(empty) != 0 {
		t.Errorf("expected no series for 1999, got %+v", empty)
	}

	src, err := svc.CategorySources(ctx, 2024)
	if err != nil {
		t.Fatalf("CategorySources() error = %v", err)
	}
	if _, ok := src[bookkeeping.BucketDisposable]["Shop"]; !ok {
		t.Errorf("expected Shop under Disposable, got %+v", src)
	}

	desc, err := svc.CategoryDescriptions(ctx, 2024)
	if err != nil {
		t.Fatalf("CategoryDescriptions() error = %v", err)
	}
	if _, ok := desc[bookkeeping.BucketDisposable]["weekly"]; !ok {
		t.Errorf("expected weekly under Disposable, got %+v", desc)
	}
}

func TestUpkeepReportSortsHalves(t *testing.T) {
	svc, _ := newService(t)
	r, err := svc.UpkeepReport(context.Background())
	if err != nil {
		t.Fatalf("UpkeepReport() error = %v", err)
	}
	if r.Base == nil || r.Base.Amount != 1000 {
		t.Fatalf("expected base from 2023/2, got %+v", r.Base)
	}
	if got := r.Report[2024][1][upkeep.MetricIncome]; got != 2 {
		t.Errorf("2024/1 income = %v, want 2", got)
	}
}

func TestRequest(t *testing.T) {
	tests := []struct {
		req     Request
		key     string
		wantErr error
	}{
		{Request{Report: ReportMeter, MeterID: "e1"}, "e1", nil},
		{Request{Report: ReportMeter}, "", core.ErrEmptyID},
		{Request{Report: ReportMonthly, Year: 2024, Month: 3}, "2024-03", nil},
		{Request{Report: ReportMonthly, Year: 2024}, "2024-00", core.ErrMalformedInput},
		{Request{Report: ReportSources, Year: 2024}, "2024", nil},
		{Request{Report: ReportCategories}, "0000", core.ErrMalformedInput},
		{Request{Report: ReportUpkeep}, "all", nil},
		{Request{Report: "bogus"}, "all", ErrUnknownReport},
	}
	for _, tt := range tests {
		if got := tt.req.Key(); got != tt.key {
			t.Errorf("%+v Key() = %q, want %q", tt.req, got, tt.key)
		}
		err := tt.req.Validate()
		if tt.wantErr == nil && err != nil {
			t.Errorf("%+v Validate() error = %v", tt.req, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%+v Validate() error = %v, want %v", tt.req, err, tt.wantErr)
		}
	}
}

func TestCompute(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	out, err := svc.Compute(ctx, Request{Report: ReportMeter, MeterID: "e1"})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if _, ok := out.(MeterReport); !ok {
		t.Fatalf("expected MeterReport, got %T", out)
	}
	for _, report := range Reports {
		req := Request{Report: report, Year: 2024, Month: 5, MeterID: "e1"}
		if _, err := svc.Compute(ctx, req); err != nil {
			t.Errorf("Compute(%s) error = %v", report, err)
		}
	}
	if _, err := svc.Compute(ctx, Request{Report: "bogus"}); !errors.Is(err, ErrUnknownReport) {
		t.Errorf("expected ErrUnknownReport, got %v", err)
	}
}
