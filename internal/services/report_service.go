// Package services orchestrates report computation: it loads collections
// from a source, applies the ordering the core packages expect, runs the
// computations and caches their results.
package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/bookkeeping"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/metering"
	"bilancio/internal/metrics"
	"bilancio/internal/sources"
	"bilancio/internal/upkeep"
)

// Report names, shared by cache keys, metrics, snapshots and recompute
// messages.
const (
	ReportMeter        = "meter"
	ReportUtilities    = "utilities"
	ReportMonthly      = "monthly"
	ReportYearly       = "yearly"
	ReportCategories   = "categories"
	ReportSources      = "sources"
	ReportDescriptions = "descriptions"
	ReportUpkeep       = "upkeep"
)

// Reports lists every report Compute accepts.
var Reports = []string{
	ReportMeter, ReportUtilities, ReportMonthly, ReportYearly,
	ReportCategories, ReportSources, ReportDescriptions, ReportUpkeep,
}

const meterConcurrency = 4

var (
	ErrMeterNotFound = errors.New("meter not found")
	ErrUnknownReport = errors.New("unknown report")
)

type (
	// MeterReport is everything derived from one meter.
	MeterReport struct {
		Meter    core.Meter              `json:"meter"`
		Readings []metering.Reading      `json:"readings"`
		Bills    []metering.Bill         `json:"bills"`
		Payments []metering.PaymentGroup `json:"payments"`
	}

	// MeterFailure is a meter left out of an overview.
	MeterFailure struct {
		Meter string `json:"meter"`
		Error string `json:"error"`
	}

	UtilityOverview struct {
		Meters   []MeterReport                `json:"meters"`
		Years    map[int]metering.YearSummary `json:"years"`
		Failures []MeterFailure               `json:"failures"`
	}

	// Request identifies one report computation. Year and Month are used
	// by the bookkeeping reports, MeterID by the meter report.
	Request struct {
		Report  string `json:"report"`
		Year    int    `json:"year,omitempty"`
		Month   int    `json:"month,omitempty"`
		MeterID string `json:"meterId,omitempty"`
	}

	Options struct {
		Buckets bookkeeping.BucketTable
		Upkeep  upkeep.Options
		Cache   cache.Cache[any]
		Logger  *applog.Logger
	}
)

// Key is the cache and snapshot key of the request within its report.
func (r Request) Key() string {
	switch r.Report {
	case ReportMeter:
		return r.MeterID
	case ReportMonthly:
		return fmt.Sprintf("%04d-%02d", r.Year, r.Month)
	case ReportCategories, ReportSources, ReportDescriptions:
		return fmt.Sprintf("%04d", r.Year)
	default:
		return "all"
	}
}

// Validate checks that the request names a known report and carries the
// parameters that report needs.
func (r Request) Validate() error {
	switch r.Report {
	case ReportMeter:
		if r.MeterID == "" {
			return fmt.Errorf("%w: meter report needs a meter id", core.ErrEmptyID)
		}
	case ReportMonthly:
		if r.Month < 1 || r.Month > 12 {
			return fmt.Errorf("%w: month %d out of range", core.ErrMalformedInput, r.Month)
		}
		fallthrough
	case ReportCategories, ReportSources, ReportDescriptions:
		if r.Year <= 0 {
			return fmt.Errorf("%w: report %s needs a year", core.ErrMalformedInput, r.Report)
		}
	case ReportUtilities, ReportYearly, ReportUpkeep:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReport, r.Report)
	}
	return nil
}

// ReportService computes reports from a source. Cached results are shared
// between callers and must not be modified.
type ReportService struct {
	src        sources.Source
	buckets    bookkeeping.BucketTable
	upkeep     upkeep.Options
	cache      cache.Cache[any]
	logger     *applog.Logger
	structured *applog.StructuredLogger
}

func NewReportService(src sources.Source, opts Options) *ReportService {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentReports)
	if opts.Buckets == nil {
		opts.Buckets = bookkeeping.DefaultBuckets()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewLRUCache[any](100, 5*time.Minute)
	}
	return &ReportService{
		src:        src,
		buckets:    opts.Buckets,
		upkeep:     opts.Upkeep,
		cache:      opts.Cache,
		logger:     logger,
		structured: applog.NewStructuredLogger(logger),
	}
}

// Invalidate drops every cached report.
func (s *ReportService) Invalidate() {
	s.cache.Clear()
	s.logger.Debug("Report cache cleared")
}

// Compute runs the report named by r.
func (s *ReportService) Compute(ctx context.Context, r Request) (any, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch r.Report {
	case ReportMeter:
		return s.MeterReport(ctx, r.MeterID)
	case ReportUtilities:
		return s.UtilityOverview(ctx)
	case ReportMonthly:
		return s.MonthlyOverview(ctx, r.Year, r.Month)
	case ReportYearly:
		return s.YearlyOverview(ctx)
	case ReportCategories:
		return s.CategoryOverview(ctx, r.Year)
	case ReportSources:
		return s.CategorySources(ctx, r.Year)
	case ReportDescriptions:
		return s.CategoryDescriptions(ctx, r.Year)
	default:
		return s.UpkeepReport(ctx)
	}
}

// Meters returns every meter ordered by ID.
func (s *ReportService) Meters(ctx context.Context) ([]core.Meter, error) {
	meters, err := s.src.Meters(ctx)
	if err != nil {
		return nil, fmt.Errorf("load meters: %w", err)
	}
	meters = slices.Clone(meters)
	slices.SortStableFunc(meters, func(a, b core.Meter) int { return cmp.Compare(a.ID, b.ID) })
	return meters, nil
}

// MeterReport computes readings, bills and payment groups of one meter.
func (s *ReportService) MeterReport(ctx context.Context, id string) (MeterReport, error) {
	return cached(ctx, s, Request{Report: ReportMeter, MeterID: id}, func(ctx context.Context) (MeterReport, error) {
		meters, err := s.Meters(ctx)
		if err != nil {
			return MeterReport{}, err
		}
		i := slices.IndexFunc(meters, func(m core.Meter) bool { return m.ID == id })
		if i < 0 {
			return MeterReport{}, fmt.Errorf("%w: %s", ErrMeterNotFound, id)
		}
		return s.meterReport(ctx, meters[i])
	})
}

func (s *ReportService) meterReport(ctx context.Context, m core.Meter) (MeterReport, error) {
	var (
		measurements []core.MeterMeasurement
		prices       []core.MeterPrice
		payments     []core.MeterPayment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		measurements, err = s.src.Measurements(gctx, m.ID)
		return err
	})
	g.Go(func() (err error) {
		prices, err = s.src.Prices(gctx, m.ID)
		return err
	})
	g.Go(func() (err error) {
		payments, err = s.src.Payments(gctx, m.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return MeterReport{}, fmt.Errorf("load meter %s: %w", m.ID, err)
	}

	readings, err := metering.Readings(m, metering.SortMeasurements(measurements), metering.SortPrices(prices))
	if err != nil {
		return MeterReport{}, fmt.Errorf("meter %s: %w", m.ID, err)
	}
	groups, err := metering.GroupedPayments(payments)
	if err != nil {
		return MeterReport{}, fmt.Errorf("meter %s payments: %w", m.ID, err)
	}

	bills, err := metering.Bills(m, readings, groups)
	if err != nil {
		return MeterReport{}, err
	}

	return MeterReport{
		Meter:    m,
		Readings: readings,
		Bills:    bills,
		Payments: groups,
	}, nil
}

// UtilityOverview computes every meter and merges the water and heating
// bills into yearly summaries. A meter that fails is reported in Failures
// and does not affect the others. Only the first cold and the first warm
// water meter (by ID) feed the yearly summaries.
func (s *ReportService) UtilityOverview(ctx context.Context) (UtilityOverview, error) {
	return cached(ctx, s, Request{Report: ReportUtilities}, func(ctx context.Context) (UtilityOverview, error) {
		meters, err := s.Meters(ctx)
		if err != nil {
			return UtilityOverview{}, err
		}

		reports := make([]MeterReport, len(meters))
		errs := make([]error, len(meters))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(meterConcurrency)
		for i, m := range meters {
			g.Go(func() error {
				reports[i], errs[i] = s.meterReport(gctx, m)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return UtilityOverview{}, err
		}

		out := UtilityOverview{
			Meters:   make([]MeterReport, 0, len(meters)),
			Failures: []MeterFailure{},
		}
		var cold, warm []metering.Bill
		var coldSeen, warmSeen bool
		heaters := []metering.HeaterBills{}
		for i, m := range meters {
			if errs[i] != nil {
				metrics.IncMeterFailure(errs[i])
				s.logger.WarnContext(ctx, "Meter skipped in utility overview",
					applog.NewFields().WithMeter(m.ID, string(m.Kind)).WithError(errs[i]).ToSlice()...)
				out.Failures = append(out.Failures, MeterFailure{Meter: m.ID, Error: errs[i].Error()})
				continue
			}
			r := reports[i]
			out.Meters = append(out.Meters, r)

			switch m.Kind {
			case core.ColdWater:
				if coldSeen {
					s.logger.WarnContext(ctx, "Extra cold water meter left out of yearly summaries", applog.FieldMeter, m.ID)
					continue
				}
				cold, coldSeen = r.Bills, true
			case core.WarmWater:
				if warmSeen {
					s.logger.WarnContext(ctx, "Extra warm water meter left out of yearly summaries", applog.FieldMeter, m.ID)
					continue
				}
				warm, warmSeen = r.Bills, true
			case core.Heating:
				heaters = append(heaters, metering.HeaterBills{Meter: m, Bills: r.Bills})
			}
		}
		out.Years = metering.YearlyOverview(cold, warm, heaters)
		return out, nil
	})
}

// MonthlyOverview computes balances and totals of month of year.
func (s *ReportService) MonthlyOverview(ctx context.Context, year, month int) (bookkeeping.MonthOverview, error) {
	req := Request{Report: ReportMonthly, Year: year, Month: month}
	return cached(ctx, s, req, func(ctx context.Context) (bookkeeping.MonthOverview, error) {
		var (
			activities []core.Activity
			accounts   []core.Account
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			activities, err = s.src.Activities(gctx)
			return err
		})
		g.Go(func() (err error) {
			accounts, err = s.src.Accounts(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return bookkeeping.MonthOverview{}, fmt.Errorf("load bookkeeping: %w", err)
		}
		return bookkeeping.MonthlyOverview(year, month, activities, accounts)
	})
}

// YearlyOverview returns per-category monthly expense series for every year.
func (s *ReportService) YearlyOverview(ctx context.Context) (map[int]map[string]bookkeeping.ChartSeries, error) {
	return cached(ctx, s, Request{Report: ReportYearly}, func(ctx context.Context) (map[int]map[string]bookkeeping.ChartSeries, error) {
		activities, err := s.activities(ctx)
		if err != nil {
			return nil, err
		}
		return bookkeeping.YearlyOverview(activities), nil
	})
}

// CategoryOverview returns the display series of year. A year without
// expenses yields an empty list.
func (s *ReportService) CategoryOverview(ctx context.Context, year int) ([]bookkeeping.DisplaySeries, error) {
	req := Request{Report: ReportCategories, Year: year}
	return cached(ctx, s, req, func(ctx context.Context) ([]bookkeeping.DisplaySeries, error) {
		yearly, err := s.YearlyOverview(ctx)
		if err != nil {
			return nil, err
		}
		return bookkeeping.CategoryOverview(yearly[year]), nil
	})
}

func (s *ReportService) CategorySources(ctx context.Context, year int) (map[bookkeeping.Bucket]map[string]bookkeeping.ChartSeries, error) {
	req := Request{Report: ReportSources, Year: year}
	return cached(ctx, s, req, func(ctx context.Context) (map[bookkeeping.Bucket]map[string]bookkeeping.ChartSeries, error) {
		activities, err := s.activities(ctx)
		if err != nil {
			return nil, err
		}
		return bookkeeping.CategorySources(activities, year, s.buckets), nil
	})
}

func (s *ReportService) CategoryDescriptions(ctx context.Context, year int) (map[bookkeeping.Bucket]map[string]bookkeeping.ChartSeries, error) {
	req := Request{Report: ReportDescriptions, Year: year}
	return cached(ctx, s, req, func(ctx context.Context) (map[bookkeeping.Bucket]map[string]bookkeeping.ChartSeries, error) {
		activities, err := s.activities(ctx)
		if err != nil {
			return nil, err
		}
		return bookkeeping.CategoryDescriptions(activities, year, s.buckets), nil
	})
}

// UpkeepReport normalizes the upkeep halves ordered by year and period.
func (s *ReportService) UpkeepReport(ctx context.Context) (upkeep.Report, error) {
	return cached(ctx, s, Request{Report: ReportUpkeep}, func(ctx context.Context) (upkeep.Report, error) {
		halves, err := s.src.UpkeepHalves(ctx)
		if err != nil {
			return upkeep.Report{}, fmt.Errorf("load upkeep: %w", err)
		}
		halves = slices.Clone(halves)
		slices.SortStableFunc(halves, func(a, b core.UpkeepHalf) int {
			return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Period, b.Period))
		})
		return upkeep.CalculateUpkeepReport(halves, s.upkeep)
	})
}

func (s *ReportService) activities(ctx context.Context) ([]core.Activity, error) {
	activities, err := s.src.Activities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	return activities, nil
}

// cached returns the cached result of req or computes and stores it.
// Failed computations are not cached.
func cached[T any](ctx context.Context, s *ReportService, req Request, compute func(context.Context) (T, error)) (T, error) {
	key := req.Report + ":" + req.Key()
	if v, ok := s.cache.Get(key); ok {
		if out, ok := v.(T); ok {
			metrics.ObserveCache(true)
			s.structured.LogReportComputed(ctx, req.Report, req.Key(), 0, true)
			return out, nil
		}
	}
	metrics.ObserveCache(false)

	start := time.Now()
	out, err := compute(ctx)
	elapsed := time.Since(start)
	metrics.ObserveReport(req.Report, err, elapsed)
	if err != nil {
		var zero T
		return zero, err
	}
	s.cache.Set(key, out)
	s.structured.LogReportComputed(ctx, req.Report, req.Key(), elapsed, false)
	return out, nil
}
