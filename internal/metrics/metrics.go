// Package metrics exposes Prometheus collectors for report computation,
// exports and the recompute queue.
package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bilancio/internal/core"
)

const (
	metricPrefix = "bilancio_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	reportTotal   *prometheus.CounterVec
	reportLatency *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec

	meterFailures *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	recomputeTotal *prometheus.CounterVec

	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	httpRejections *prometheus.CounterVec
)

// Init registers the collectors on the default registry. Calling it more
// than once is a no-op.
func Init() {
	registerOnce.Do(func() {
		reportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_total",
				Help: "Total report computations by report and result",
			},
			[]string{"report", "result"},
		)
		reportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_latency_seconds",
				Help:    "Report computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report"},
		)
		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_cache_lookups_total",
				Help: "Report cache lookups by outcome",
			},
			[]string{"outcome"},
		)
		meterFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "meter_failures_total",
				Help: "Meters skipped in an overview by reason",
			},
			[]string{"reason"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)
		recomputeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "recompute_messages_total",
				Help: "Recompute messages handled by the worker by result",
			},
			[]string{"report", "result"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method and status class",
			},
			[]string{"method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)
		httpRejections = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_rejected_total",
				Help: "Requests flagged or rejected by the security middleware",
			},
			[]string{"reason"},
		)

		prometheus.MustRegister(
			reportTotal,
			reportLatency,
			cacheLookups,
			meterFailures,
			exportTotal,
			exportLatency,
			recomputeTotal,
			httpRequests,
			httpLatency,
			httpRejections,
		)
	})
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// ObserveReport records one report computation.
func ObserveReport(report string, err error, duration time.Duration) {
	if reportTotal != nil {
		reportTotal.WithLabelValues(report, Result(err)).Inc()
	}
	if reportLatency != nil {
		reportLatency.WithLabelValues(report).Observe(duration.Seconds())
	}
}

// ObserveCache counts a cache hit or miss.
func ObserveCache(hit bool) {
	if cacheLookups == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookups.WithLabelValues(outcome).Inc()
}

// IncMeterFailure counts a meter left out of an overview.
func IncMeterFailure(err error) {
	if meterFailures == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, core.ErrMissingPrice):
		reason = "missing_price"
	case errors.Is(err, core.ErrUnknownMeterKind):
		reason = "unknown_kind"
	case errors.Is(err, core.ErrCurrencyMismatch):
		reason = "currency_mismatch"
	}
	meterFailures.WithLabelValues(reason).Inc()
}

// ObserveExport records export latency and result.
func ObserveExport(format string, err error, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, Result(err)).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(duration.Seconds())
	}
}

// IncRecompute counts a handled recompute message.
func IncRecompute(report string, err error) {
	if recomputeTotal != nil {
		recomputeTotal.WithLabelValues(report, Result(err)).Inc()
	}
}

// ObserveHTTP records one served request. Statuses are grouped by class.
func ObserveHTTP(method string, status int, duration time.Duration) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, fmt.Sprintf("%dxx", status/100)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method).Observe(duration.Seconds())
	}
}

// IncRejected counts a request that was rate limited or flagged as
// suspicious.
func IncRejected(reason string) {
	if httpRejections != nil {
		httpRejections.WithLabelValues(reason).Inc()
	}
}
