// Package worker recomputes reports on request and stores their snapshots.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/metrics"
	"bilancio/internal/services"
	"bilancio/internal/sources"
	"bilancio/internal/storage"
)

// ReportComputer runs one report computation.
type ReportComputer interface {
	Compute(ctx context.Context, req services.Request) (any, error)
	Invalidate()
}

type SnapshotStore interface {
	Save(ctx context.Context, report, key string, result any) (storage.Snapshot, error)
	Prune(ctx context.Context, age time.Duration) (int64, error)
}

// StartupReports are recomputed when the worker starts.
var StartupReports = []services.Request{
	{Report: services.ReportUtilities},
	{Report: services.ReportYearly},
	{Report: services.ReportUpkeep},
}

// RecomputeWorker turns recompute messages into stored snapshots.
type RecomputeWorker struct {
	reports ReportComputer
	store   SnapshotStore
	logger  *applog.Logger
}

func NewRecomputeWorker(reports ReportComputer, store SnapshotStore, logger *applog.Logger) *RecomputeWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &RecomputeWorker{
		reports: reports,
		store:   store,
		logger:  logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleRecomputeMessage recomputes the requested report from fresh data
// and saves it. Requests that can never succeed wrap amqp.ErrPermanent so
// they are not redelivered.
func (w *RecomputeWorker) HandleRecomputeMessage(ctx context.Context, msg *amqp.RecomputeMessage) error {
	req := services.Request{
		Report:  msg.Report,
		Year:    msg.Year,
		Month:   msg.Month,
		MeterID: msg.MeterID,
	}

	w.logger.InfoContext(ctx, "Processing recompute message",
		applog.FieldReport, req.Report,
		applog.FieldKey, req.Key(),
		"queued_at", msg.Timestamp)

	w.reports.Invalidate()
	_, err := w.recompute(ctx, req)
	metrics.IncRecompute(req.Report, err)
	return err
}

// StartupRecompute refreshes the snapshots of StartupReports. Failures
// are logged and do not stop the others.
func (w *RecomputeWorker) StartupRecompute(ctx context.Context) error {
	w.reports.Invalidate()

	saved, failed := 0, 0
	for _, req := range StartupReports {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := w.recompute(ctx, req); err != nil {
			w.logger.ErrorContext(ctx, "Startup recompute failed",
				applog.FieldReport, req.Report,
				applog.FieldError, err)
			failed++
			continue
		}
		saved++
	}

	w.logger.InfoContext(ctx, "Startup recompute completed",
		"total", len(StartupReports),
		"saved", saved,
		"errors", failed)
	return nil
}

// PruneSnapshots removes snapshots older than age.
func (w *RecomputeWorker) PruneSnapshots(ctx context.Context, age time.Duration) error {
	n, err := w.store.Prune(ctx, age)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	w.logger.DebugContext(ctx, "Snapshot pruning done", applog.FieldCount, n)
	return nil
}

func (w *RecomputeWorker) recompute(ctx context.Context, req services.Request) (storage.Snapshot, error) {
	if err := req.Validate(); err != nil {
		return storage.Snapshot{}, fmt.Errorf("%w: %w", amqp.ErrPermanent, err)
	}

	result, err := w.reports.Compute(ctx, req)
	if err != nil {
		if permanent(err) {
			return storage.Snapshot{}, fmt.Errorf("%w: compute %s: %w", amqp.ErrPermanent, req.Report, err)
		}
		return storage.Snapshot{}, fmt.Errorf("compute %s: %w", req.Report, err)
	}

	snap, err := w.store.Save(ctx, req.Report, req.Key(), result)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}

	w.logger.InfoContext(ctx, "Report snapshot stored",
		applog.FieldReport, req.Report,
		applog.FieldKey, req.Key(),
		"snapshot_id", snap.ID)
	return snap, nil
}

// permanent reports whether recomputing with the same data fails again.
func permanent(err error) bool {
	return errors.Is(err, services.ErrMeterNotFound) ||
		errors.Is(err, services.ErrUnknownReport) ||
		errors.Is(err, core.ErrMissingPrice) ||
		errors.Is(err, core.ErrMalformedInput) ||
		errors.Is(err, core.ErrCurrencyMismatch) ||
		errors.Is(err, core.ErrUnknownMeterKind) ||
		errors.Is(err, sources.ErrCorrupt)
}
