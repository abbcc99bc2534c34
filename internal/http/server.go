// Package http serves reports, snapshots and exports as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

// Ports used by the handlers.
type (
	// Reports computes reports on demand.
	Reports interface {
		Compute(ctx context.Context, req services.Request) (any, error)
		Meters(ctx context.Context) ([]core.Meter, error)
		MeterReport(ctx context.Context, id string) (services.MeterReport, error)
		UtilityOverview(ctx context.Context) (services.UtilityOverview, error)
	}

	SnapshotReader interface {
		Latest(ctx context.Context, report, key string) (storage.Snapshot, error)
		List(ctx context.Context, report string, limit int) ([]storage.Snapshot, error)
	}

	// Recomputer queues a recompute request or runs it in place.
	Recomputer interface {
		HandleRecomputeMessage(ctx context.Context, msg *amqp.RecomputeMessage) error
	}

	Publisher interface {
		PublishRecompute(ctx context.Context, msg *amqp.RecomputeMessage) error
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Deps are the collaborators of the server. Only Reports is required.
type Deps struct {
	Reports   Reports
	Snapshots SnapshotReader
	// Publisher queues recompute requests for the worker. Without one,
	// Recomputer runs them synchronously.
	Publisher  Publisher
	Recomputer Recomputer
	// Ready is checked by /readyz.
	Ready  []Pinger
	Logger *applog.Logger
	// RecomputeLimit caps POST /api/recompute per client per minute.
	RecomputeLimit int
}

type Server struct {
	http.Server
	deps     Deps
	logger   *applog.Logger
	detector *security.Detector
	limiter  *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Discard()
	}

	s := &Server{
		deps:     deps,
		logger:   logger.WithComponent(applog.ComponentHTTP),
		detector: security.NewDetector(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			Requests: deps.RecomputeLimit,
			Window:   time.Minute,
		}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/meters", s.handleMeters)
	mux.HandleFunc("GET /api/meters/{id}/report", s.handleMeterReport)
	mux.HandleFunc("GET /api/utilities/overview", s.handleReport(services.ReportUtilities, noParams))
	mux.HandleFunc("GET /api/bookkeeping/monthly", s.handleReport(services.ReportMonthly, yearMonthParams))
	mux.HandleFunc("GET /api/bookkeeping/yearly", s.handleReport(services.ReportYearly, noParams))
	mux.HandleFunc("GET /api/bookkeeping/categories", s.handleReport(services.ReportCategories, yearParams))
	mux.HandleFunc("GET /api/bookkeeping/sources", s.handleReport(services.ReportSources, yearParams))
	mux.HandleFunc("GET /api/bookkeeping/descriptions", s.handleReport(services.ReportDescriptions, yearParams))
	mux.HandleFunc("GET /api/upkeep", s.handleReport(services.ReportUpkeep, noParams))

	recompute := s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited)
	mux.Handle("POST /api/recompute", recompute(http.HandlerFunc(s.handleRecompute)))

	mux.HandleFunc("GET /api/snapshots/{report}", s.handleSnapshot)
	mux.HandleFunc("GET /api/snapshots/{report}/history", s.handleSnapshotHistory)
	mux.HandleFunc("GET /api/exports/meters/{file}", s.handleMeterExport)
	mux.HandleFunc("GET /api/exports/utilities/{file}", s.handleOverviewExport)

	var handler http.Handler = mux
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(logger)(handler)
	handler = trace.NewMiddleware(s.detector.ExtractClientIP, logger).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, p := range s.deps.Ready {
		if err := p.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
