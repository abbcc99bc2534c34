package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
	"bilancio/internal/sources"
	"bilancio/internal/sources/jsonl"
	"bilancio/internal/sources/memory"
	"bilancio/internal/storage"
)

func fixture() memory.Data {
	return memory.Data{
		Accounts: []core.Account{{ID: "chk", Name: "Main", Type: core.Checking}},
		Activities: []core.Activity{
			{Date: core.NewDate(2024, 5, 2), Source: "ACME", Value: core.Euro(1000), Account: "chk", Category: "Salary"},
			{Date: core.NewDate(2024, 5, 10), Source: "Shop", Value: core.Euro(-50), Account: "chk", Category: "Food"},
		},
		Meters: []core.Meter{
			{ID: "e2", Kind: core.Electricity},
			{ID: "e1", Kind: core.Electricity, Location: "Kitchen"},
		},
		Measurements: []core.MeterMeasurement{
			{Meter: "e1", Date: core.NewDate(2024, 1, 1), Measurement: 100, Billable: true},
			{Meter: "e1", Date: core.NewDate(2024, 2, 1), Measurement: 180, Billable: true},
			{Meter: "e2", Date: core.NewDate(2024, 1, 1), Measurement: 5},
		},
		Prices: []core.MeterPrice{
			{Meter: "e1", Date: core.NewDate(2020, 1, 1), Unit: core.Euro(0.5), Base: core.Euro(0)},
		},
		Upkeep: []core.UpkeepHalf{{Year: 2024, Period: 1, Salary: core.Euro(2000)}},
	}
}

type fakeSnapshots struct {
	snaps []storage.Snapshot
	limit int
}

func (f *fakeSnapshots) Latest(_ context.Context, report, key string) (storage.Snapshot, error) {
	for i := len(f.snaps) - 1; i >= 0; i-- {
		if f.snaps[i].Report == report && f.snaps[i].Key == key {
			return f.snaps[i], nil
		}
	}
	return storage.Snapshot{}, storage.ErrSnapshotNotFound
}

func (f *fakeSnapshots) List(_ context.Context, report string, limit int) ([]storage.Snapshot, error) {
	f.limit = limit
	return f.snaps, nil
}

type fakePublisher struct {
	msgs []*amqp.RecomputeMessage
	err  error
}

func (f *fakePublisher) PublishRecompute(_ context.Context, msg *amqp.RecomputeMessage) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeRecomputer struct {
	msgs []*amqp.RecomputeMessage
	err  error
}

func (f *fakeRecomputer) HandleRecomputeMessage(_ context.Context, msg *amqp.RecomputeMessage) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Reports == nil {
		deps.Reports = services.NewReportService(memory.New(fixture()), services.Options{})
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, r)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Deps{Ready: []Pinger{pinger{}}})
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := do(t, srv, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	down := newTestServer(t, Deps{Ready: []Pinger{pinger{}, pinger{err: errors.New("database is locked")}}})
	if rr := do(t, down, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t, Deps{})
	rr := do(t, srv, http.MethodGet, "/healthz", "")
	if rr.Header().Get(trace.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Deps{})
	if rr := do(t, srv, http.MethodGet, "/metrics", ""); rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
}

func TestMeters(t *testing.T) {
	srv := newTestServer(t, Deps{})
	rr := do(t, srv, http.MethodGet, "/api/meters", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	meters := decode[[]core.Meter](t, rr)
	if len(meters) != 2 || meters[0].ID != "e1" {
		t.Fatalf("expected meters ordered by id, got %+v", meters)
	}
}

func TestCorruptDataIsServerError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "meters.jsonl"), []byte(`{"id":"n1","kind":"nuclear"}`+"\n"), 0o644); err != nil {
		t.Fatalf("write meters: %v", err)
	}
	srv := newTestServer(t, Deps{Reports: services.NewReportService(jsonl.New(dir), services.Options{})})

	rr := do(t, srv, http.MethodGet, "/api/meters", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
	if body := decode[errorResponse](t, rr); body.Error != "internal error" {
		t.Errorf("error = %q, want details hidden", body.Error)
	}

	if got := statusFor(fmt.Errorf("meters.jsonl:1: %w: %w", sources.ErrCorrupt, core.ErrMalformedInput)); got != http.StatusInternalServerError {
		t.Errorf("statusFor(corrupt) = %d, want 500", got)
	}
	if got := statusFor(fmt.Errorf("%w: month 13", core.ErrMalformedInput)); got != http.StatusBadRequest {
		t.Errorf("statusFor(malformed request) = %d, want 400", got)
	}
}

func TestMeterReportStatuses(t *testing.T) {
	srv := newTestServer(t, Deps{})
	tests := []struct {
		path string
		want int
	}{
		{"/api/meters/e1/report", http.StatusOK},
		{"/api/meters/nope/report", http.StatusNotFound},
		{"/api/meters/e2/report", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		rr := do(t, srv, http.MethodGet, tt.path, "")
		if rr.Code != tt.want {
			t.Errorf("%s status=%d, want %d (%s)", tt.path, rr.Code, tt.want, rr.Body.String())
		}
	}

	rr := do(t, srv, http.MethodGet, "/api/meters/e1/report", "")
	report := decode[services.MeterReport](t, rr)
	if len(report.Bills) != 1 || report.Bills[0].Consumption != 80 {
		t.Fatalf("unexpected bills %+v", report.Bills)
	}

	rr = do(t, srv, http.MethodGet, "/api/meters/nope/report", "")
	if body := decode[errorResponse](t, rr); body.RequestID == "" || !strings.Contains(body.Error, "meter not found") {
		t.Errorf("unexpected error body %+v", body)
	}
}

func TestReportEndpoints(t *testing.T) {
	srv := newTestServer(t, Deps{})
	tests := []struct {
		target string
		want   int
	}{
		{"/api/utilities/overview", http.StatusOK},
		{"/api/bookkeeping/monthly?year=2024&month=5", http.StatusOK},
		{"/api/bookkeeping/monthly?year=2024&month=13", http.StatusBadRequest},
		{"/api/bookkeeping/monthly?year=abc", http.StatusBadRequest},
		{"/api/bookkeeping/yearly", http.StatusOK},
		{"/api/bookkeeping/categories?year=2024", http.StatusOK},
		{"/api/bookkeeping/sources?year=2024", http.StatusOK},
		{"/api/bookkeeping/descriptions?year=2024", http.StatusOK},
		{"/api/bookkeeping/categories?year=-1", http.StatusBadRequest},
		{"/api/upkeep", http.StatusOK},
	}
	for _, tt := range tests {
		rr := do(t, srv, http.MethodGet, tt.target, "")
		if rr.Code != tt.want {
			t.Errorf("%s status=%d, want %d (%s)", tt.target, rr.Code, tt.want, rr.Body.String())
		}
	}

	rr := do(t, srv, http.MethodGet, "/api/utilities/overview", "")
	overview := decode[services.UtilityOverview](t, rr)
	if len(overview.Failures) != 1 || overview.Failures[0].Meter != "e2" {
		t.Errorf("expected e2 reported as a failure, got %+v", overview.Failures)
	}
}

func TestRecomputePublishes(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(t, Deps{Publisher: pub, Recomputer: &fakeRecomputer{}})

	rr := do(t, srv, http.MethodPost, "/api/recompute", `{"report":"monthly","year":2024,"month":5}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d (%s)", rr.Code, rr.Body.String())
	}
	resp := decode[recomputeResponse](t, rr)
	if resp.Status != "queued" || resp.Key != "2024-05" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].Month != 5 {
		t.Fatalf("expected one published message, got %+v", pub.msgs)
	}

	pub.err = amqp.ErrCircuitOpen
	if rr := do(t, srv, http.MethodPost, "/api/recompute", `{"report":"upkeep"}`); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("open circuit status=%d, want 503", rr.Code)
	}
}

func TestRecomputeValidation(t *testing.T) {
	srv := newTestServer(t, Deps{Publisher: &fakePublisher{}})
	tests := []struct {
		name string
		body string
	}{
		{"not json", `report=upkeep`},
		{"unknown field", `{"report":"upkeep","extra":1}`},
		{"unknown report", `{"report":"bogus"}`},
		{"meter without id", `{"report":"meter"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, srv, http.MethodPost, "/api/recompute", tt.body); rr.Code != http.StatusBadRequest {
				t.Errorf("status=%d, want 400 (%s)", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRecomputeInPlace(t *testing.T) {
	rec := &fakeRecomputer{}
	srv := newTestServer(t, Deps{Recomputer: rec})

	rr := do(t, srv, http.MethodPost, "/api/recompute", `{"report":"meter","meterId":"e1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d (%s)", rr.Code, rr.Body.String())
	}
	if len(rec.msgs) != 1 || rec.msgs[0].MeterID != "e1" {
		t.Fatalf("expected the recompute to run in place, got %+v", rec.msgs)
	}

	rec.err = errors.Join(amqp.ErrPermanent, &core.MissingPriceError{Meter: "e2"})
	if rr := do(t, srv, http.MethodPost, "/api/recompute", `{"report":"meter","meterId":"e2"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing price status=%d, want 422", rr.Code)
	}

	none := newTestServer(t, Deps{})
	if rr := do(t, none, http.MethodPost, "/api/recompute", `{"report":"upkeep"}`); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured recompute status=%d, want 503", rr.Code)
	}
}

func TestRecomputeRateLimited(t *testing.T) {
	srv := newTestServer(t, Deps{Publisher: &fakePublisher{}, RecomputeLimit: 1})
	if rr := do(t, srv, http.MethodPost, "/api/recompute", `{"report":"upkeep"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("first status=%d", rr.Code)
	}
	rr := do(t, srv, http.MethodPost, "/api/recompute", `{"report":"upkeep"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After")
	}
}

func TestSnapshots(t *testing.T) {
	snaps := &fakeSnapshots{snaps: []storage.Snapshot{
		{ID: 1, Report: services.ReportUtilities, Key: "all", Payload: json.RawMessage(`{"years":{}}`)},
		{ID: 2, Report: services.ReportMonthly, Key: "2024-05", Payload: json.RawMessage(`{}`)},
	}}
	srv := newTestServer(t, Deps{Snapshots: snaps})

	rr := do(t, srv, http.MethodGet, "/api/snapshots/utilities", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if snap := decode[storage.Snapshot](t, rr); snap.ID != 1 || !bytes.Contains(snap.Payload, []byte("years")) {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if rr := do(t, srv, http.MethodGet, "/api/snapshots/monthly?key=2024-05", ""); rr.Code != http.StatusOK {
		t.Errorf("keyed snapshot status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/snapshots/monthly?key=2023-01", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing snapshot status=%d, want 404", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/snapshots/bogus", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown report status=%d, want 400", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/snapshots/monthly/history?limit=1000", "")
	if rr.Code != http.StatusOK || snaps.limit != maxHistory {
		t.Errorf("history status=%d limit=%d", rr.Code, snaps.limit)
	}

	none := newTestServer(t, Deps{})
	if rr := do(t, none, http.MethodGet, "/api/snapshots/utilities", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured snapshots status=%d, want 503", rr.Code)
	}
}

func TestExports(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rr := do(t, srv, http.MethodGet, "/api/exports/meters/e1.xlsx", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != contentTypeXLSX {
		t.Fatalf("xlsx status=%d type=%q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "meter-e1.xlsx") {
		t.Errorf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}

	rr = do(t, srv, http.MethodGet, "/api/exports/meters/e1.pdf", "")
	if rr.Code != http.StatusOK || !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("pdf status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/api/exports/utilities/overview.pdf", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != contentTypePDF {
		t.Fatalf("overview pdf status=%d", rr.Code)
	}

	tests := []struct {
		target string
		want   int
	}{
		{"/api/exports/meters/e1.csv", http.StatusBadRequest},
		{"/api/exports/meters/nope.xlsx", http.StatusNotFound},
		{"/api/exports/meters/e2.pdf", http.StatusUnprocessableEntity},
		{"/api/exports/utilities/other.xlsx", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rr := do(t, srv, http.MethodGet, tt.target, ""); rr.Code != tt.want {
			t.Errorf("%s status=%d, want %d", tt.target, rr.Code, tt.want)
		}
	}
}

func TestSplitExportFile(t *testing.T) {
	name, format, err := splitExportFile("meter.v2.xlsx")
	if err != nil || name != "meter.v2" || format != "xlsx" {
		t.Fatalf("got %q %q %v", name, format, err)
	}
	if _, _, err := splitExportFile(".pdf"); !errors.Is(err, core.ErrEmptyID) {
		t.Errorf("expected ErrEmptyID, got %v", err)
	}
	if _, _, err := splitExportFile("e1"); !errors.Is(err, core.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}
