package http

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/export"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

const (
	defaultHistory = 20
	maxHistory     = 100

	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

type recomputeResponse struct {
	Status string `json:"status"`
	Report string `json:"report"`
	Key    string `json:"key"`
}

func (s *Server) handleMeters(w http.ResponseWriter, r *http.Request) {
	meters, err := s.deps.Reports.Meters(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meters)
}

func (s *Server) handleMeterReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reports.MeterReport(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleReport serves one report computed from the request parameters.
func (s *Server) handleReport(report string, parse paramParser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := services.Request{Report: report}
		if err := parse(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		result, err := s.deps.Reports.Compute(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// handleRecompute queues a recompute when a publisher is configured and
// runs it in place otherwise.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	var req services.Request
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	msg := amqp.NewRecomputeMessage(req.Report, req.Year, req.Month, req.MeterID)
	resp := recomputeResponse{Report: req.Report, Key: req.Key()}

	switch {
	case s.deps.Publisher != nil:
		if err := s.deps.Publisher.PublishRecompute(ctx, msg); err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Status = "queued"
		writeJSON(w, http.StatusAccepted, resp)
	case s.deps.Recomputer != nil:
		if err := s.deps.Recomputer.HandleRecomputeMessage(ctx, msg); err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Status = "stored"
		writeJSON(w, http.StatusOK, resp)
	default:
		s.writeError(w, r, fmt.Errorf("recompute: %w", errUnavailable))
		return
	}

	applog.FromContext(ctx).InfoContext(ctx, "Recompute requested",
		applog.FieldReport, resp.Report,
		applog.FieldKey, resp.Key,
		"status", resp.Status)
}

// handleSnapshot returns the newest snapshot of a report. ?key= selects the
// period or meter; reports without parameters use "all".
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	report, ok := s.snapshotReport(w, r)
	if !ok {
		return
	}
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		key = services.Request{Report: report}.Key()
	}

	snap, err := s.deps.Snapshots.Latest(r.Context(), report, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSnapshotHistory(w http.ResponseWriter, r *http.Request) {
	report, ok := s.snapshotReport(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", defaultHistory)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit = min(max(limit, 1), maxHistory)

	snaps, err := s.deps.Snapshots.List(r.Context(), report, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) snapshotReport(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.deps.Snapshots == nil {
		s.writeError(w, r, fmt.Errorf("snapshots: %w", errUnavailable))
		return "", false
	}
	report := r.PathValue("report")
	for _, known := range services.Reports {
		if report == known {
			return report, true
		}
	}
	s.writeError(w, r, fmt.Errorf("%w: %q", services.ErrUnknownReport, report))
	return "", false
}

// handleMeterExport serves /api/exports/meters/{id}.xlsx or .pdf.
func (s *Server) handleMeterExport(w http.ResponseWriter, r *http.Request) {
	id, format, err := splitExportFile(r.PathValue("file"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.deps.Reports.MeterReport(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var data []byte
	if format == export.FormatXLSX {
		data, err = export.BillsXLSX(report.Meter, report.Bills)
	} else {
		data, err = export.BillsPDF(report.Meter, report.Bills)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeFile(w, r, "meter-"+id+"."+format, format, data)
}

// handleOverviewExport serves /api/exports/utilities/overview.xlsx or .pdf.
func (s *Server) handleOverviewExport(w http.ResponseWriter, r *http.Request) {
	name, format, err := splitExportFile(r.PathValue("file"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if name != "overview" {
		http.NotFound(w, r)
		return
	}
	overview, err := s.deps.Reports.UtilityOverview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var data []byte
	if format == export.FormatXLSX {
		data, err = export.OverviewXLSX(overview.Years)
	} else {
		data, err = export.OverviewPDF(overview.Years)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeFile(w, r, "utilities."+format, format, data)
}

// splitExportFile splits "e1.xlsx" into the name and a supported format.
func splitExportFile(file string) (string, string, error) {
	ext := path.Ext(file)
	name := strings.TrimSuffix(file, ext)
	format := strings.TrimPrefix(ext, ".")
	if name == "" {
		return "", "", fmt.Errorf("%w: export needs a name", core.ErrEmptyID)
	}
	if format != export.FormatXLSX && format != export.FormatPDF {
		return "", "", fmt.Errorf("%w: unsupported export format %q", core.ErrMalformedInput, ext)
	}
	return name, format, nil
}

func writeFile(w http.ResponseWriter, r *http.Request, filename, format string, data []byte) {
	contentType := contentTypePDF
	if format == export.FormatXLSX {
		contentType = contentTypeXLSX
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Export download interrupted",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	}
}
