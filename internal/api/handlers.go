package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/odnarb/bigfoot-map/internal/dal"
	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/odnarb/bigfoot-map/internal/service"
	"github.com/rs/zerolog/log"
)

// ReportHandlers serves the /api/reports endpoints.
type ReportHandlers struct {
	reports *service.ReportService
}

// NewReportHandlers creates a new ReportHandlers instance
func NewReportHandlers(reports *service.ReportService) *ReportHandlers {
	return &ReportHandlers{reports: reports}
}

// VoteRequest is the body of a vote.
type VoteRequest struct {
	Direction string `json:"direction"`
}

// ListReportsHandler handles GET /api/reports
func (h *ReportHandlers) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.FetchReports(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

// SummaryHandler handles GET /api/reports/summary
func (h *ReportHandlers) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.SummarizeReports(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

// GetReportHandler handles GET /api/reports/{id}
func (h *ReportHandlers) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.GetReport(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

// CreateReportHandler handles POST /api/reports
func (h *ReportHandlers) CreateReportHandler(w http.ResponseWriter, r *http.Request) {
	var input service.SubmissionInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.reports.CreateSubmission(r.Context(), input, requestUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"report": created})
}

// VoteHandler handles POST /api/reports/{id}/vote
func (h *ReportHandlers) VoteHandler(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	votes, err := h.reports.VoteOnReport(r.Context(), mux.Vars(r)["id"], req.Direction, requestUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"votes": votes})
}

// TriageHandler handles PATCH /api/reports/{id}/triage
func (h *ReportHandlers) TriageHandler(w http.ResponseWriter, r *http.Request) {
	var patch service.TriagePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	triage, err := h.reports.UpdateTriage(r.Context(), mux.Vars(r)["id"], patch, requestUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triage": triage})
}

// ExportHandler handles GET /api/reports/export
func (h *ReportHandlers) ExportHandler(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = service.FormatGeoJSON
	}

	payload, err := h.reports.ExportReports(r.Context(), r.URL.Query(), format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", payload.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", payload.FileName))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload.Body); err != nil {
		log.Error().Err(err).Str("fileName", payload.FileName).Msg("Failed to write export body")
	}
}

// DeleteReportHandler handles DELETE /api/reports/{id}
func (h *ReportHandlers) DeleteReportHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	removed, err := h.reports.RemoveReport(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, safeerr.NotFound(dal.CodeNotFound, dal.MsgNotFound, map[string]any{"reportId": id}))
		return
	}

	user, _ := UserFromContext(r.Context())
	log.Info().
		Str("reportId", id).
		Str("userId", user.UserID).
		Msg("Report removed")
	w.WriteHeader(http.StatusNoContent)
}
