package handler

import (
	"net/http"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/google/uuid"
)

// defaultSummaryWindow applies when the summary request has no since parameter.
const defaultSummaryWindow = 7 * 24 * time.Hour

// ActivityLogHandler handles API requests related to activity logs
type ActivityLogHandler struct {
	activityLogs *service.ActivityLogService
}

// NewActivityLogHandler creates a new activity log handler
func NewActivityLogHandler(activityLogs *service.ActivityLogService) *ActivityLogHandler {
	return &ActivityLogHandler{activityLogs: activityLogs}
}

// activityLogListInput applies filters from query parameters. Malformed
// values are ignored rather than rejected.
func activityLogListInput(r *http.Request) service.ActivityLogListInput {
	q := r.URL.Query()
	in := service.ActivityLogListInput{
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Search:       q.Get("search"),
		From:         timeParam(r, "from"),
		To:           timeParam(r, "to"),
		Page:         pageParams(r),
	}

	if userID, err := uuid.Parse(q.Get("user_id")); err == nil {
		in.UserID = &userID
	}

	return in
}

// List handles requests to retrieve activity logs with filtering
func (h *ActivityLogHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.activityLogs.List(r.Context(), callerFrom(r), activityLogListInput(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, page)
}

// Get handles requests to retrieve a specific activity log by ID
func (h *ActivityLogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "logID")
	if !ok {
		return
	}

	log, err := h.activityLogs.Get(r.Context(), callerFrom(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, log)
}

// Summary counts entries per action since ?since=, defaulting to a week.
func (h *ActivityLogHandler) Summary(w http.ResponseWriter, r *http.Request) {
	since := timeParam(r, "since")
	if since.IsZero() {
		since = time.Now().UTC().Add(-defaultSummaryWindow)
	}

	summary, err := h.activityLogs.Summary(r.Context(), callerFrom(r), since)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, summary)
}

func (h *ActivityLogHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, ok := exportFormat(w, r)
	if !ok {
		return
	}

	logs, err := h.activityLogs.Export(r.Context(), callerFrom(r), activityLogListInput(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeExport(w, r, "activity-logs", format, logs)
}
