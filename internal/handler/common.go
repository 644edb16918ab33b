package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/middleware"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/dangerclosesec/tenantkit/internal/serializer"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Response is the envelope every API endpoint answers with.
type Response struct {
	Success  bool              `json:"success"`
	Data     interface{}       `json:"data,omitempty"`
	Error    string            `json:"error,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondSuccess(w http.ResponseWriter, code int, data interface{}) {
	respondWithJSON(w, code, Response{Success: true, Data: data})
}

// respondWithError sends an error response with a message
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, Response{Error: message})
}

// handleError maps service errors onto HTTP status codes. Unknown errors are
// logged and reported as 500 without leaking details.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		respondWithJSON(w, http.StatusBadRequest, Response{Error: "Validation failed", Errors: verr.Fields})
		return
	}

	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		respondWithJSON(w, http.StatusUnauthorized, Response{Error: err.Error(), Redirect: "/login"})
		return
	case errors.Is(err, domain.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if code, ok := statusFor(err); ok {
		respondWithError(w, code, err.Error())
		return
	}

	slog.ErrorContext(r.Context(), "Unhandled request error",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"requestID", chimw.GetReqID(r.Context()))
	respondWithError(w, http.StatusInternalServerError, "Internal server error")
}

func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrPasswordTooWeak),
		errors.Is(err, domain.ErrInvalidOrgRole),
		errors.Is(err, domain.ErrCannotInviteOwner),
		errors.Is(err, serializer.ErrUnsupportedFormat):
		return http.StatusBadRequest, true

	case errors.Is(err, domain.ErrAdminRequired),
		errors.Is(err, domain.ErrInsufficientPermissions),
		errors.Is(err, domain.ErrAccountDisabled),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrRegistrationClosed),
		errors.Is(err, domain.ErrEmailMismatch),
		errors.Is(err, domain.ErrSelfModification),
		errors.Is(err, domain.ErrInvalidSetupToken):
		return http.StatusForbidden, true

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrOrganizationNotFound),
		errors.Is(err, domain.ErrMemberNotFound),
		errors.Is(err, domain.ErrInvitationNotFound),
		errors.Is(err, domain.ErrActivityLogNotFound):
		return http.StatusNotFound, true

	case errors.Is(err, domain.ErrInvitationExpired):
		return http.StatusGone, true

	case errors.Is(err, domain.ErrEmailAlreadyExists),
		errors.Is(err, domain.ErrSlugTaken),
		errors.Is(err, domain.ErrAlreadyMember),
		errors.Is(err, domain.ErrInvitationExists),
		errors.Is(err, domain.ErrSoleOwner),
		errors.Is(err, domain.ErrOrganizationFull),
		errors.Is(err, domain.ErrAlreadyBootstrapped),
		errors.Is(err, domain.ErrOrganizationLimit):
		return http.StatusConflict, true

	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, true

	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func callerFrom(r *http.Request) service.Caller {
	return middleware.CallerFrom(r.Context())
}

// uuidParam parses a chi URL parameter, answering 400 when malformed.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads page and page_size; bad values fall back to defaults.
func pageParams(r *http.Request) repository.Page {
	q := r.URL.Query()
	var p repository.Page
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil {
		p.PageSize = n
	}
	return p.Normalize()
}

func boolParam(r *http.Request, name string) *bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &b
}

func timeParam(r *http.Request, name string) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t
	}
	return time.Time{}
}

// writeExport streams rows in the requested format as a download.
func writeExport(w http.ResponseWriter, r *http.Request, base string, format serializer.Format, rows any) {
	s, err := serializer.Lookup(format)
	if err != nil {
		handleError(w, r, err)
		return
	}

	name := serializer.Filename(base, format, time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", s.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if err := s.Encode(rows, w); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write export",
			"error", err,
			"export", base,
			"requestID", chimw.GetReqID(r.Context()))
	}
}

// exportFormat parses ?format= before any data is loaded.
func exportFormat(w http.ResponseWriter, r *http.Request) (serializer.Format, bool) {
	format, err := serializer.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		handleError(w, r, err)
		return "", false
	}
	return format, true
}
