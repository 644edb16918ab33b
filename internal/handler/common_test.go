package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrAdminRequired, http.StatusForbidden},
		{domain.ErrInsufficientPermissions, http.StatusForbidden},
		{domain.ErrAccountDisabled, http.StatusForbidden},
		{domain.ErrEmailMismatch, http.StatusForbidden},
		{fmt.Errorf("loading org: %w", domain.ErrOrganizationNotFound), http.StatusNotFound},
		{domain.ErrInvitationNotFound, http.StatusNotFound},
		{domain.ErrInvitationExpired, http.StatusGone},
		{domain.ErrAlreadyMember, http.StatusConflict},
		{domain.ErrSoleOwner, http.StatusConflict},
		{domain.ErrSlugTaken, http.StatusConflict},
		{domain.ErrPasswordTooWeak, http.StatusBadRequest},
		{serializer.ErrUnsupportedFormat, http.StatusBadRequest},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrNotConfigured, http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			handleError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.want, rr.Code)

			var body Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestHandleErrorHidesInternalDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	handleError(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "pq:")
}

func TestHandleErrorValidation(t *testing.T) {
	rr := httptest.NewRecorder()
	err := fmt.Errorf("creating user: %w", domain.NewValidationError(map[string]string{"email": "must be a valid email"}))
	handleError(rr, httptest.NewRequest(http.MethodPost, "/", nil), err)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"Validation failed","errors":{"email":"must be a valid email"}}`, rr.Body.String())
}

func TestHandleErrorUnauthenticatedRedirect(t *testing.T) {
	rr := httptest.NewRecorder()
	handleError(rr, httptest.NewRequest(http.MethodGet, "/", nil), domain.ErrUnauthenticated)

	var body Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "/login", body.Redirect)
}

func TestPageParams(t *testing.T) {
	p := pageParams(httptest.NewRequest(http.MethodGet, "/?page=3&page_size=10", nil))
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 10, p.PageSize)

	p = pageParams(httptest.NewRequest(http.MethodGet, "/?page=abc", nil))
	assert.Equal(t, 1, p.Page)
	assert.Positive(t, p.PageSize)
}

func TestHealthChecker(t *testing.T) {
	t.Run("optional failure degrades", func(t *testing.T) {
		h := NewHealthChecker("test").
			Require("database", func(context.Context) error { return nil }).
			Optional("redis", func(context.Context) error { return errors.New("connection refused") })

		rr := httptest.NewRecorder()
		h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, "connection refused", status.Dependencies["redis"].Message)
	})

	t.Run("required failure is unhealthy", func(t *testing.T) {
		h := NewHealthChecker("test").
			Require("database", func(context.Context) error { return errors.New("timeout") })

		rr := httptest.NewRecorder()
		h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
