package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kiranshivaraju/chronoguard/internal/apikey"
	"github.com/kiranshivaraju/chronoguard/internal/appointment"
	"github.com/kiranshivaraju/chronoguard/internal/quota"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/internal/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code, env.Error.Message
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &appointment.ValidationError{Field: "scheduled_time", Message: "is required"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"quota", fmt.Errorf("%w: appointment limit of 100 reached", quota.ErrQuotaExceeded), http.StatusPaymentRequired, "QUOTA_EXCEEDED"},
		{"expired", fmt.Errorf("%w: tenant is expired", subscription.ErrSubscriptionExpired), http.StatusForbidden, "SUBSCRIPTION_EXPIRED"},
		{"unknown plan", fmt.Errorf("%w: %q", subscription.ErrUnknownPlan, "gold"), http.StatusBadRequest, "UNKNOWN_PLAN"},
		{"settings", fmt.Errorf("%w: bad timezone", subscription.ErrInvalidSettings), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"scope", fmt.Errorf("%w: %q", apikey.ErrInvalidScope, "root"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"subscription transition", fmt.Errorf("%w: trial -> cancelled", subscription.ErrInvalidTransition), http.StatusConflict, "INVALID_TRANSITION"},
		{"status transition", fmt.Errorf("%w: completed to cancelled", appointment.ErrInvalidStatusTransition), http.StatusConflict, "INVALID_STATUS_TRANSITION"},
		{"not refreshable", appointment.ErrNotRefreshable, http.StatusConflict, "NOT_REFRESHABLE"},
		{"not found", fmt.Errorf("loading appointment: %w", store.ErrNotFound), http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"duplicate", fmt.Errorf("creating patient: %w", store.ErrDuplicateKey), http.StatusConflict, "DUPLICATE"},
		{"internal", fmt.Errorf("%w: %w", appointment.ErrInternal, errors.New("disk full")), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest("GET", "/", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			code, _ := errorCode(t, rec)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestWriteError_InternalDetailsHidden(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest("GET", "/", nil), errors.New("pq: password authentication failed"))

	_, msg := errorCode(t, rec)
	assert.NotContains(t, msg, "password")
}

func TestDecode_EmptyBodyAllowed(t *testing.T) {
	var v struct{ Name string }
	rec := httptest.NewRecorder()
	ok := decode(rec, httptest.NewRequest("POST", "/", nil), &v)
	assert.True(t, ok)
	assert.Empty(t, v.Name)
}

func TestDecode_RejectsOversizedBody(t *testing.T) {
	var v struct{ Name string }
	body := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	ok := decode(rec, httptest.NewRequest("POST", "/", strings.NewReader(body)), &v)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
