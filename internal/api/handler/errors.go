package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/chronoguard/internal/api/middleware"
	"github.com/kiranshivaraju/chronoguard/internal/api/response"
	"github.com/kiranshivaraju/chronoguard/internal/apikey"
	"github.com/kiranshivaraju/chronoguard/internal/appointment"
	"github.com/kiranshivaraju/chronoguard/internal/quota"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/internal/subscription"
)

const maxBodyBytes = 1 << 20

// writeError maps a domain error onto the error envelope. Anything unrecognised is
// logged and reported as a 500 without leaking its text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *appointment.ValidationError
	switch {
	case errors.As(err, &ve):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", ve.Error(),
			map[string]string{ve.Field: ve.Message})
	case errors.Is(err, quota.ErrQuotaExceeded):
		response.Error(w, http.StatusPaymentRequired, "QUOTA_EXCEEDED",
			"Plan limit reached. Upgrade your plan to continue.", map[string]string{"reason": err.Error()})
	case errors.Is(err, subscription.ErrSubscriptionExpired):
		response.Error(w, http.StatusForbidden, "SUBSCRIPTION_EXPIRED",
			"Subscription is not active. Upgrade to continue.", nil)
	case errors.Is(err, subscription.ErrUnknownPlan):
		response.Error(w, http.StatusBadRequest, "UNKNOWN_PLAN", err.Error(), nil)
	case errors.Is(err, subscription.ErrInvalidSettings), errors.Is(err, apikey.ErrInvalidScope):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, subscription.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		response.Error(w, http.StatusConflict, "INVALID_STATUS_TRANSITION", err.Error(), nil)
	case errors.Is(err, appointment.ErrNotRefreshable):
		response.Error(w, http.StatusConflict, "NOT_REFRESHABLE", err.Error(), nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "DUPLICATE", "Resource already exists", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
	return false
}

func tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
	}
	return id, ok
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", param+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
