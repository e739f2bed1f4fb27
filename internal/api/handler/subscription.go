package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/api/response"
	"github.com/kiranshivaraju/chronoguard/internal/apikey"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/internal/subscription"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// Subscriptions is the subscription lifecycle the handlers drive.
type Subscriptions interface {
	Register(ctx context.Context, name, timezone string, now time.Time) (*models.Tenant, error)
	Resolve(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Tenant, error)
	Upgrade(ctx context.Context, tenantID uuid.UUID, planName string, now time.Time) (*models.Tenant, error)
	Cancel(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Tenant, error)
	Reactivate(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Tenant, error)
	UpdateSettings(ctx context.Context, tenantID uuid.UUID, set store.TenantSettings) (*models.Tenant, error)
	Discard(ctx context.Context, tenantID uuid.UUID) error
}

// UsageReader reports quota consumption.
type UsageReader interface {
	Usage(ctx context.Context, tenant *models.Tenant, kind models.ResourceKind, at time.Time) (models.QuotaUsage, error)
}

// KeyIssuer creates API keys.
type KeyIssuer interface {
	Issue(ctx context.Context, tenantID uuid.UUID, name string, scopes []string, now time.Time) (string, *models.APIKey, error)
}

type subscriptionView struct {
	TenantID            uuid.UUID          `json:"tenant_id"`
	Practice            string             `json:"practice"`
	Status              string             `json:"status"`
	Plan                models.Plan        `json:"plan"`
	TrialEnd            time.Time          `json:"trial_end"`
	TrialDaysLeft       int                `json:"trial_days_left"`
	ActivatedAt         *time.Time         `json:"activated_at,omitempty"`
	CancelledAt         *time.Time         `json:"cancelled_at,omitempty"`
	Timezone            string             `json:"timezone"`
	BaselineNoShowRate  *float64           `json:"baseline_no_show_rate,omitempty"`
	AvgAppointmentValue *float64           `json:"avg_appointment_value,omitempty"`
	Usage               *subscriptionUsage `json:"usage,omitempty"`
}

type subscriptionUsage struct {
	Providers    models.QuotaUsage `json:"providers"`
	Appointments models.QuotaUsage `json:"appointments"`
}

func newSubscriptionView(t *models.Tenant, now time.Time) (subscriptionView, error) {
	plan, err := subscription.Limits(t)
	if err != nil {
		return subscriptionView{}, err
	}
	return subscriptionView{
		TenantID:            t.ID,
		Practice:            t.Name,
		Status:              t.Status,
		Plan:                plan,
		TrialEnd:            t.TrialEnd,
		TrialDaysLeft:       subscription.TrialDaysLeft(t, now),
		ActivatedAt:         t.ActivatedAt,
		CancelledAt:         t.CancelledAt,
		Timezone:            t.Timezone,
		BaselineNoShowRate:  t.BaselineNoShowRate,
		AvgAppointmentValue: t.AvgAppointmentValue,
	}, nil
}

// NewRegisterHandler returns an http.HandlerFunc for POST /api/v1/practices.
// The raw API key in the response is never shown again.
func NewRegisterHandler(subs Subscriptions, keys KeyIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			Timezone string `json:"timezone"`
		}
		if !decode(w, r, &req) {
			return
		}

		now := time.Now().UTC()
		tenant, err := subs.Register(r.Context(), req.Name, req.Timezone, now)
		if err != nil {
			writeError(w, r, err)
			return
		}
		raw, key, err := keys.Issue(r.Context(), tenant.ID, "default", apikey.AllScopes, now)
		if err != nil {
			// Without a key nobody can reach the tenant, so the registration is undone.
			if derr := subs.Discard(context.WithoutCancel(r.Context()), tenant.ID); derr != nil {
				slog.Error("failed to discard unreachable tenant", "tenant_id", tenant.ID, "error", derr)
			}
			writeError(w, r, fmt.Errorf("issuing key for tenant %s: %w", tenant.ID, err))
			return
		}
		view, err := newSubscriptionView(tenant, now)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.Created(w, map[string]any{
			"subscription": view,
			"api_key":      raw,
			"key":          key,
		})
	}
}

// NewPlansHandler returns an http.HandlerFunc for GET /api/v1/plans.
func NewPlansHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		plans := subscription.Plans()
		response.List(w, plans, len(plans))
	}
}

// NewGetSubscriptionHandler returns an http.HandlerFunc for GET /api/v1/subscription.
func NewGetSubscriptionHandler(subs Subscriptions, usage UsageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}

		now := time.Now().UTC()
		tenant, err := subs.Resolve(r.Context(), tid, now)
		if err != nil {
			writeError(w, r, err)
			return
		}
		view, err := newSubscriptionView(tenant, now)
		if err != nil {
			writeError(w, r, err)
			return
		}

		providers, err := usage.Usage(r.Context(), tenant, models.ResourceProvider, now)
		if err != nil {
			writeError(w, r, err)
			return
		}
		appointments, err := usage.Usage(r.Context(), tenant, models.ResourceAppointment, now)
		if err != nil {
			writeError(w, r, err)
			return
		}
		view.Usage = &subscriptionUsage{Providers: providers, Appointments: appointments}

		response.JSON(w, view)
	}
}

// NewUpgradeHandler returns an http.HandlerFunc for POST /api/v1/subscription/upgrade.
func NewUpgradeHandler(subs Subscriptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}

		var req struct {
			Plan string `json:"plan"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Plan == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "plan is required",
				map[string]string{"plan": "is required"})
			return
		}

		now := time.Now().UTC()
		tenant, err := subs.Upgrade(r.Context(), tid, req.Plan, now)
		writeTenant(w, r, tenant, err, now)
	}
}

// NewCancelHandler returns an http.HandlerFunc for POST /api/v1/subscription/cancel.
func NewCancelHandler(subs Subscriptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		now := time.Now().UTC()
		tenant, err := subs.Cancel(r.Context(), tid, now)
		writeTenant(w, r, tenant, err, now)
	}
}

// NewReactivateHandler returns an http.HandlerFunc for POST /api/v1/subscription/reactivate.
func NewReactivateHandler(subs Subscriptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		now := time.Now().UTC()
		tenant, err := subs.Reactivate(r.Context(), tid, now)
		writeTenant(w, r, tenant, err, now)
	}
}

// NewSettingsHandler returns an http.HandlerFunc for PUT /api/v1/subscription/settings.
// Omitted rates are cleared and fall back to the provider or global defaults.
func NewSettingsHandler(subs Subscriptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}

		var req struct {
			BaselineNoShowRate  *float64 `json:"baseline_no_show_rate"`
			AvgAppointmentValue *float64 `json:"avg_appointment_value"`
			Timezone            string   `json:"timezone"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Timezone == "" {
			req.Timezone = "UTC"
		}

		tenant, err := subs.UpdateSettings(r.Context(), tid, store.TenantSettings{
			BaselineNoShowRate:  req.BaselineNoShowRate,
			AvgAppointmentValue: req.AvgAppointmentValue,
			Timezone:            req.Timezone,
		})
		writeTenant(w, r, tenant, err, time.Now().UTC())
	}
}

// NewFeatureHandler returns an http.HandlerFunc for GET /api/v1/features/{feature}.
func NewFeatureHandler(subs Subscriptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		now := time.Now().UTC()
		tenant, err := subs.Resolve(r.Context(), tid, now)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, subscription.CheckFeature(tenant, chi.URLParam(r, "feature"), now))
	}
}

func writeTenant(w http.ResponseWriter, r *http.Request, tenant *models.Tenant, err error, now time.Time) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := newSubscriptionView(tenant, now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, view)
}
