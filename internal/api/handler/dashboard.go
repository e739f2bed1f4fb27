package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/chronoguard/internal/api/response"
	"github.com/kiranshivaraju/chronoguard/internal/dashboard"
	"github.com/kiranshivaraju/chronoguard/internal/subscription"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// Snapshotter computes dashboard snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context, tenant *models.Tenant, period models.Period, now time.Time) (models.MetricsSnapshot, error)
}

type statsView struct {
	models.MetricsSnapshot
	Plan          string `json:"plan"`
	Status        string `json:"status"`
	TrialDaysLeft int    `json:"trial_days_left"`
}

// NewDashboardStatsHandler returns an http.HandlerFunc for GET /api/v1/dashboard/stats.
// Dashboards stay readable after a subscription lapses.
func NewDashboardStatsHandler(subs Subscriptions, dash Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, snap, now, ok := loadSnapshot(w, r, subs, dash)
		if !ok {
			return
		}
		response.JSON(w, statsView{
			MetricsSnapshot: snap,
			Plan:            tenant.PlanName,
			Status:          tenant.Status,
			TrialDaysLeft:   subscription.TrialDaysLeft(tenant, now),
		})
	}
}

// NewRecommendationsHandler returns an http.HandlerFunc for GET /api/v1/dashboard/recommendations.
func NewRecommendationsHandler(subs Subscriptions, dash Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, snap, _, ok := loadSnapshot(w, r, subs, dash)
		if !ok {
			return
		}
		recs := dashboard.Recommendations(snap)
		response.List(w, recs, len(recs))
	}
}

func loadSnapshot(w http.ResponseWriter, r *http.Request, subs Subscriptions, dash Snapshotter) (*models.Tenant, models.MetricsSnapshot, time.Time, bool) {
	tid, ok := tenantID(w, r)
	if !ok {
		return nil, models.MetricsSnapshot{}, time.Time{}, false
	}

	now := time.Now().UTC()
	period := models.PeriodOf(now)
	if q := r.URL.Query().Get("period"); q != "" {
		p, err := models.ParsePeriod(q)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(),
				map[string]string{"period": "must be YYYY-MM"})
			return nil, models.MetricsSnapshot{}, time.Time{}, false
		}
		period = p
	}

	tenant, err := subs.Resolve(r.Context(), tid, now)
	if err != nil {
		writeError(w, r, err)
		return nil, models.MetricsSnapshot{}, time.Time{}, false
	}
	snap, err := dash.Snapshot(r.Context(), tenant, period, now)
	if err != nil {
		writeError(w, r, err)
		return nil, models.MetricsSnapshot{}, time.Time{}, false
	}
	return tenant, snap, now, true
}
