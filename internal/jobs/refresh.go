// Package jobs runs periodic background work.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/appointment"
	"github.com/kiranshivaraju/chronoguard/internal/subscription"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
	"golang.org/x/sync/errgroup"
)

// RefreshableLister finds appointments whose risk may still be rescored.
type RefreshableLister interface {
	ListRefreshable(ctx context.Context, from, to time.Time, limit int) ([]*models.Appointment, error)
}

// Rescorer rescores one appointment. Implemented by appointment.Service.
type Rescorer interface {
	RefreshRisk(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (*appointment.RefreshResult, error)
}

// RunStats summarizes one refresh pass.
type RunStats struct {
	Scanned     int
	Refreshed   int
	TierChanges int
	Skipped     int
	Failed      int
}

// RiskRefresher rescores upcoming appointments so their current tier reflects
// the latest no-show history. It never touches quota counters.
type RiskRefresher struct {
	lister      RefreshableLister
	rescorer    Rescorer
	horizon     time.Duration
	batchSize   int
	concurrency int
	now         func() time.Time
}

// NewRiskRefresher creates a RiskRefresher that looks horizon ahead and handles at most
// batchSize appointments per pass.
func NewRiskRefresher(lister RefreshableLister, rescorer Rescorer, horizon time.Duration, batchSize int) *RiskRefresher {
	return &RiskRefresher{
		lister:      lister,
		rescorer:    rescorer,
		horizon:     horizon,
		batchSize:   batchSize,
		concurrency: 4,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one pass. Individual failures are counted and logged; only a failure
// to list candidates is returned.
func (r *RiskRefresher) Run(ctx context.Context) (RunStats, error) {
	now := r.now()
	appts, err := r.lister.ListRefreshable(ctx, now, now.Add(r.horizon), r.batchSize)
	if err != nil {
		return RunStats{}, fmt.Errorf("listing refreshable appointments: %w", err)
	}

	var refreshed, tierChanges, skipped, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, a := range appts {
		g.Go(func() error {
			res, err := r.rescorer.RefreshRisk(gctx, a.TenantID, a.ID, now)
			switch {
			case err == nil:
				refreshed.Add(1)
				if res.Appointment.RiskTier != res.PreviousTier {
					tierChanges.Add(1)
				}
			case errors.Is(err, appointment.ErrNotRefreshable), errors.Is(err, subscription.ErrSubscriptionExpired):
				skipped.Add(1)
			default:
				failed.Add(1)
				slog.Warn("risk refresh failed", "tenant_id", a.TenantID, "appointment_id", a.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := RunStats{
		Scanned:     len(appts),
		Refreshed:   int(refreshed.Load()),
		TierChanges: int(tierChanges.Load()),
		Skipped:     int(skipped.Load()),
		Failed:      int(failed.Load()),
	}
	slog.Info("risk refresh finished",
		"scanned", stats.Scanned,
		"refreshed", stats.Refreshed,
		"tier_changes", stats.TierChanges,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	return stats, nil
}
