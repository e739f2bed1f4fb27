// Package quota enforces per-plan usage limits.
//
// Every reservation is a single conditional increment in the CounterStore, so concurrent
// callers can never push a counter past its plan limit.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/internal/subscription"
	"github.com/kiranshivaraju/chronoguard/internal/telemetry"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

var ErrQuotaExceeded = errors.New("plan quota exceeded")

// Ledger reserves plan-bounded resources for tenants.
type Ledger struct {
	counters store.CounterStore
	metrics  *telemetry.Collector
	now      func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used to decide whether a subscription is live.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a new Ledger.
func NewLedger(counters store.CounterStore, metrics *telemetry.Collector, opts ...Option) *Ledger {
	l := &Ledger{
		counters: counters,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// KeyFor returns the counter a reservation of kind at time at is charged to.
// Appointment counters are per UTC calendar month; the provider counter is a single live row.
func KeyFor(tenantID uuid.UUID, kind models.ResourceKind, at time.Time) models.CounterKey {
	period := models.LivePeriod
	if kind == models.ResourceAppointment {
		period = models.PeriodOf(at).String()
	}
	return models.CounterKey{TenantID: tenantID, Resource: kind, Period: period}
}

// Reserve takes one unit of kind for tenant, charged to the period containing at.
// It returns subscription.ErrSubscriptionExpired for tenants that are not live and
// ErrQuotaExceeded when the plan limit is reached. Neither case touches the counter.
func (l *Ledger) Reserve(ctx context.Context, tenant *models.Tenant, kind models.ResourceKind, at time.Time) (*Reservation, error) {
	if err := subscription.RequireActive(tenant, l.now()); err != nil {
		l.observe(kind, telemetry.OutcomeInactive)
		return nil, err
	}
	plan, err := subscription.Limits(tenant)
	if err != nil {
		l.observe(kind, telemetry.OutcomeError)
		return nil, err
	}

	key := KeyFor(tenant.ID, kind, at)
	limit := plan.Limit(kind)
	if err := ctx.Err(); err != nil {
		l.observe(kind, telemetry.OutcomeError)
		return nil, fmt.Errorf("reserving %s: %w", kind, err)
	}

	// The increment may commit even when the driver reports a cancellation, so it
	// runs to completion and a caller that gave up in the meantime gets the unit back.
	incCtx := context.WithoutCancel(ctx)
	var count int
	switch {
	case limit >= models.Unlimited:
		count, err = l.counters.IncrementUnbounded(incCtx, key)
	case limit <= 0:
		err = store.ErrLimitReached
	default:
		count, err = l.counters.IncrementBounded(incCtx, key, limit)
	}
	if errors.Is(err, store.ErrLimitReached) {
		l.observe(kind, telemetry.OutcomeExceeded)
		slog.Info("quota exceeded", "tenant_id", tenant.ID, "resource", kind, "period", key.Period, "limit", limit, "plan", plan.Name)
		return nil, fmt.Errorf("%w: %s limit of %d reached on plan %s for %s", ErrQuotaExceeded, kind, limit, plan.Name, key.Period)
	}
	if err != nil {
		l.observe(kind, telemetry.OutcomeError)
		return nil, fmt.Errorf("reserving %s: %w", kind, err)
	}

	if cerr := ctx.Err(); cerr != nil {
		if rerr := l.release(incCtx, key); rerr != nil {
			slog.Error("failed to return quota after cancelled reservation", "tenant_id", tenant.ID, "resource", kind, "period", key.Period, "error", rerr)
		}
		l.observe(kind, telemetry.OutcomeError)
		return nil, fmt.Errorf("reserving %s: %w", kind, cerr)
	}

	l.observe(kind, telemetry.OutcomeReserved)
	return &Reservation{ledger: l, key: key, Count: count}, nil
}

// Release returns one unit of kind to tenant's counter for the period containing at.
func (l *Ledger) Release(ctx context.Context, tenantID uuid.UUID, kind models.ResourceKind, at time.Time) error {
	return l.release(ctx, KeyFor(tenantID, kind, at))
}

func (l *Ledger) release(ctx context.Context, key models.CounterKey) error {
	if err := l.counters.Decrement(ctx, key); err != nil {
		return fmt.Errorf("releasing %s: %w", key.Resource, err)
	}
	l.observe(key.Resource, telemetry.OutcomeReleased)
	return nil
}

// Usage reports consumption of kind for the period containing at. Tenants that are
// not live have nothing remaining. Remaining is -1 for unlimited plans.
func (l *Ledger) Usage(ctx context.Context, tenant *models.Tenant, kind models.ResourceKind, at time.Time) (models.QuotaUsage, error) {
	key := KeyFor(tenant.ID, kind, at)
	used, err := l.counters.GetCounter(ctx, key)
	if err != nil {
		return models.QuotaUsage{}, fmt.Errorf("reading %s counter: %w", kind, err)
	}

	u := models.QuotaUsage{Resource: kind, Period: key.Period, Used: used}
	plan, err := subscription.Limits(tenant)
	if err != nil {
		return u, err
	}
	u.Limit = plan.Limit(kind)
	u.Unlimited = u.Limit >= models.Unlimited

	switch {
	case !subscription.Active(tenant, l.now()):
		u.Remaining = 0
	case u.Unlimited:
		u.Remaining = -1
	default:
		u.Remaining = max(0, u.Limit-used)
	}
	return u, nil
}

func (l *Ledger) observe(kind models.ResourceKind, outcome string) {
	l.metrics.QuotaReservations.WithLabelValues(string(kind), outcome).Inc()
}

// Reservation is a unit taken from a counter. Release undoes it at most once.
type Reservation struct {
	ledger *Ledger
	key    models.CounterKey

	mu       sync.Mutex
	released bool

	// Count is the counter value right after this reservation.
	Count int
}

// Key returns the counter this reservation was charged to.
func (r *Reservation) Key() models.CounterKey { return r.key }

// Release is the compensating action for a reservation whose booking did not complete.
// A failed release may be retried. Calls after the first success are no-ops.
func (r *Reservation) Release(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	if err := r.ledger.release(ctx, r.key); err != nil {
		return err
	}
	r.released = true
	slog.Info("quota reservation released", "tenant_id", r.key.TenantID, "resource", r.key.Resource, "period", r.key.Period)
	return nil
}
