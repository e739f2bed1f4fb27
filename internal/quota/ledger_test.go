package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/internal/store/memstore"
	"github.com/kiranshivaraju/chronoguard/internal/subscription"
	"github.com/kiranshivaraju/chronoguard/internal/telemetry"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) (*Ledger, *memstore.Counters, *telemetry.Collector) {
	t.Helper()
	counters := memstore.NewCounters()
	metrics := telemetry.NewCollector(prometheus.NewRegistry())
	return NewLedger(counters, metrics, WithClock(func() time.Time { return now })), counters, metrics
}

func tenantOn(plan, status string) *models.Tenant {
	return &models.Tenant{
		ID:       uuid.New(),
		PlanName: plan,
		Status:   status,
		TrialEnd: now.Add(7 * 24 * time.Hour),
	}
}

func TestReserve_ConcurrentAttemptsNeverOvershoot(t *testing.T) {
	ledger, counters, _ := newLedger(t)
	ctx := context.Background()
	tenant := tenantOn(subscription.PlanTrial, models.StatusTrial)

	// Pre-fill so exactly 5 of the trial's 100 slots remain.
	for i := 0; i < 95; i++ {
		_, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, now)
		require.NoError(t, err)
	}

	const attempts = 50
	var ok, exceeded atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, now)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrQuotaExceeded):
				exceeded.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(attempts-5), exceeded.Load())

	n, err := counters.GetCounter(ctx, KeyFor(tenant.ID, models.ResourceAppointment, now))
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestReserve_ScopedToScheduledMonth(t *testing.T) {
	ledger, _, _ := newLedger(t)
	ctx := context.Background()
	tenant := tenantOn(subscription.PlanTrial, models.StatusTrial)

	april := now
	may := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		_, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, april)
		require.NoError(t, err)
	}

	_, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, april)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	r, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, may)
	require.NoError(t, err)
	assert.Equal(t, "2026-05", r.Key().Period)
	assert.Equal(t, 1, r.Count)
}

func TestReserve_InactiveTenantsLeaveCountersAlone(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		tenant *models.Tenant
	}{
		{"expired", tenantOn(subscription.PlanStarter, models.StatusExpired)},
		{"cancelled", tenantOn(subscription.PlanEnterprise, models.StatusCancelled)},
		{"trial at its end", &models.Tenant{ID: uuid.New(), PlanName: subscription.PlanTrial, Status: models.StatusTrial, TrialEnd: now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, counters, metrics := newLedger(t)

			_, err := ledger.Reserve(ctx, tt.tenant, models.ResourceAppointment, now)
			assert.ErrorIs(t, err, subscription.ErrSubscriptionExpired)

			n, err := counters.GetCounter(ctx, KeyFor(tt.tenant.ID, models.ResourceAppointment, now))
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QuotaReservations.WithLabelValues("appointment", telemetry.OutcomeInactive)))

			usage, err := ledger.Usage(ctx, tt.tenant, models.ResourceAppointment, now)
			require.NoError(t, err)
			assert.Zero(t, usage.Remaining)
		})
	}
}

func TestReserve_UnlimitedStillCounts(t *testing.T) {
	ledger, _, _ := newLedger(t)
	ctx := context.Background()
	tenant := tenantOn(subscription.PlanEnterprise, models.StatusActive)

	var last *Reservation
	for i := 0; i < 250; i++ {
		r, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, now)
		require.NoError(t, err)
		last = r
	}
	assert.Equal(t, 250, last.Count)

	usage, err := ledger.Usage(ctx, tenant, models.ResourceAppointment, now)
	require.NoError(t, err)
	assert.True(t, usage.Unlimited)
	assert.Equal(t, 250, usage.Used)
	assert.Equal(t, -1, usage.Remaining)
}

func TestReserve_ProviderCounterIsLive(t *testing.T) {
	ledger, _, _ := newLedger(t)
	ctx := context.Background()
	tenant := tenantOn(subscription.PlanTrial, models.StatusTrial)

	_, err := ledger.Reserve(ctx, tenant, models.ResourceProvider, now)
	require.NoError(t, err)
	// A different month still hits the same live counter.
	_, err = ledger.Reserve(ctx, tenant, models.ResourceProvider, now.AddDate(0, 3, 0))
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, tenant, models.ResourceProvider, now)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	require.NoError(t, ledger.Release(ctx, tenant.ID, models.ResourceProvider, now))
	_, err = ledger.Reserve(ctx, tenant, models.ResourceProvider, now)
	assert.NoError(t, err)
}

func TestReservation_ReleaseIsIdempotent(t *testing.T) {
	ledger, counters, metrics := newLedger(t)
	ctx := context.Background()
	tenant := tenantOn(subscription.PlanStarter, models.StatusActive)

	r, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, now)
	require.NoError(t, err)

	require.NoError(t, r.Release(ctx))
	require.NoError(t, r.Release(ctx))

	n, err := counters.GetCounter(ctx, r.Key())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QuotaReservations.WithLabelValues("appointment", telemetry.OutcomeReleased)))
}

func TestUsage_GrandfathersUsageAboveLimit(t *testing.T) {
	counters := memstore.NewCounters()
	ledger := NewLedger(counters, telemetry.NewCollector(prometheus.NewRegistry()), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	tenant := tenantOn(subscription.PlanStarter, models.StatusActive)

	key := KeyFor(tenant.ID, models.ResourceAppointment, now)
	for i := 0; i < 600; i++ {
		_, err := counters.IncrementUnbounded(ctx, key)
		require.NoError(t, err)
	}

	usage, err := ledger.Usage(ctx, tenant, models.ResourceAppointment, now)
	require.NoError(t, err)
	assert.Equal(t, 600, usage.Used)
	assert.Equal(t, 500, usage.Limit)
	assert.Zero(t, usage.Remaining)

	_, err = ledger.Reserve(ctx, tenant, models.ResourceAppointment, now)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

type failingCounters struct{ *memstore.Counters }

func (failingCounters) IncrementBounded(context.Context, models.CounterKey, int) (int, error) {
	return 0, errors.New("connection reset")
}

func TestReserve_StoreErrorIsNotQuotaExceeded(t *testing.T) {
	ledger := NewLedger(failingCounters{memstore.NewCounters()}, telemetry.NewCollector(prometheus.NewRegistry()),
		WithClock(func() time.Time { return now }))

	_, err := ledger.Reserve(context.Background(), tenantOn(subscription.PlanStarter, models.StatusActive), models.ResourceAppointment, now)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrQuotaExceeded))
	assert.False(t, errors.Is(err, store.ErrLimitReached))
}

// cancellingCounters commits the increment and then cancels the caller, the way a
// driver can report a cancellation for a write that already landed.
type cancellingCounters struct {
	*memstore.Counters
	cancel    context.CancelFunc
	storeErrs []error
}

func (c *cancellingCounters) IncrementBounded(ctx context.Context, key models.CounterKey, limit int) (int, error) {
	n, err := c.Counters.IncrementBounded(ctx, key, limit)
	c.cancel()
	c.storeErrs = append(c.storeErrs, ctx.Err())
	return n, err
}

func TestReserve_CancelledDuringIncrementReturnsTheUnit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	counters := &cancellingCounters{Counters: memstore.NewCounters(), cancel: cancel}
	metrics := telemetry.NewCollector(prometheus.NewRegistry())
	ledger := NewLedger(counters, metrics, WithClock(func() time.Time { return now }))
	tenant := tenantOn(subscription.PlanStarter, models.StatusActive)

	r, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, now)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, r)

	require.Len(t, counters.storeErrs, 1)
	assert.NoError(t, counters.storeErrs[0], "the increment runs to completion")

	n, err := counters.GetCounter(context.Background(), KeyFor(tenant.ID, models.ResourceAppointment, now))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QuotaReservations.WithLabelValues("appointment", telemetry.OutcomeError)))
	assert.Zero(t, testutil.ToFloat64(metrics.QuotaReservations.WithLabelValues("appointment", telemetry.OutcomeReserved)))
}

func TestReserve_AlreadyCancelledSkipsTheStore(t *testing.T) {
	ledger, counters, _ := newLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tenant := tenantOn(subscription.PlanStarter, models.StatusActive)

	_, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, now)
	require.ErrorIs(t, err, context.Canceled)

	n, err := counters.GetCounter(context.Background(), KeyFor(tenant.ID, models.ResourceAppointment, now))
	require.NoError(t, err)
	assert.Zero(t, n)
}

// flakyCounters fails the next `failures` decrements.
type flakyCounters struct {
	*memstore.Counters
	failures int
}

func (c *flakyCounters) Decrement(ctx context.Context, key models.CounterKey) error {
	if c.failures > 0 {
		c.failures--
		return errors.New("connection reset")
	}
	return c.Counters.Decrement(ctx, key)
}

func TestReservation_FailedReleaseCanBeRetried(t *testing.T) {
	counters := &flakyCounters{Counters: memstore.NewCounters()}
	metrics := telemetry.NewCollector(prometheus.NewRegistry())
	ledger := NewLedger(counters, metrics, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	tenant := tenantOn(subscription.PlanStarter, models.StatusActive)

	other, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, now)
	require.NoError(t, err)
	r, err := ledger.Reserve(ctx, tenant, models.ResourceAppointment, now)
	require.NoError(t, err)
	require.Equal(t, 2, r.Count)

	counters.failures = 1
	require.Error(t, r.Release(ctx))
	require.NoError(t, r.Release(ctx))
	require.NoError(t, r.Release(ctx))

	n, err := counters.GetCounter(ctx, other.Key())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only this reservation's unit is returned")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QuotaReservations.WithLabelValues("appointment", telemetry.OutcomeReleased)))
}
