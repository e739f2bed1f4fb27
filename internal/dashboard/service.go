// Package dashboard aggregates appointment and quota data into per-period metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/cache"
	"github.com/kiranshivaraju/chronoguard/internal/telemetry"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
	"golang.org/x/sync/singleflight"
)

// AppointmentLister is the read access the aggregator needs.
type AppointmentLister interface {
	ListAppointments(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.Appointment, error)
}

// UsageReader reports quota consumption. Implemented by quota.Ledger.
type UsageReader interface {
	Usage(ctx context.Context, tenant *models.Tenant, kind models.ResourceKind, at time.Time) (models.QuotaUsage, error)
}

// minVersionTTL is the shortest life of an invalidation version key.
const minVersionTTL = 24 * time.Hour

// Service serves snapshots from Redis when it can and recomputes them when it must.
//
// Cached snapshots are keyed by two invalidation versions: one per tenant, bumped by
// plan and settings changes, and one per tenant and period, bumped by appointment
// changes. A recomputation that started before a mutation can only write to a key
// nobody reads anymore.
//
// Version keys expire after versionTTL without use. Writing a snapshot refreshes
// them, so a version key always outlives the snapshots stored under it and a
// counter that restarts from zero never meets an old snapshot.
type Service struct {
	appointments AppointmentLister
	usage        UsageReader
	cache        cache.Cache
	metrics      *telemetry.Collector
	ttl          time.Duration
	versionTTL   time.Duration
	defaultValue float64
	group        singleflight.Group
}

// NewService creates a new Service. defaultValue is the appointment value used for
// revenue when a tenant has not set its own.
func NewService(appointments AppointmentLister, usage UsageReader, c cache.Cache, metrics *telemetry.Collector, ttl time.Duration, defaultValue float64) *Service {
	return &Service{
		appointments: appointments,
		usage:        usage,
		cache:        c,
		metrics:      metrics,
		ttl:          ttl,
		versionTTL:   max(minVersionTTL, 12*ttl),
		defaultValue: defaultValue,
	}
}

// Snapshot returns the metrics for tenant and period as of now. Identical concurrent
// requests share one computation, and repeated calls with no mutation in between
// return the same snapshot.
func (s *Service) Snapshot(ctx context.Context, tenant *models.Tenant, period models.Period, now time.Time) (models.MetricsSnapshot, error) {
	tenantVersion := s.version(ctx, cache.TenantVersionKey(tenant.ID))
	periodVersion := s.version(ctx, cache.SnapshotVersionKey(tenant.ID, period.String()))
	key := cache.SnapshotKey(tenant.ID, period.String(), tenantVersion, periodVersion)

	if raw, found, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("snapshot cache read failed", "tenant_id", tenant.ID, "period", period.String(), "error", err)
	} else if found {
		var snap models.MetricsSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			s.metrics.SnapshotsTotal.WithLabelValues("cache").Inc()
			return snap, nil
		}
		slog.Warn("discarding unreadable cached snapshot", "key", key)
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		snap, err := s.compute(ctx, tenant, period, now)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(snap); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				slog.Warn("snapshot cache write failed", "tenant_id", tenant.ID, "period", period.String(), "error", err)
			} else {
				s.touchVersions(ctx, tenant.ID, period)
			}
		}
		return snap, nil
	})
	if err != nil {
		return models.MetricsSnapshot{}, err
	}
	s.metrics.SnapshotsTotal.WithLabelValues("computed").Inc()
	return v.(models.MetricsSnapshot), nil
}

// Invalidate discards cached snapshots for tenant and period.
func (s *Service) Invalidate(ctx context.Context, tenantID uuid.UUID, period models.Period) error {
	if _, err := s.cache.IncrWithExpiry(ctx, cache.SnapshotVersionKey(tenantID, period.String()), s.versionTTL); err != nil {
		return fmt.Errorf("invalidating snapshot: %w", err)
	}
	return nil
}

// InvalidateTenant discards cached snapshots for every period of tenant. Plan and
// settings changes alter quota limits and revenue in all of them.
func (s *Service) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	if _, err := s.cache.IncrWithExpiry(ctx, cache.TenantVersionKey(tenantID), s.versionTTL); err != nil {
		return fmt.Errorf("invalidating tenant snapshots: %w", err)
	}
	return nil
}

func (s *Service) touchVersions(ctx context.Context, tenantID uuid.UUID, period models.Period) {
	for _, key := range []string{cache.TenantVersionKey(tenantID), cache.SnapshotVersionKey(tenantID, period.String())} {
		if err := s.cache.Expire(ctx, key, s.versionTTL); err != nil {
			slog.Warn("snapshot version refresh failed", "tenant_id", tenantID, "key", key, "error", err)
		}
	}
}

func (s *Service) compute(ctx context.Context, tenant *models.Tenant, period models.Period, now time.Time) (models.MetricsSnapshot, error) {
	appts, err := s.appointments.ListAppointments(ctx, tenant.ID, period.Start(), period.End())
	if err != nil {
		return models.MetricsSnapshot{}, fmt.Errorf("listing appointments: %w", err)
	}

	value := s.defaultValue
	if tenant.AvgAppointmentValue != nil {
		value = *tenant.AvgAppointmentValue
	}
	snap := Compute(tenant.ID, period, appts, value, now)

	usage, err := s.usage.Usage(ctx, tenant, models.ResourceAppointment, period.Start())
	if err != nil {
		return models.MetricsSnapshot{}, fmt.Errorf("reading quota usage: %w", err)
	}
	snap.AppointmentQuota = usage
	return snap, nil
}

// version reads an invalidation generation. A cache failure falls back to 0, which at
// worst serves a snapshot no older than the TTL.
func (s *Service) version(ctx context.Context, key string) int64 {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil || !found {
		return 0
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
