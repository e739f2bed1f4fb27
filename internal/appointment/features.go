package appointment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/risk"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// features loads classifier inputs from history resolved before now. A history lookup
// that fails is treated as unknown, which makes the classifier fall back to the baseline
// instead of blocking the booking.
func (s *Service) features(ctx context.Context, tenant *models.Tenant, provider *models.Provider, patientID uuid.UUID, scheduled time.Time, apptType string, now time.Time) risk.Features {
	loc := tenantLocation(tenant)
	local := scheduled.In(loc)

	f := risk.Features{
		LeadTime:        scheduled.Sub(now),
		AppointmentType: apptType,
		ScheduledTime:   local,
		Baseline:        risk.ResolveBaseline(provider.BaselineRate, tenant.BaselineNoShowRate, s.Baseline),
	}

	f.PatientNoShowRate = s.rate(tenant.ID, "patient", func() (models.NoShowHistory, error) {
		return s.Store.PatientHistory(ctx, tenant.ID, patientID, now)
	})
	f.ProviderSlotNoShowRate = s.rate(tenant.ID, "provider_slot", func() (models.NoShowHistory, error) {
		return s.Store.ProviderSlotHistory(ctx, store.SlotQuery{
			TenantID:   tenant.ID,
			ProviderID: provider.ID,
			Weekday:    local.Weekday(),
			Hour:       local.Hour(),
			Location:   loc,
			Before:     now,
		})
	})
	if f.ProviderSlotNoShowRate == nil {
		// No resolved appointments in this slot yet; the provider's overall rate stands in.
		f.ProviderSlotNoShowRate = s.rate(tenant.ID, "provider", func() (models.NoShowHistory, error) {
			return s.Store.ProviderHistory(ctx, tenant.ID, provider.ID, now)
		})
	}
	return f
}

func (s *Service) rate(tenantID uuid.UUID, kind string, load func() (models.NoShowHistory, error)) *float64 {
	h, err := load()
	if err != nil {
		slog.Warn("no-show history unavailable", "tenant_id", tenantID, "history", kind, "error", err)
		return nil
	}
	return h.Rate()
}

func tenantLocation(t *models.Tenant) *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		slog.Warn("unknown tenant timezone, using UTC", "tenant_id", t.ID, "timezone", t.Timezone)
		return time.UTC
	}
	return loc
}
