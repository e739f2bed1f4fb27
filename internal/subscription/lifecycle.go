// Package subscription owns the tenant subscription state machine, the plan catalog,
// and trial bookkeeping.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

const day = 24 * time.Hour

// validTransitions lists every status change the lifecycle allows.
// expired -> active is only reachable through Upgrade.
var validTransitions = map[string][]string{
	models.StatusTrial:     {models.StatusActive, models.StatusExpired},
	models.StatusActive:    {models.StatusCancelled},
	models.StatusCancelled: {models.StatusActive},
	models.StatusExpired:   {models.StatusActive},
}

// CanTransition reports whether a tenant may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether t may consume quota at now: an active subscription, or a
// trial whose window has not closed. The trial window is half-open, so at exactly
// trial_end the trial is over.
func Active(t *models.Tenant, now time.Time) bool {
	switch t.Status {
	case models.StatusActive:
		return true
	case models.StatusTrial:
		return now.Before(t.TrialEnd)
	default:
		return false
	}
}

// RequireActive returns ErrSubscriptionExpired unless t is Active at now.
func RequireActive(t *models.Tenant, now time.Time) error {
	if !Active(t, now) {
		return fmt.Errorf("%w: tenant %s is %s", ErrSubscriptionExpired, t.ID, effectiveStatus(t, now))
	}
	return nil
}

// TrialDaysLeft returns the whole days remaining in a trial, rounded up. It is 0 at or
// after trial_end and for tenants that are not on a trial.
func TrialDaysLeft(t *models.Tenant, now time.Time) int {
	if t.Status != models.StatusTrial {
		return 0
	}
	left := t.TrialEnd.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + day - 1) / day)
}

func effectiveStatus(t *models.Tenant, now time.Time) string {
	if t.Status == models.StatusTrial && !now.Before(t.TrialEnd) {
		return models.StatusExpired
	}
	return t.Status
}

// Invalidator drops derived views of a tenant after its plan, status or settings
// change. Implemented by dashboard.Service.
type Invalidator interface {
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

// Service applies subscription transitions against the tenant store.
// It keeps no tenant state of its own; every call reads the tenant fresh.
type Service struct {
	tenants     store.TenantStore
	trialDays   int
	invalidator Invalidator
}

// Option configures a Service.
type Option func(*Service)

// WithInvalidator notifies inv after every successful subscription change.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// NewService creates a new Service. New tenants get a trial of trialDays.
func NewService(tenants store.TenantStore, trialDays int, opts ...Option) *Service {
	s := &Service{tenants: tenants, trialDays: trialDays}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// invalidate runs after the change is committed, so the caller's cancellation must
// not skip it. A failure leaves snapshots stale for at most their TTL.
func (s *Service) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateTenant(context.WithoutCancel(ctx), tenantID); err != nil {
		slog.Warn("tenant snapshot invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

// Discard removes a tenant that was registered but never handed to its owner.
func (s *Service) Discard(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.tenants.DeleteTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("discarding tenant: %w", err)
	}
	slog.Info("practice registration rolled back", "tenant_id", tenantID)
	return nil
}

// Register creates a practice on the trial plan.
func (s *Service) Register(ctx context.Context, name, timezone string, now time.Time) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSettings)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSettings, timezone)
	}

	now = now.UTC()
	t := &models.Tenant{
		ID:         uuid.New(),
		Name:       name,
		PlanName:   PlanTrial,
		Status:     models.StatusTrial,
		TrialStart: now,
		TrialEnd:   now.Add(time.Duration(s.trialDays) * day),
		Timezone:   timezone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.tenants.CreateTenant(ctx, t); err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}
	slog.Info("practice registered", "tenant_id", t.ID, "trial_end", t.TrialEnd)
	return t, nil
}

// Resolve loads a tenant and expires its trial if the window has closed.
func (s *Service) Resolve(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Tenant, error) {
	t, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading tenant: %w", err)
	}
	if t.Status != models.StatusTrial || now.Before(t.TrialEnd) {
		return t, nil
	}

	expired, err := s.tenants.TransitionTenant(ctx, t.ID, models.StatusTrial, store.TenantTransition{
		Status: models.StatusExpired,
		At:     now.UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		// Someone else moved the tenant out of trial first; their write wins.
		return s.tenants.GetTenant(ctx, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("expiring trial: %w", err)
	}
	slog.Info("trial expired", "tenant_id", t.ID, "trial_end", t.TrialEnd)
	s.invalidate(ctx, t.ID)
	return expired, nil
}

// ResolveActive resolves the tenant and returns ErrSubscriptionExpired unless it may
// consume quota at now.
func (s *Service) ResolveActive(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Tenant, error) {
	t, err := s.Resolve(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	if err := RequireActive(t, now); err != nil {
		return nil, err
	}
	return t, nil
}

// Upgrade moves the tenant onto a paid plan and activates it. Upgrading to the plan
// an active tenant already has is a no-op. Quota counters are not touched, so usage
// above a smaller limit stays as it is.
func (s *Service) Upgrade(ctx context.Context, tenantID uuid.UUID, planName string, now time.Time) (*models.Tenant, error) {
	plan, err := LookupPlan(planName)
	if err != nil {
		return nil, err
	}
	if plan.Name == PlanTrial {
		return nil, fmt.Errorf("%w: cannot upgrade to the trial plan", ErrInvalidTransition)
	}

	t, err := s.Resolve(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	if t.Status == models.StatusActive && t.PlanName == plan.Name {
		return t, nil
	}
	if t.Status != models.StatusActive && !CanTransition(t.Status, models.StatusActive) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, models.StatusActive)
	}

	at := now.UTC()
	upd := store.TenantTransition{
		Status:   models.StatusActive,
		PlanName: plan.Name,
		At:       at,
	}
	if t.Status != models.StatusActive {
		upd.ActivatedAt = &at
	}
	updated, err := s.tenants.TransitionTenant(ctx, t.ID, t.Status, upd)
	if err != nil {
		return nil, fmt.Errorf("upgrading subscription: %w", err)
	}
	slog.Info("subscription upgraded", "tenant_id", t.ID, "from_plan", t.PlanName, "to_plan", plan.Name, "from_status", t.Status)
	s.invalidate(ctx, t.ID)
	return updated, nil
}

// Cancel moves an active subscription to cancelled.
func (s *Service) Cancel(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Tenant, error) {
	at := now.UTC()
	return s.transition(ctx, tenantID, now, models.StatusActive, store.TenantTransition{
		Status:      models.StatusCancelled,
		CancelledAt: &at,
		At:          at,
	})
}

// Reactivate restores a cancelled subscription. The tenant keeps its assigned plan,
// and with it that plan's limits.
func (s *Service) Reactivate(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Tenant, error) {
	at := now.UTC()
	return s.transition(ctx, tenantID, now, models.StatusCancelled, store.TenantTransition{
		Status:      models.StatusActive,
		ActivatedAt: &at,
		At:          at,
	})
}

func (s *Service) transition(ctx context.Context, tenantID uuid.UUID, now time.Time, from string, upd store.TenantTransition) (*models.Tenant, error) {
	t, err := s.Resolve(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	if t.Status != from || !CanTransition(from, upd.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, upd.Status)
	}
	updated, err := s.tenants.TransitionTenant(ctx, t.ID, from, upd)
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("updating subscription: %w", err)
	}
	slog.Info("subscription status changed", "tenant_id", t.ID, "from", from, "to", upd.Status)
	s.invalidate(ctx, t.ID)
	return updated, nil
}

// UpdateSettings replaces the practice's risk baseline, average appointment value and
// time zone. Revenue already credited is unaffected: it uses booking-time values.
func (s *Service) UpdateSettings(ctx context.Context, tenantID uuid.UUID, set store.TenantSettings) (*models.Tenant, error) {
	if r := set.BaselineNoShowRate; r != nil && (*r < 0 || *r > 1) {
		return nil, fmt.Errorf("%w: baseline_no_show_rate must be between 0 and 1", ErrInvalidSettings)
	}
	if v := set.AvgAppointmentValue; v != nil && *v < 0 {
		return nil, fmt.Errorf("%w: avg_appointment_value must not be negative", ErrInvalidSettings)
	}
	if set.Timezone != "" {
		if _, err := time.LoadLocation(set.Timezone); err != nil {
			return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSettings, set.Timezone)
		}
	}
	t, err := s.tenants.UpdateTenantSettings(ctx, tenantID, set)
	if err != nil {
		return nil, fmt.Errorf("updating settings: %w", err)
	}
	s.invalidate(ctx, t.ID)
	return t, nil
}

// FeatureAccess is the answer to a feature check.
type FeatureAccess struct {
	Feature   string `json:"feature"`
	HasAccess bool   `json:"has_access"`
	Plan      string `json:"plan"`
	Reason    string `json:"reason,omitempty"`
}

// CheckFeature reports whether t can use feature at now. Access needs a live
// subscription and a plan that includes the feature.
func CheckFeature(t *models.Tenant, feature string, now time.Time) FeatureAccess {
	access := FeatureAccess{Feature: feature, Plan: t.PlanName}

	switch effectiveStatus(t, now) {
	case models.StatusTrial, models.StatusActive:
	case models.StatusExpired:
		if t.Status == models.StatusTrial || t.PlanName == PlanTrial {
			access.Reason = "trial expired"
		} else {
			access.Reason = "subscription expired"
		}
		return access
	default:
		access.Reason = "subscription " + t.Status
		return access
	}

	plan, err := Limits(t)
	if err != nil {
		access.Reason = "unknown plan"
		return access
	}
	if !plan.HasFeature(feature) {
		access.Reason = "not included in plan"
		return access
	}
	access.HasAccess = true
	return access
}
