// Package appointment books appointments against plan quotas and keeps their risk scores.
package appointment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/notify"
	"github.com/kiranshivaraju/chronoguard/internal/quota"
	"github.com/kiranshivaraju/chronoguard/internal/risk"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/internal/telemetry"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// Subscriptions resolves tenants. Implemented by subscription.Service.
type Subscriptions interface {
	ResolveActive(ctx context.Context, tenantID uuid.UUID, now time.Time) (*models.Tenant, error)
}

// Quota reserves plan-bounded resources. Implemented by quota.Ledger.
type Quota interface {
	Reserve(ctx context.Context, tenant *models.Tenant, kind models.ResourceKind, at time.Time) (*quota.Reservation, error)
	Release(ctx context.Context, tenantID uuid.UUID, kind models.ResourceKind, at time.Time) error
}

// Invalidator drops cached dashboard figures. Implemented by dashboard.Service.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID, period models.Period) error
}

// Store is the persistence the service needs.
type Store interface {
	store.ProviderStore
	store.PatientStore
	store.AppointmentStore
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Subscriptions Subscriptions
	Quota         Quota
	Store         Store
	Classifier    *risk.Classifier
	Dashboard     Invalidator
	Dispatcher    notify.Dispatcher
	Metrics       *telemetry.Collector
	// Baseline is the fallback probability when neither provider nor tenant has one.
	Baseline float64
}

// Service orchestrates bookings: subscription check, quota reservation, scoring and persistence.
type Service struct {
	Deps
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for bookings and provider changes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(d Deps, opts ...Option) *Service {
	s := &Service{
		Deps: d,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams describes a booking request.
type CreateParams struct {
	ProviderID      uuid.UUID
	PatientID       uuid.UUID
	ScheduledTime   time.Time
	DurationMinutes int
	Type            string
	Channel         string
}

// CreateResult is a persisted booking and what happened around it.
type CreateResult struct {
	Appointment        *models.Appointment
	Risk               risk.Result
	ReminderDispatched bool
}

// Create books an appointment. A quota or subscription failure leaves nothing behind.
// A failure after the quota was reserved releases the reservation and returns ErrInternal.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, p CreateParams) (*CreateResult, error) {
	now := s.now()
	if err := p.normalize(now); err != nil {
		return nil, err
	}

	tenant, err := s.Subscriptions.ResolveActive(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	provider, err := s.activeProvider(ctx, tenantID, p.ProviderID)
	if err != nil {
		return nil, err
	}
	patient, err := s.Store.GetPatient(ctx, tenantID, p.PatientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalid("patient_id", "patient not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading patient: %w", err)
	}

	reservation, err := s.Quota.Reserve(ctx, tenant, models.ResourceAppointment, p.ScheduledTime)
	if err != nil {
		return nil, err
	}

	appt, result, err := s.book(ctx, tenant, provider, patient, p, now)
	if err != nil {
		// The caller may have gone away; the release must still happen.
		if rerr := reservation.Release(context.WithoutCancel(ctx)); rerr != nil {
			slog.Error("failed to release quota after aborted booking",
				"tenant_id", tenantID, "period", reservation.Key().Period, "error", rerr)
		}
		slog.Error("booking aborted after quota reservation", "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	s.recordScore(appt, result)
	s.invalidate(ctx, tenantID, appt.ScheduledTime)
	slog.Info("appointment booked",
		"tenant_id", tenantID,
		"appointment_id", appt.ID,
		"risk_tier", appt.RiskTier,
		"risk_probability", appt.RiskProbability,
		"quota_used", reservation.Count,
	)

	out := &CreateResult{Appointment: appt, Risk: result}
	if risk.ReminderWorthy(appt.RiskTier) {
		out.ReminderDispatched = s.remind(ctx, appt, patient.Contact())
	}
	return out, nil
}

func (s *Service) book(ctx context.Context, tenant *models.Tenant, provider *models.Provider, patient *models.Patient, p CreateParams, now time.Time) (*models.Appointment, risk.Result, error) {
	result := s.Classifier.Score(s.features(ctx, tenant, provider, patient.ID, p.ScheduledTime, p.Type, now))

	if err := ctx.Err(); err != nil {
		return nil, result, fmt.Errorf("booking cancelled: %w", err)
	}

	appt := &models.Appointment{
		ID:                 uuid.New(),
		TenantID:           tenant.ID,
		ProviderID:         provider.ID,
		PatientID:          patient.ID,
		ScheduledTime:      p.ScheduledTime,
		DurationMinutes:    p.DurationMinutes,
		Type:               p.Type,
		Channel:            p.Channel,
		Status:             models.AppointmentScheduled,
		RiskProbability:    result.Probability,
		RiskTier:           result.Tier,
		BookingProbability: result.Probability,
		BookingTier:        result.Tier,
		RiskFallback:       result.Fallback,
		RiskFactors:        result.Factors,
		RiskScoredAt:       now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.Store.CreateAppointment(ctx, appt); err != nil {
		return nil, result, fmt.Errorf("persisting appointment: %w", err)
	}
	return appt, result, nil
}

// Get returns one of the tenant's appointments.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Appointment, error) {
	a, err := s.Store.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("loading appointment: %w", err)
	}
	return a, nil
}

var statusTransitions = map[string][]string{
	models.AppointmentScheduled: {models.AppointmentConfirmed, models.AppointmentCompleted, models.AppointmentCancelled, models.AppointmentNoShow},
	models.AppointmentConfirmed: {models.AppointmentCompleted, models.AppointmentCancelled, models.AppointmentNoShow},
}

// CanTransition reports whether an appointment may move from one status to another.
// Terminal statuses never move.
func CanTransition(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateStatus records an appointment outcome. Cancelling never returns quota.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status string, now time.Time) (*models.Appointment, error) {
	if !isStatus(status) {
		return nil, invalid("status", "unknown status %q", status)
	}
	if _, err := s.Subscriptions.ResolveActive(ctx, tenantID, now); err != nil {
		return nil, err
	}

	current, err := s.Store.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("loading appointment: %w", err)
	}
	if !CanTransition(current.Status, status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, current.Status, status)
	}

	updated, err := s.Store.UpdateAppointmentStatus(ctx, tenantID, id, current.Status, status, now.UTC())
	if errors.Is(err, store.ErrConflict) {
		return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidStatusTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	s.invalidate(ctx, tenantID, updated.ScheduledTime)
	slog.Info("appointment status updated", "tenant_id", tenantID, "appointment_id", id, "from", current.Status, "to", status)
	return updated, nil
}

// RefreshResult is the outcome of rescoring an appointment.
type RefreshResult struct {
	Appointment        *models.Appointment
	Risk               risk.Result
	PreviousTier       models.RiskTier
	ReminderDispatched bool
}

// RefreshRisk rescores an upcoming, non-terminal appointment with current history.
// Booking-time probability and tier are kept. A move into the high tier requests a reminder.
func (s *Service) RefreshRisk(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (*RefreshResult, error) {
	tenant, err := s.Subscriptions.ResolveActive(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	current, err := s.Store.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("loading appointment: %w", err)
	}
	if models.IsTerminal(current.Status) || !current.ScheduledTime.After(now) {
		return nil, ErrNotRefreshable
	}
	provider, err := s.Store.GetProvider(ctx, tenantID, current.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("loading provider: %w", err)
	}

	result := s.Classifier.Score(s.features(ctx, tenant, provider, current.PatientID, current.ScheduledTime, current.Type, now))
	updated, err := s.Store.UpdateAppointmentRisk(ctx, tenantID, id, store.RiskUpdate{
		Probability: result.Probability,
		Tier:        result.Tier,
		Fallback:    result.Fallback,
		Factors:     result.Factors,
		ScoredAt:    now.UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrNotRefreshable
	}
	if err != nil {
		return nil, fmt.Errorf("updating appointment risk: %w", err)
	}

	s.recordScore(updated, result)
	s.Metrics.RiskRefreshed.Inc()
	s.invalidate(ctx, tenantID, updated.ScheduledTime)

	out := &RefreshResult{Appointment: updated, Risk: result, PreviousTier: current.RiskTier}
	if risk.ReminderWorthy(updated.RiskTier) && !risk.ReminderWorthy(current.RiskTier) {
		if patient, err := s.Store.GetPatient(ctx, tenantID, updated.PatientID); err != nil {
			slog.Warn("cannot load patient for reminder", "tenant_id", tenantID, "appointment_id", id, "error", err)
		} else {
			out.ReminderDispatched = s.remind(ctx, updated, patient.Contact())
		}
	}
	return out, nil
}

func (s *Service) activeProvider(ctx context.Context, tenantID, id uuid.UUID) (*models.Provider, error) {
	p, err := s.Store.GetProvider(ctx, tenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, invalid("provider_id", "provider not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading provider: %w", err)
	}
	if !p.Active {
		return nil, invalid("provider_id", "provider is inactive")
	}
	return p, nil
}

func (s *Service) recordScore(a *models.Appointment, r risk.Result) {
	s.Metrics.RiskScores.WithLabelValues(string(r.Tier)).Inc()
	if r.Fallback {
		s.Metrics.RiskFallbacks.Inc()
		slog.Warn("risk classifier fell back to baseline",
			"tenant_id", a.TenantID,
			"appointment_id", a.ID,
			"reason", r.FallbackReason,
			"probability", r.Probability,
		)
	}
}

// invalidate drops the cached snapshot for the month containing at. A failure leaves the
// snapshot stale until its TTL runs out, so it is logged rather than returned.
func (s *Service) invalidate(ctx context.Context, tenantID uuid.UUID, at time.Time) {
	period := models.PeriodOf(at)
	if err := s.Dashboard.Invalidate(context.WithoutCancel(ctx), tenantID, period); err != nil {
		slog.Warn("failed to invalidate dashboard snapshot", "tenant_id", tenantID, "period", period.String(), "error", err)
	}
}

func (s *Service) remind(ctx context.Context, a *models.Appointment, contact models.ContactInfo) bool {
	err := s.Dispatcher.Dispatch(ctx, notify.Reminder{
		AppointmentID: a.ID,
		TenantID:      a.TenantID,
		Contact:       contact,
		Tier:          a.RiskTier,
		Probability:   a.RiskProbability,
		ScheduledTime: a.ScheduledTime,
		RequestedAt:   s.now(),
	})
	if err != nil {
		s.Metrics.RemindersTotal.WithLabelValues("failed").Inc()
		slog.Warn("reminder dispatch failed", "tenant_id", a.TenantID, "appointment_id", a.ID, "dispatcher", s.Dispatcher.Name(), "error", err)
		return false
	}
	s.Metrics.RemindersTotal.WithLabelValues("dispatched").Inc()
	return true
}

func isStatus(s string) bool {
	switch s {
	case models.AppointmentScheduled, models.AppointmentConfirmed, models.AppointmentCompleted,
		models.AppointmentCancelled, models.AppointmentNoShow:
		return true
	default:
		return false
	}
}
