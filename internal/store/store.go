package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned by conditional updates whose precondition no longer holds.
var ErrConflict = errors.New("concurrent modification")

// ErrLimitReached is returned by IncrementBounded when the counter is already at its limit.
var ErrLimitReached = errors.New("counter limit reached")

// Store is the data access interface. All database operations go through here.
// Consumers depend on the narrow interfaces it is composed of.
type Store interface {
	Ping(ctx context.Context) error

	TenantStore
	APIKeyStore
	ProviderStore
	PatientStore
	AppointmentStore
	CounterStore
}

type TenantStore interface {
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	// TransitionTenant applies u only if the tenant's status still equals fromStatus.
	// It returns ErrConflict when the status has moved on.
	TransitionTenant(ctx context.Context, id uuid.UUID, fromStatus string, u TenantTransition) (*models.Tenant, error)
	UpdateTenantSettings(ctx context.Context, id uuid.UUID, s TenantSettings) (*models.Tenant, error)
	// DeleteTenant removes a tenant that owns no other rows.
	DeleteTenant(ctx context.Context, id uuid.UUID) error
}

type APIKeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

type ProviderStore interface {
	CreateProvider(ctx context.Context, p *models.Provider) error
	GetProvider(ctx context.Context, tenantID, id uuid.UUID) (*models.Provider, error)
	// DeactivateProvider marks an active provider inactive. ErrNotFound covers both
	// a missing provider and one that is already inactive.
	DeactivateProvider(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (*models.Provider, error)
}

type PatientStore interface {
	CreatePatient(ctx context.Context, p *models.Patient) error
	GetPatient(ctx context.Context, tenantID, id uuid.UUID) (*models.Patient, error)
}

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, tenantID, id uuid.UUID) (*models.Appointment, error)
	// UpdateAppointmentStatus moves an appointment from fromStatus to toStatus,
	// returning ErrConflict if it is no longer in fromStatus.
	UpdateAppointmentStatus(ctx context.Context, tenantID, id uuid.UUID, fromStatus, toStatus string, at time.Time) (*models.Appointment, error)
	// UpdateAppointmentRisk rewrites the current risk fields of a non-terminal appointment.
	// Booking-time fields are never touched. ErrConflict means the appointment is terminal.
	UpdateAppointmentRisk(ctx context.Context, tenantID, id uuid.UUID, r RiskUpdate) (*models.Appointment, error)
	// ListAppointments returns a tenant's appointments scheduled in [from, to).
	ListAppointments(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.Appointment, error)
	// ListRefreshable returns non-terminal appointments across tenants scheduled in (from, to].
	ListRefreshable(ctx context.Context, from, to time.Time, limit int) ([]*models.Appointment, error)

	PatientHistory(ctx context.Context, tenantID, patientID uuid.UUID, before time.Time) (models.NoShowHistory, error)
	ProviderHistory(ctx context.Context, tenantID, providerID uuid.UUID, before time.Time) (models.NoShowHistory, error)
	ProviderSlotHistory(ctx context.Context, q SlotQuery) (models.NoShowHistory, error)
}

// CounterStore holds quota counters. Every increment is a single atomic operation.
type CounterStore interface {
	// IncrementBounded adds one unless the counter has reached limit, in which case it
	// returns ErrLimitReached and leaves the counter unchanged. Missing rows start at zero.
	IncrementBounded(ctx context.Context, key models.CounterKey, limit int) (int, error)
	IncrementUnbounded(ctx context.Context, key models.CounterKey) (int, error)
	// Decrement subtracts one, never going below zero.
	Decrement(ctx context.Context, key models.CounterKey) error
	GetCounter(ctx context.Context, key models.CounterKey) (int, error)
}

// TenantTransition is the set of fields a subscription transition writes.
type TenantTransition struct {
	Status      string
	PlanName    string
	ActivatedAt *time.Time
	CancelledAt *time.Time
	At          time.Time
}

// TenantSettings holds the optional per-practice inputs to risk and revenue figures.
// Nil fields are cleared.
type TenantSettings struct {
	BaselineNoShowRate  *float64
	AvgAppointmentValue *float64
	Timezone            string
}

type RiskUpdate struct {
	Probability float64
	Tier        models.RiskTier
	Fallback    bool
	Factors     map[string]float64
	ScoredAt    time.Time
}

// SlotQuery selects a provider's history for one weekday and hour in the tenant's time zone.
type SlotQuery struct {
	TenantID   uuid.UUID
	ProviderID uuid.UUID
	Weekday    time.Weekday
	Hour       int
	Location   *time.Location
	Before     time.Time
}
