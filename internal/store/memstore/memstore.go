// Package memstore is an in-memory store.Store used by service tests and local development.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// Store keeps every entity in maps guarded by one lock. Quota counters live in
// Counters, which locks per shard so tenants never contend with each other.
type Store struct {
	mu           sync.RWMutex
	tenants      map[uuid.UUID]*models.Tenant
	keys         map[uuid.UUID]*models.APIKey
	providers    map[uuid.UUID]*models.Provider
	patients     map[uuid.UUID]*models.Patient
	appointments map[uuid.UUID]*models.Appointment

	*Counters
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tenants:      make(map[uuid.UUID]*models.Tenant),
		keys:         make(map[uuid.UUID]*models.APIKey),
		providers:    make(map[uuid.UUID]*models.Provider),
		patients:     make(map[uuid.UUID]*models.Patient),
		appointments: make(map[uuid.UUID]*models.Appointment),
		Counters:     NewCounters(),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Ping(_ context.Context) error { return nil }

// --- Tenants ---

func (s *Store) CreateTenant(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *Store) DeleteTenant(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.tenants, id)
	return nil
}

func (s *Store) GetTenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) TransitionTenant(_ context.Context, id uuid.UUID, fromStatus string, u store.TenantTransition) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if t.Status != fromStatus {
		return nil, store.ErrConflict
	}
	t.Status = u.Status
	if u.PlanName != "" {
		t.PlanName = u.PlanName
	}
	if u.ActivatedAt != nil {
		t.ActivatedAt = u.ActivatedAt
	}
	if u.CancelledAt != nil {
		t.CancelledAt = u.CancelledAt
	}
	t.UpdatedAt = u.At
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateTenantSettings(_ context.Context, id uuid.UUID, set store.TenantSettings) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	t.BaselineNoShowRate = set.BaselineNoShowRate
	t.AvgAppointmentValue = set.AvgAppointmentValue
	if set.Timezone != "" {
		t.Timezone = set.Timezone
	}
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

// --- API Keys ---

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *Store) ListAPIKeys(_ context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.TenantID == tenantID && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.TenantID != tenantID || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}

// --- Providers & Patients ---

func (s *Store) CreateProvider(_ context.Context, p *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *p
	s.providers[p.ID] = &cp
	return nil
}

func (s *Store) GetProvider(_ context.Context, tenantID, id uuid.UUID) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok || p.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) DeactivateProvider(_ context.Context, tenantID, id uuid.UUID, at time.Time) (*models.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok || p.TenantID != tenantID || !p.Active {
		return nil, store.ErrNotFound
	}
	p.Active = false
	p.DeactivatedAt = &at
	p.UpdatedAt = at
	cp := *p
	return &cp, nil
}

func (s *Store) CreatePatient(_ context.Context, p *models.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.ID]; ok {
		return store.ErrDuplicateKey
	}
	cp := *p
	s.patients[p.ID] = &cp
	return nil
}

func (s *Store) GetPatient(_ context.Context, tenantID, id uuid.UUID) (*models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok || p.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// --- Appointments ---

func (s *Store) CreateAppointment(_ context.Context, a *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[a.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.appointments[a.ID] = copyAppointment(a)
	return nil
}

func (s *Store) GetAppointment(_ context.Context, tenantID, id uuid.UUID) (*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok || a.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return copyAppointment(a), nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, tenantID, id uuid.UUID, fromStatus, toStatus string, at time.Time) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	if a.Status != fromStatus {
		return nil, store.ErrConflict
	}
	a.Status = toStatus
	a.UpdatedAt = at
	switch toStatus {
	case models.AppointmentConfirmed:
		a.ConfirmedAt = &at
	case models.AppointmentCompleted:
		a.CompletedAt = &at
	case models.AppointmentCancelled:
		a.CancelledAt = &at
	}
	return copyAppointment(a), nil
}

func (s *Store) UpdateAppointmentRisk(_ context.Context, tenantID, id uuid.UUID, r store.RiskUpdate) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	if models.IsTerminal(a.Status) {
		return nil, store.ErrConflict
	}
	a.RiskProbability = r.Probability
	a.RiskTier = r.Tier
	a.RiskFallback = r.Fallback
	a.RiskFactors = copyFactors(r.Factors)
	a.RiskScoredAt = r.ScoredAt
	a.UpdatedAt = r.ScoredAt
	return copyAppointment(a), nil
}

func (s *Store) ListAppointments(_ context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Appointment
	for _, a := range s.appointments {
		if a.TenantID == tenantID && !a.ScheduledTime.Before(from) && a.ScheduledTime.Before(to) {
			out = append(out, copyAppointment(a))
		}
	}
	sortBySchedule(out)
	return out, nil
}

func (s *Store) ListRefreshable(_ context.Context, from, to time.Time, limit int) ([]*models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Appointment
	for _, a := range s.appointments {
		if models.IsTerminal(a.Status) {
			continue
		}
		if a.ScheduledTime.After(from) && !a.ScheduledTime.After(to) {
			out = append(out, copyAppointment(a))
		}
	}
	sortBySchedule(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PatientHistory(_ context.Context, tenantID, patientID uuid.UUID, before time.Time) (models.NoShowHistory, error) {
	return s.history(func(a *models.Appointment) bool {
		return a.TenantID == tenantID && a.PatientID == patientID && a.ScheduledTime.Before(before)
	}), nil
}

func (s *Store) ProviderHistory(_ context.Context, tenantID, providerID uuid.UUID, before time.Time) (models.NoShowHistory, error) {
	return s.history(func(a *models.Appointment) bool {
		return a.TenantID == tenantID && a.ProviderID == providerID && a.ScheduledTime.Before(before)
	}), nil
}

func (s *Store) ProviderSlotHistory(_ context.Context, q store.SlotQuery) (models.NoShowHistory, error) {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	return s.history(func(a *models.Appointment) bool {
		if a.TenantID != q.TenantID || a.ProviderID != q.ProviderID || !a.ScheduledTime.Before(q.Before) {
			return false
		}
		local := a.ScheduledTime.In(loc)
		return local.Weekday() == q.Weekday && local.Hour() == q.Hour
	}), nil
}

// history counts resolved outcomes (completed or no-show) among matching appointments.
func (s *Store) history(match func(*models.Appointment) bool) models.NoShowHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var h models.NoShowHistory
	for _, a := range s.appointments {
		if !match(a) {
			continue
		}
		switch a.Status {
		case models.AppointmentNoShow:
			h.NoShows++
			h.Resolved++
		case models.AppointmentCompleted:
			h.Resolved++
		}
	}
	return h
}

func copyAppointment(a *models.Appointment) *models.Appointment {
	cp := *a
	cp.RiskFactors = copyFactors(a.RiskFactors)
	return &cp
}

func copyFactors(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortBySchedule(as []*models.Appointment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].ScheduledTime.Equal(as[j].ScheduledTime) {
			return as[i].ID.String() < as[j].ID.String()
		}
		return as[i].ScheduledTime.Before(as[j].ScheduledTime)
	})
}
