package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// DBTX is the subset of *pgxpool.Pool the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- Tenants ---

const tenantColumns = `id, name, plan_name, status, trial_start, trial_end, baseline_no_show_rate,
	avg_appointment_value, timezone, activated_at, cancelled_at, created_at, updated_at`

func scanTenant(row rowScanner) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.PlanName, &t.Status, &t.TrialStart, &t.TrialEnd,
		&t.BaselineNoShowRate, &t.AvgAppointmentValue, &t.Timezone, &t.ActivatedAt,
		&t.CancelledAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenants (id, name, plan_name, status, trial_start, trial_end, baseline_no_show_rate,
		   avg_appointment_value, timezone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Name, t.PlanName, t.Status, t.TrialStart, t.TrialEnd, t.BaselineNoShowRate,
		t.AvgAppointmentValue, t.Timezone, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) TransitionTenant(ctx context.Context, id uuid.UUID, fromStatus string, u TenantTransition) (*models.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`UPDATE tenants SET
		   status = $3,
		   plan_name = COALESCE(NULLIF($4, ''), plan_name),
		   activated_at = COALESCE($5, activated_at),
		   cancelled_at = COALESCE($6, cancelled_at),
		   updated_at = $7
		 WHERE id = $1 AND status = $2
		 RETURNING `+tenantColumns,
		id, fromStatus, u.Status, u.PlanName, u.ActivatedAt, u.CancelledAt, u.At))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missOrConflict(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, id)
	}
	if err != nil {
		return nil, fmt.Errorf("transition tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTenantSettings(ctx context.Context, id uuid.UUID, set TenantSettings) (*models.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`UPDATE tenants SET
		   baseline_no_show_rate = $2,
		   avg_appointment_value = $3,
		   timezone = COALESCE(NULLIF($4, ''), timezone),
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+tenantColumns,
		id, set.BaselineNoShowRate, set.AvgAppointmentValue, set.Timezone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update tenant settings: %w", err)
	}
	return t, nil
}

// missOrConflict tells a missing row apart from a failed precondition after a
// conditional update matched nothing.
func (s *PostgresStore) missOrConflict(ctx context.Context, existsQuery string, args ...any) error {
	var exists bool
	if err := s.db.QueryRow(ctx, existsQuery, args...).Scan(&exists); err != nil {
		return fmt.Errorf("check existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	return s.listAPIKeys(ctx, "get api key by prefix",
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	return s.listAPIKeys(ctx, "list api keys",
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
}

func (s *PostgresStore) listAPIKeys(ctx context.Context, op, query string, args ...any) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Providers ---

const providerColumns = `id, tenant_id, name, specialty, active, baseline_rate, deactivated_at, created_at, updated_at`

func scanProvider(row rowScanner) (*models.Provider, error) {
	var p models.Provider
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Specialty, &p.Active, &p.BaselineRate,
		&p.DeactivatedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreateProvider(ctx context.Context, p *models.Provider) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO providers (id, tenant_id, name, specialty, active, baseline_rate, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.TenantID, p.Name, p.Specialty, p.Active, p.BaselineRate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create provider: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProvider(ctx context.Context, tenantID, id uuid.UUID) (*models.Provider, error) {
	p, err := scanProvider(s.db.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) DeactivateProvider(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (*models.Provider, error) {
	p, err := scanProvider(s.db.QueryRow(ctx,
		`UPDATE providers SET active = FALSE, deactivated_at = $3, updated_at = $3
		 WHERE id = $1 AND tenant_id = $2 AND active
		 RETURNING `+providerColumns, id, tenantID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deactivate provider: %w", err)
	}
	return p, nil
}

// --- Patients ---

func (s *PostgresStore) CreatePatient(ctx context.Context, p *models.Patient) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO patients (id, tenant_id, first_name, last_name, phone, email, preferred_contact, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.TenantID, p.FirstName, p.LastName, p.Phone, p.Email, p.PreferredContact, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPatient(ctx context.Context, tenantID, id uuid.UUID) (*models.Patient, error) {
	var p models.Patient
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, first_name, last_name, phone, email, preferred_contact, created_at, updated_at
		 FROM patients WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&p.ID, &p.TenantID, &p.FirstName, &p.LastName, &p.Phone, &p.Email, &p.PreferredContact,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

// --- Appointments ---

const appointmentColumns = `id, tenant_id, provider_id, patient_id, scheduled_time, duration_minutes,
	appointment_type, booking_channel, status, risk_probability, risk_tier, booking_probability,
	booking_tier, risk_fallback, risk_factors, risk_scored_at, confirmed_at, completed_at,
	cancelled_at, created_at, updated_at`

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var a models.Appointment
	var riskTier, bookingTier string
	if err := row.Scan(&a.ID, &a.TenantID, &a.ProviderID, &a.PatientID, &a.ScheduledTime,
		&a.DurationMinutes, &a.Type, &a.Channel, &a.Status, &a.RiskProbability, &riskTier,
		&a.BookingProbability, &bookingTier, &a.RiskFallback, &a.RiskFactors, &a.RiskScoredAt,
		&a.ConfirmedAt, &a.CompletedAt, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.RiskTier = models.RiskTier(riskTier)
	a.BookingTier = models.RiskTier(bookingTier)
	return &a, nil
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	factors := a.RiskFactors
	if factors == nil {
		factors = map[string]float64{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO appointments (id, tenant_id, provider_id, patient_id, scheduled_time, duration_minutes,
		   appointment_type, booking_channel, status, risk_probability, risk_tier, booking_probability,
		   booking_tier, risk_fallback, risk_factors, risk_scored_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		a.ID, a.TenantID, a.ProviderID, a.PatientID, a.ScheduledTime, a.DurationMinutes,
		a.Type, a.Channel, a.Status, a.RiskProbability, string(a.RiskTier), a.BookingProbability,
		string(a.BookingTier), a.RiskFallback, factors, a.RiskScoredAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAppointment(ctx context.Context, tenantID, id uuid.UUID) (*models.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAppointmentStatus(ctx context.Context, tenantID, id uuid.UUID, fromStatus, toStatus string, at time.Time) (*models.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRow(ctx,
		`UPDATE appointments SET
		   status = $4,
		   updated_at = $5,
		   confirmed_at = CASE WHEN $4 = 'confirmed' THEN $5 ELSE confirmed_at END,
		   completed_at = CASE WHEN $4 = 'completed' THEN $5 ELSE completed_at END,
		   cancelled_at = CASE WHEN $4 = 'cancelled' THEN $5 ELSE cancelled_at END
		 WHERE id = $1 AND tenant_id = $2 AND status = $3
		 RETURNING `+appointmentColumns,
		id, tenantID, fromStatus, toStatus, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missOrConflict(ctx,
			`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1 AND tenant_id = $2)`, id, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAppointmentRisk(ctx context.Context, tenantID, id uuid.UUID, r RiskUpdate) (*models.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRow(ctx,
		`UPDATE appointments SET
		   risk_probability = $3,
		   risk_tier = $4,
		   risk_fallback = $5,
		   risk_factors = $6,
		   risk_scored_at = $7,
		   updated_at = $7
		 WHERE id = $1 AND tenant_id = $2 AND status IN ('scheduled', 'confirmed')
		 RETURNING `+appointmentColumns,
		id, tenantID, r.Probability, string(r.Tier), r.Fallback, r.Factors, r.ScoredAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missOrConflict(ctx,
			`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1 AND tenant_id = $2)`, id, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment risk: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.Appointment, error) {
	return s.listAppointments(ctx, "list appointments",
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE tenant_id = $1 AND scheduled_time >= $2 AND scheduled_time < $3
		 ORDER BY scheduled_time, id`, tenantID, from, to)
}

func (s *PostgresStore) ListRefreshable(ctx context.Context, from, to time.Time, limit int) ([]*models.Appointment, error) {
	if limit <= 0 {
		limit = 500
	}
	return s.listAppointments(ctx, "list refreshable appointments",
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE status IN ('scheduled', 'confirmed') AND scheduled_time > $1 AND scheduled_time <= $2
		 ORDER BY scheduled_time, id LIMIT $3`, from, to, limit)
}

func (s *PostgresStore) listAppointments(ctx context.Context, op, query string, args ...any) ([]*models.Appointment, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const historySelect = `SELECT
	COUNT(*) FILTER (WHERE status = 'no_show'),
	COUNT(*) FILTER (WHERE status IN ('completed', 'no_show'))
	FROM appointments`

func (s *PostgresStore) PatientHistory(ctx context.Context, tenantID, patientID uuid.UUID, before time.Time) (models.NoShowHistory, error) {
	return s.history(ctx, "patient history",
		historySelect+` WHERE tenant_id = $1 AND patient_id = $2 AND scheduled_time < $3`,
		tenantID, patientID, before)
}

func (s *PostgresStore) ProviderHistory(ctx context.Context, tenantID, providerID uuid.UUID, before time.Time) (models.NoShowHistory, error) {
	return s.history(ctx, "provider history",
		historySelect+` WHERE tenant_id = $1 AND provider_id = $2 AND scheduled_time < $3`,
		tenantID, providerID, before)
}

func (s *PostgresStore) ProviderSlotHistory(ctx context.Context, q SlotQuery) (models.NoShowHistory, error) {
	tz := "UTC"
	if q.Location != nil {
		tz = q.Location.String()
	}
	return s.history(ctx, "provider slot history",
		historySelect+` WHERE tenant_id = $1 AND provider_id = $2 AND scheduled_time < $3
		   AND EXTRACT(DOW FROM scheduled_time AT TIME ZONE $4) = $5
		   AND EXTRACT(HOUR FROM scheduled_time AT TIME ZONE $4) = $6`,
		q.TenantID, q.ProviderID, q.Before, tz, int(q.Weekday), q.Hour)
}

func (s *PostgresStore) history(ctx context.Context, op, query string, args ...any) (models.NoShowHistory, error) {
	var h models.NoShowHistory
	if err := s.db.QueryRow(ctx, query, args...).Scan(&h.NoShows, &h.Resolved); err != nil {
		return models.NoShowHistory{}, fmt.Errorf("%s: %w", op, err)
	}
	return h, nil
}

// --- Quota Counters ---

// IncrementBounded relies on ON CONFLICT row locking: the WHERE clause is evaluated
// against the latest committed count, so concurrent callers serialize on the row.
func (s *PostgresStore) IncrementBounded(ctx context.Context, key models.CounterKey, limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrLimitReached
	}
	var count int
	err := s.db.QueryRow(ctx,
		`INSERT INTO quota_counters (tenant_id, resource, period, count, updated_at)
		 VALUES ($1, $2, $3, 1, NOW())
		 ON CONFLICT (tenant_id, resource, period) DO UPDATE
		   SET count = quota_counters.count + 1, updated_at = NOW()
		   WHERE quota_counters.count < $4
		 RETURNING count`,
		key.TenantID, string(key.Resource), key.Period, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrLimitReached
	}
	if err != nil {
		return 0, fmt.Errorf("increment quota counter: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) IncrementUnbounded(ctx context.Context, key models.CounterKey) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`INSERT INTO quota_counters (tenant_id, resource, period, count, updated_at)
		 VALUES ($1, $2, $3, 1, NOW())
		 ON CONFLICT (tenant_id, resource, period) DO UPDATE
		   SET count = quota_counters.count + 1, updated_at = NOW()
		 RETURNING count`,
		key.TenantID, string(key.Resource), key.Period).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment quota counter: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Decrement(ctx context.Context, key models.CounterKey) error {
	_, err := s.db.Exec(ctx,
		`UPDATE quota_counters SET count = count - 1, updated_at = NOW()
		 WHERE tenant_id = $1 AND resource = $2 AND period = $3 AND count > 0`,
		key.TenantID, string(key.Resource), key.Period)
	if err != nil {
		return fmt.Errorf("decrement quota counter: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCounter(ctx context.Context, key models.CounterKey) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT count FROM quota_counters WHERE tenant_id = $1 AND resource = $2 AND period = $3`,
		key.TenantID, string(key.Resource), key.Period).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get quota counter: %w", err)
	}
	return count, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
