package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResourceKind names a plan-bounded resource.
type ResourceKind string

const (
	ResourceProvider    ResourceKind = "provider"
	ResourceAppointment ResourceKind = "appointment"
)

// LivePeriod is the period key of counters that are not month-scoped.
const LivePeriod = "live"

// Period identifies a calendar month. Appointment quotas and dashboard snapshots are keyed by it.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// PeriodOf returns the UTC calendar month containing t.
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Year: u.Year(), Month: u.Month()}
}

// ParsePeriod parses a "YYYY-MM" key.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: must be YYYY-MM", s)
	}
	return PeriodOf(t), nil
}

// String returns the "YYYY-MM" key.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start is the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant after the period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// QuotaCounter is the stored consumption of one resource for one tenant and period.
type QuotaCounter struct {
	TenantID  uuid.UUID    `db:"tenant_id"  json:"tenant_id"`
	Resource  ResourceKind `db:"resource"   json:"resource"`
	Period    string       `db:"period"     json:"period"`
	Count     int          `db:"count"      json:"count"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// CounterKey addresses a single QuotaCounter row.
type CounterKey struct {
	TenantID uuid.UUID
	Resource ResourceKind
	Period   string
}

// QuotaUsage summarizes consumption against a plan limit.
type QuotaUsage struct {
	Resource  ResourceKind `json:"resource"`
	Period    string       `json:"period"`
	Used      int          `json:"used"`
	Limit     int          `json:"limit"`
	Unlimited bool         `json:"unlimited"`
	Remaining int          `json:"remaining"`
}
