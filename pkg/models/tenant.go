// Package models contains shared data models used across the ChronoGuard codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses. Transitions between them are owned by the subscription package.
const (
	StatusTrial     = "trial"
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// Tenant represents a subscribing practice. Every other entity belongs to a tenant,
// and the tenant is the unit of quota and plan isolation.
type Tenant struct {
	ID                  uuid.UUID  `db:"id"                    json:"id"`
	Name                string     `db:"name"                  json:"name"`
	PlanName            string     `db:"plan_name"             json:"plan_name"`
	Status              string     `db:"status"                json:"status"`
	TrialStart          time.Time  `db:"trial_start"           json:"trial_start"`
	TrialEnd            time.Time  `db:"trial_end"             json:"trial_end"`
	BaselineNoShowRate  *float64   `db:"baseline_no_show_rate" json:"baseline_no_show_rate,omitempty"`
	AvgAppointmentValue *float64   `db:"avg_appointment_value" json:"avg_appointment_value,omitempty"`
	Timezone            string     `db:"timezone"              json:"timezone"`
	ActivatedAt         *time.Time `db:"activated_at"          json:"activated_at,omitempty"`
	CancelledAt         *time.Time `db:"cancelled_at"          json:"cancelled_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at"            json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"            json:"updated_at"`
}
