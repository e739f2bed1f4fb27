package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskBuckets counts appointments per current risk tier.
type RiskBuckets struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// MetricsSnapshot is a derived, side-effect-free aggregate for one tenant and period.
// It is never edited by hand; it is recomputed from the appointment ledger on demand.
type MetricsSnapshot struct {
	TenantID              uuid.UUID   `json:"tenant_id"`
	Period                string      `json:"period"`
	AsOf                  time.Time   `json:"as_of"`
	TotalAppointments     int         `json:"total_appointments"`
	Scheduled             int         `json:"scheduled"`
	Confirmed             int         `json:"confirmed"`
	Completed             int         `json:"completed"`
	Cancelled             int         `json:"cancelled"`
	NoShows               int         `json:"no_shows"`
	CompletedOrPast       int         `json:"completed_or_past"`
	NoShowRate            float64     `json:"no_show_rate"`
	Upcoming              int         `json:"upcoming_appointments"`
	HighRiskUpcoming      int         `json:"high_risk_appointments"`
	ActivePatients        int         `json:"active_patients"`
	RiskBuckets           RiskBuckets `json:"risk_buckets"`
	AvgBookingProbability float64     `json:"avg_booking_probability"`
	AvgRiskProbability    float64     `json:"avg_risk_probability"`
	AvgAppointmentValue   float64     `json:"avg_appointment_value"`
	RevenueSaved          float64     `json:"revenue_saved"`
	AppointmentQuota      QuotaUsage  `json:"appointment_quota"`
}

// Recommendation is an actionable hint derived from a snapshot.
type Recommendation struct {
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}
