package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AppointmentScheduled = "scheduled"
	AppointmentConfirmed = "confirmed"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no_show"
)

const (
	TypeConsultation = "consultation"
	TypeFollowUp     = "follow_up"
	TypeProcedure    = "procedure"
	TypeCheckup      = "checkup"
	TypeEmergency    = "emergency"
	TypeTelehealth   = "telehealth"
)

const (
	ChannelPhone    = "phone"
	ChannelOnline   = "online"
	ChannelWalkIn   = "walk_in"
	ChannelApp      = "app"
	ChannelReferral = "referral"
)

// RiskTier is a coarse bucket derived from a no-show probability.
// Tiers are only ever produced by risk.TierFor.
type RiskTier string

const (
	TierLow    RiskTier = "low"
	TierMedium RiskTier = "medium"
	TierHigh   RiskTier = "high"
)

// Appointment is a booked slot. BookingProbability and BookingTier are captured at creation
// and never change; RiskProbability and RiskTier may be refreshed until the slot passes.
type Appointment struct {
	ID                 uuid.UUID          `db:"id"                  json:"id"`
	TenantID           uuid.UUID          `db:"tenant_id"           json:"tenant_id"`
	ProviderID         uuid.UUID          `db:"provider_id"         json:"provider_id"`
	PatientID          uuid.UUID          `db:"patient_id"          json:"patient_id"`
	ScheduledTime      time.Time          `db:"scheduled_time"      json:"scheduled_time"`
	DurationMinutes    int                `db:"duration_minutes"    json:"duration_minutes"`
	Type               string             `db:"appointment_type"    json:"appointment_type"`
	Channel            string             `db:"booking_channel"     json:"booking_channel"`
	Status             string             `db:"status"              json:"status"`
	RiskProbability    float64            `db:"risk_probability"    json:"risk_probability"`
	RiskTier           RiskTier           `db:"risk_tier"           json:"risk_tier"`
	BookingProbability float64            `db:"booking_probability" json:"booking_probability"`
	BookingTier        RiskTier           `db:"booking_tier"        json:"booking_tier"`
	RiskFallback       bool               `db:"risk_fallback"       json:"risk_fallback"`
	RiskFactors        map[string]float64 `db:"risk_factors"        json:"risk_factors,omitempty"`
	RiskScoredAt       time.Time          `db:"risk_scored_at"      json:"risk_scored_at"`
	ConfirmedAt        *time.Time         `db:"confirmed_at"        json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time         `db:"completed_at"        json:"completed_at,omitempty"`
	CancelledAt        *time.Time         `db:"cancelled_at"        json:"cancelled_at,omitempty"`
	CreatedAt          time.Time          `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at"          json:"updated_at"`
}

// IsTerminal reports whether the status can no longer change.
func IsTerminal(status string) bool {
	switch status {
	case AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
		return true
	default:
		return false
	}
}

// IsAppointmentType reports whether t is a known appointment type.
func IsAppointmentType(t string) bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeProcedure, TypeCheckup, TypeEmergency, TypeTelehealth:
		return true
	default:
		return false
	}
}

// IsChannel reports whether c is a known booking channel.
func IsChannel(c string) bool {
	switch c {
	case ChannelPhone, ChannelOnline, ChannelWalkIn, ChannelApp, ChannelReferral:
		return true
	default:
		return false
	}
}

// NoShowHistory is the outcome history used to derive historical no-show rates.
type NoShowHistory struct {
	NoShows  int `json:"no_shows"`
	Resolved int `json:"resolved"`
}

// Rate returns the no-show rate, or nil when there is no resolved history.
func (h NoShowHistory) Rate() *float64 {
	if h.Resolved <= 0 {
		return nil
	}
	r := float64(h.NoShows) / float64(h.Resolved)
	return &r
}
