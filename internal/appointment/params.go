package appointment

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

const (
	defaultDuration = 30
	minDuration     = 5
	maxDuration     = 480
)

func (p *CreateParams) normalize(now time.Time) error {
	if p.ProviderID == uuid.Nil {
		return invalid("provider_id", "is required")
	}
	if p.PatientID == uuid.Nil {
		return invalid("patient_id", "is required")
	}
	if p.ScheduledTime.IsZero() {
		return invalid("scheduled_time", "is required")
	}
	if !p.ScheduledTime.After(now) {
		return invalid("scheduled_time", "must be in the future")
	}
	p.ScheduledTime = p.ScheduledTime.UTC()

	if p.DurationMinutes == 0 {
		p.DurationMinutes = defaultDuration
	}
	if p.DurationMinutes < minDuration || p.DurationMinutes > maxDuration {
		return invalid("duration_minutes", "must be between %d and %d", minDuration, maxDuration)
	}

	if p.Type == "" {
		p.Type = models.TypeConsultation
	}
	if !models.IsAppointmentType(p.Type) {
		return invalid("appointment_type", "unknown type %q", p.Type)
	}
	if p.Channel == "" {
		p.Channel = models.ChannelPhone
	}
	if !models.IsChannel(p.Channel) {
		return invalid("booking_channel", "unknown channel %q", p.Channel)
	}
	return nil
}

// ProviderParams describes a provider to add.
type ProviderParams struct {
	Name         string
	Specialty    string
	BaselineRate *float64
}

func (p *ProviderParams) normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Specialty = strings.TrimSpace(p.Specialty)
	if p.Name == "" {
		return invalid("name", "is required")
	}
	if p.BaselineRate != nil && (*p.BaselineRate < 0 || *p.BaselineRate > 1) {
		return invalid("baseline_rate", "must be between 0 and 1")
	}
	return nil
}

// Preferred contact channels for reminders.
const (
	ContactSMS   = "sms"
	ContactEmail = "email"
	ContactPhone = "phone"
)

// PatientParams describes a patient to add.
type PatientParams struct {
	FirstName        string
	LastName         string
	Phone            string
	Email            string
	PreferredContact string
}

func (p *PatientParams) normalize() error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.TrimSpace(p.Email)

	if p.FirstName == "" {
		return invalid("first_name", "is required")
	}
	if p.LastName == "" {
		return invalid("last_name", "is required")
	}
	if p.Phone == "" {
		return invalid("phone", "is required")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return invalid("email", "is not a valid address")
		}
	}

	switch p.PreferredContact {
	case "":
		p.PreferredContact = ContactSMS
	case ContactSMS, ContactPhone:
	case ContactEmail:
		if p.Email == "" {
			return invalid("email", "is required when preferred_contact is email")
		}
	default:
		return invalid("preferred_contact", "must be one of sms, email, phone")
	}
	return nil
}
