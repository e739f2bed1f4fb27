package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider is a clinician whose schedule belongs to a tenant.
type Provider struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	TenantID      uuid.UUID  `db:"tenant_id"      json:"tenant_id"`
	Name          string     `db:"name"           json:"name"`
	Specialty     string     `db:"specialty"      json:"specialty,omitempty"`
	Active        bool       `db:"active"         json:"active"`
	BaselineRate  *float64   `db:"baseline_rate"  json:"baseline_rate,omitempty"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}

// Patient is a person who books appointments with a tenant.
type Patient struct {
	ID               uuid.UUID `db:"id"                json:"id"`
	TenantID         uuid.UUID `db:"tenant_id"         json:"tenant_id"`
	FirstName        string    `db:"first_name"        json:"first_name"`
	LastName         string    `db:"last_name"         json:"last_name"`
	Phone            string    `db:"phone"             json:"phone"`
	Email            string    `db:"email"             json:"email,omitempty"`
	PreferredContact string    `db:"preferred_contact" json:"preferred_contact"`
	CreatedAt        time.Time `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"        json:"updated_at"`
}

// ContactInfo is what a reminder needs to reach a patient.
type ContactInfo struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email,omitempty"`
	PreferredContact string `json:"preferred_contact"`
}

// Contact returns the patient's reminder contact details.
func (p *Patient) Contact() ContactInfo {
	return ContactInfo{
		Name:             p.FirstName + " " + p.LastName,
		Phone:            p.Phone,
		Email:            p.Email,
		PreferredContact: p.PreferredContact,
	}
}
