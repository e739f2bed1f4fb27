package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/api/response"
	"github.com/kiranshivaraju/chronoguard/internal/appointment"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// Appointments is the booking service the handlers drive.
type Appointments interface {
	Create(ctx context.Context, tenantID uuid.UUID, p appointment.CreateParams) (*appointment.CreateResult, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Appointment, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status string, now time.Time) (*models.Appointment, error)
	RefreshRisk(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (*appointment.RefreshResult, error)
}

// Practice manages providers and patients.
type Practice interface {
	CreateProvider(ctx context.Context, tenantID uuid.UUID, p appointment.ProviderParams) (*models.Provider, error)
	DeactivateProvider(ctx context.Context, tenantID, id uuid.UUID) (*models.Provider, error)
	CreatePatient(ctx context.Context, tenantID uuid.UUID, p appointment.PatientParams) (*models.Patient, error)
}

// NewCreateAppointmentHandler returns an http.HandlerFunc for POST /api/v1/appointments.
func NewCreateAppointmentHandler(svc Appointments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}

		var req struct {
			ProviderID      uuid.UUID `json:"provider_id"`
			PatientID       uuid.UUID `json:"patient_id"`
			ScheduledTime   time.Time `json:"scheduled_time"`
			DurationMinutes int       `json:"duration_minutes"`
			Type            string    `json:"appointment_type"`
			Channel         string    `json:"booking_channel"`
		}
		if !decode(w, r, &req) {
			return
		}

		res, err := svc.Create(r.Context(), tid, appointment.CreateParams{
			ProviderID:      req.ProviderID,
			PatientID:       req.PatientID,
			ScheduledTime:   req.ScheduledTime,
			DurationMinutes: req.DurationMinutes,
			Type:            req.Type,
			Channel:         req.Channel,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.Created(w, map[string]any{
			"appointment":         res.Appointment,
			"risk":                res.Risk,
			"reminder_dispatched": res.ReminderDispatched,
		})
	}
}

// NewGetAppointmentHandler returns an http.HandlerFunc for GET /api/v1/appointments/{appointmentID}.
func NewGetAppointmentHandler(svc Appointments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "appointmentID")
		if !ok {
			return
		}

		a, err := svc.Get(r.Context(), tid, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, a)
	}
}

// NewUpdateStatusHandler returns an http.HandlerFunc for PATCH /api/v1/appointments/{appointmentID}/status.
func NewUpdateStatusHandler(svc Appointments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "appointmentID")
		if !ok {
			return
		}

		var req struct {
			Status string `json:"status"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.Status == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "status is required",
				map[string]string{"status": "is required"})
			return
		}

		a, err := svc.UpdateStatus(r.Context(), tid, id, req.Status, time.Now().UTC())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, a)
	}
}

// NewRefreshRiskHandler returns an http.HandlerFunc for POST /api/v1/appointments/{appointmentID}/risk.
func NewRefreshRiskHandler(svc Appointments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "appointmentID")
		if !ok {
			return
		}

		res, err := svc.RefreshRisk(r.Context(), tid, id, time.Now().UTC())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{
			"appointment":         res.Appointment,
			"risk":                res.Risk,
			"previous_tier":       res.PreviousTier,
			"reminder_dispatched": res.ReminderDispatched,
		})
	}
}

// NewCreateProviderHandler returns an http.HandlerFunc for POST /api/v1/providers.
func NewCreateProviderHandler(svc Practice) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}

		var req struct {
			Name         string   `json:"name"`
			Specialty    string   `json:"specialty"`
			BaselineRate *float64 `json:"baseline_rate"`
		}
		if !decode(w, r, &req) {
			return
		}

		p, err := svc.CreateProvider(r.Context(), tid, appointment.ProviderParams{
			Name:         req.Name,
			Specialty:    req.Specialty,
			BaselineRate: req.BaselineRate,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, p)
	}
}

// NewDeactivateProviderHandler returns an http.HandlerFunc for DELETE /api/v1/providers/{providerID}.
func NewDeactivateProviderHandler(svc Practice) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "providerID")
		if !ok {
			return
		}

		if _, err := svc.DeactivateProvider(r.Context(), tid, id); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// NewCreatePatientHandler returns an http.HandlerFunc for POST /api/v1/patients.
func NewCreatePatientHandler(svc Practice) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tid, ok := tenantID(w, r)
		if !ok {
			return
		}

		var req struct {
			FirstName        string `json:"first_name"`
			LastName         string `json:"last_name"`
			Phone            string `json:"phone"`
			Email            string `json:"email"`
			PreferredContact string `json:"preferred_contact"`
		}
		if !decode(w, r, &req) {
			return
		}

		p, err := svc.CreatePatient(r.Context(), tid, appointment.PatientParams{
			FirstName:        req.FirstName,
			LastName:         req.LastName,
			Phone:            req.Phone,
			Email:            req.Email,
			PreferredContact: req.PreferredContact,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, p)
	}
}
