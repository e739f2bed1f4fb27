// Package notify hands reminder requests for risky appointments to a delivery system.
// Delivery itself (SMS, email, calls) happens elsewhere.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

var (
	ErrDispatcherUnavailable = errors.New("reminder dispatcher unavailable")
	ErrCircuitOpen           = errors.New("reminder dispatch circuit open")
)

// EventReminderRequested is the event type carried by every reminder message.
const EventReminderRequested = "reminder.requested"

// Reminder asks the delivery system to contact a patient ahead of an appointment.
type Reminder struct {
	EventType     string             `json:"event_type"`
	AppointmentID uuid.UUID          `json:"appointment_id"`
	TenantID      uuid.UUID          `json:"tenant_id"`
	Contact       models.ContactInfo `json:"contact"`
	Tier          models.RiskTier    `json:"risk_tier"`
	Probability   float64            `json:"risk_probability"`
	ScheduledTime time.Time          `json:"scheduled_time"`
	RequestedAt   time.Time          `json:"requested_at"`
}

// Dispatcher delivers reminder requests. Implementations must be safe for concurrent use.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, r Reminder) error
	Close() error
}
