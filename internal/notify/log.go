package notify

import (
	"context"
	"log/slog"
)

// LogDispatcher records reminder requests in the structured log. Used when no broker is configured.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher { return &LogDispatcher{} }

func (d *LogDispatcher) Name() string { return "log" }

func (d *LogDispatcher) Dispatch(_ context.Context, r Reminder) error {
	slog.Info("reminder requested",
		"appointment_id", r.AppointmentID,
		"tenant_id", r.TenantID,
		"risk_tier", r.Tier,
		"scheduled_time", r.ScheduledTime,
		"preferred_contact", r.Contact.PreferredContact,
	)
	return nil
}

func (d *LogDispatcher) Close() error { return nil }

var _ Dispatcher = (*LogDispatcher)(nil)
