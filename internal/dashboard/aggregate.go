package dashboard

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/chronoguard/internal/risk"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// Compute aggregates a period's appointments into a snapshot. It is a pure function
// of its arguments. Appointments outside period are ignored.
//
// Open appointments (scheduled or confirmed) still in the future count as upcoming and
// stay out of the no-show denominator; open appointments already in the past count
// in the denominator as unresolved outcomes. Revenue saved credits each completed
// appointment whose booking-time tier earned credit with avgValue times its
// booking-time probability.
func Compute(tenantID uuid.UUID, period models.Period, appts []*models.Appointment, avgValue float64, now time.Time) models.MetricsSnapshot {
	snap := models.MetricsSnapshot{
		TenantID:            tenantID,
		Period:              period.String(),
		AsOf:                now.UTC().Truncate(time.Minute),
		AvgAppointmentValue: avgValue,
	}

	start, end := period.Start(), period.End()
	patients := make(map[uuid.UUID]struct{})
	var bookingSum, riskSum, revenue float64

	for _, a := range appts {
		if a.ScheduledTime.Before(start) || !a.ScheduledTime.Before(end) {
			continue
		}
		snap.TotalAppointments++
		bookingSum += a.BookingProbability
		riskSum += a.RiskProbability

		switch a.RiskTier {
		case models.TierHigh:
			snap.RiskBuckets.High++
		case models.TierMedium:
			snap.RiskBuckets.Medium++
		default:
			snap.RiskBuckets.Low++
		}

		if a.Status != models.AppointmentCancelled {
			patients[a.PatientID] = struct{}{}
		}

		switch a.Status {
		case models.AppointmentScheduled, models.AppointmentConfirmed:
			if a.Status == models.AppointmentScheduled {
				snap.Scheduled++
			} else {
				snap.Confirmed++
			}
			if a.ScheduledTime.After(now) {
				snap.Upcoming++
				if a.RiskTier == models.TierHigh {
					snap.HighRiskUpcoming++
				}
			} else {
				snap.CompletedOrPast++
			}
		case models.AppointmentCompleted:
			snap.Completed++
			snap.CompletedOrPast++
			if risk.EarnsRevenueCredit(a.BookingTier) {
				revenue += avgValue * a.BookingProbability
			}
		case models.AppointmentNoShow:
			snap.NoShows++
			snap.CompletedOrPast++
		case models.AppointmentCancelled:
			snap.Cancelled++
		}
	}

	if snap.CompletedOrPast > 0 {
		snap.NoShowRate = float64(snap.NoShows) / float64(snap.CompletedOrPast)
	}
	if snap.TotalAppointments > 0 {
		snap.AvgBookingProbability = bookingSum / float64(snap.TotalAppointments)
		snap.AvgRiskProbability = riskSum / float64(snap.TotalAppointments)
	}
	snap.ActivePatients = len(patients)
	snap.RevenueSaved = roundCents(revenue)
	return snap
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
