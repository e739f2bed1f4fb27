package dashboard

import (
	"fmt"

	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

const (
	// optimizationThreshold is the average current risk above which a schedule review is suggested.
	optimizationThreshold = 0.15
	// capacityFloor is the number of upcoming appointments below which open slots are flagged.
	capacityFloor = 20
	// quotaWarnRatio is the share of the monthly quota at which an upgrade is suggested.
	quotaWarnRatio = 0.9
)

// Recommendations derives actionable hints from a snapshot, most urgent first.
func Recommendations(s models.MetricsSnapshot) []models.Recommendation {
	recs := []models.Recommendation{}

	if s.HighRiskUpcoming > 0 {
		recs = append(recs, models.Recommendation{
			Type:     "high_risk_alert",
			Priority: "high",
			Message:  fmt.Sprintf("%d upcoming appointments have high no-show risk", s.HighRiskUpcoming),
			Action:   "Send additional reminders or consider overbooking",
		})
	}

	q := s.AppointmentQuota
	if !q.Unlimited && q.Limit > 0 && float64(q.Used) >= quotaWarnRatio*float64(q.Limit) {
		recs = append(recs, models.Recommendation{
			Type:     "quota_alert",
			Priority: "high",
			Message:  fmt.Sprintf("%d of %d monthly appointments used", q.Used, q.Limit),
			Action:   "Upgrade your plan to keep booking this month",
		})
	}

	if s.TotalAppointments > 0 && s.AvgRiskProbability > optimizationThreshold {
		recs = append(recs, models.Recommendation{
			Type:     "optimization_opportunity",
			Priority: "medium",
			Message:  fmt.Sprintf("Average no-show probability is %.1f%%", s.AvgRiskProbability*100),
			Action:   "Review high-risk slots and confirm appointments early",
		})
	}

	if s.Upcoming < capacityFloor {
		recs = append(recs, models.Recommendation{
			Type:     "capacity_alert",
			Priority: "low",
			Message:  fmt.Sprintf("Only %d upcoming appointments scheduled", s.Upcoming),
			Action:   "Open slots for same-day bookings or promote availability",
		})
	}

	return recs
}
