package risk

import "github.com/kiranshivaraju/chronoguard/pkg/models"

// Tier cut points. These are the only thresholds in the codebase; every caller that needs
// a tier label gets it from TierFor or from a stored appointment.
const (
	MediumThreshold = 0.25
	HighThreshold   = 0.40
)

// tierTable is ordered from the highest floor down; the first row whose floor is reached wins.
var tierTable = [...]struct {
	floor float64
	tier  models.RiskTier
}{
	{HighThreshold, models.TierHigh},
	{MediumThreshold, models.TierMedium},
}

// TierFor maps a probability onto its risk tier. It is total: NaN and values
// below the medium threshold are low.
func TierFor(p float64) models.RiskTier {
	for _, row := range tierTable {
		if p >= row.floor {
			return row.tier
		}
	}
	return models.TierLow
}

// TierRank orders tiers for comparisons (low < medium < high).
func TierRank(t models.RiskTier) int {
	switch t {
	case models.TierHigh:
		return 2
	case models.TierMedium:
		return 1
	default:
		return 0
	}
}

// ReminderWorthy reports whether an appointment in tier t merits a reminder.
func ReminderWorthy(t models.RiskTier) bool {
	return t == models.TierHigh
}

// EarnsRevenueCredit reports whether an appointment booked in tier t counts
// toward revenue saved when it is kept.
func EarnsRevenueCredit(t models.RiskTier) bool {
	return TierRank(t) >= TierRank(models.TierMedium)
}
