// Package risk scores appointments for no-show likelihood.
//
// Scoring is a pure function of its inputs: the same Features always yield the same
// Result, so a stored score can be reproduced and explained later.
package risk

import (
	"math"
	"strings"
	"time"

	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// Factor names used in Result.Factors.
const (
	FactorIntercept    = "intercept"
	FactorPatientRate  = "patient_no_show_rate"
	FactorProviderRate = "provider_slot_no_show_rate"
	FactorLeadTime     = "lead_time"
	FactorType         = "appointment_type"
	FactorWeekday      = "day_of_week"
	FactorHour         = "time_of_day"
	FactorBaseline     = "baseline"
)

// Features are the classifier inputs. Pointer fields are nil when the history is unknown.
type Features struct {
	PatientNoShowRate      *float64
	ProviderSlotNoShowRate *float64
	LeadTime               time.Duration
	AppointmentType        string
	// ScheduledTime should already be in the tenant's local time zone.
	ScheduledTime time.Time
	// Baseline is returned when a required feature is missing.
	Baseline float64
}

// Result is the outcome of scoring one appointment.
type Result struct {
	Probability    float64            `json:"probability"`
	Tier           models.RiskTier    `json:"tier"`
	Factors        map[string]float64 `json:"factors"`
	Fallback       bool               `json:"fallback"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
}

// Weights holds the coefficients of the additive model.
type Weights struct {
	Intercept       float64
	PatientRate     float64
	ProviderRate    float64
	LeadTimePerDay  float64
	LeadTimeCapDays int
	Type            map[string]float64
	Weekday         map[time.Weekday]float64
	Morning         float64 // 06:00-11:59
	Afternoon       float64 // 12:00-16:59
	Evening         float64 // 17:00 onward and before 06:00
}

// DefaultWeights are the production coefficients.
var DefaultWeights = Weights{
	Intercept:       0.05,
	PatientRate:     0.50,
	ProviderRate:    0.25,
	LeadTimePerDay:  0.005,
	LeadTimeCapDays: 14,
	Type: map[string]float64{
		models.TypeConsultation: 0,
		models.TypeFollowUp:     0.03,
		models.TypeProcedure:    -0.03,
		models.TypeCheckup:      0.02,
		models.TypeEmergency:    -0.05,
		models.TypeTelehealth:   0.01,
	},
	Weekday: map[time.Weekday]float64{
		time.Monday:   0.02,
		time.Friday:   0.03,
		time.Saturday: 0.01,
		time.Sunday:   0.01,
	},
	Morning:   0,
	Afternoon: 0.01,
	Evening:   0.03,
}

// Classifier scores appointments with a fixed set of weights.
type Classifier struct {
	weights Weights
}

// NewClassifier returns a Classifier using w.
func NewClassifier(w Weights) *Classifier {
	return &Classifier{weights: w}
}

// Score computes the no-show probability for f. When a required feature is missing
// it returns the baseline with Fallback set instead of failing.
func (c *Classifier) Score(f Features) Result {
	if reason := missingFeature(f, c.weights); reason != "" {
		p := clamp(f.Baseline)
		return Result{
			Probability:    p,
			Tier:           TierFor(p),
			Factors:        map[string]float64{FactorBaseline: p},
			Fallback:       true,
			FallbackReason: reason,
		}
	}

	w := c.weights
	factors := map[string]float64{
		FactorIntercept:    w.Intercept,
		FactorPatientRate:  w.PatientRate * clamp(*f.PatientNoShowRate),
		FactorProviderRate: w.ProviderRate * clamp(*f.ProviderSlotNoShowRate),
		FactorLeadTime:     w.LeadTimePerDay * float64(leadDays(f.LeadTime, w.LeadTimeCapDays)),
		FactorType:         w.Type[f.AppointmentType],
		FactorWeekday:      w.Weekday[f.ScheduledTime.Weekday()],
		FactorHour:         hourWeight(w, f.ScheduledTime.Hour()),
	}

	// Summed in a fixed order so the result does not depend on map iteration.
	sum := 0.0
	for _, name := range factorOrder {
		sum += factors[name]
	}

	p := clamp(sum)
	return Result{
		Probability: p,
		Tier:        TierFor(p),
		Factors:     factors,
	}
}

var factorOrder = []string{
	FactorIntercept,
	FactorPatientRate,
	FactorProviderRate,
	FactorLeadTime,
	FactorType,
	FactorWeekday,
	FactorHour,
}

// ResolveBaseline picks the fallback probability: the provider's baseline when set,
// then the tenant's, then the configured default.
func ResolveBaseline(provider, tenant *float64, def float64) float64 {
	if provider != nil {
		return clamp(*provider)
	}
	if tenant != nil {
		return clamp(*tenant)
	}
	return clamp(def)
}

func missingFeature(f Features, w Weights) string {
	var missing []string
	if f.PatientNoShowRate == nil {
		missing = append(missing, FactorPatientRate)
	}
	if f.ProviderSlotNoShowRate == nil {
		missing = append(missing, FactorProviderRate)
	}
	if _, ok := w.Type[f.AppointmentType]; !ok {
		missing = append(missing, FactorType)
	}
	if f.ScheduledTime.IsZero() {
		missing = append(missing, "scheduled_time")
	}
	if len(missing) == 0 {
		return ""
	}
	return "missing " + strings.Join(missing, ", ")
}

func leadDays(d time.Duration, capDays int) int {
	days := int(d / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	if days > capDays {
		return capDays
	}
	return days
}

func hourWeight(w Weights, hour int) float64 {
	switch {
	case hour >= 6 && hour < 12:
		return w.Morning
	case hour >= 12 && hour < 17:
		return w.Afternoon
	default:
		return w.Evening
	}
}

func clamp(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
