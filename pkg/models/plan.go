package models

// Unlimited is the catalog sentinel for plan limits that are never enforced.
const Unlimited = 999999

// Plan is an immutable catalog entry. Plans differ only in data, never in code paths.
type Plan struct {
	Name                    string   `json:"name"`
	DisplayName             string   `json:"display_name"`
	Price                   float64  `json:"price"`
	MaxProviders            int      `json:"max_providers"`
	MaxAppointmentsPerMonth int      `json:"max_appointments_per_month"`
	Features                []string `json:"features"`
}

// HasFeature reports whether the plan includes the named feature.
func (p Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Limit returns the plan limit for a resource kind.
func (p Plan) Limit(kind ResourceKind) int {
	switch kind {
	case ResourceProvider:
		return p.MaxProviders
	case ResourceAppointment:
		return p.MaxAppointmentsPerMonth
	default:
		return 0
	}
}
