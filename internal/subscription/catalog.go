package subscription

import (
	"fmt"
	"sort"

	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

// Plan names.
const (
	PlanTrial        = "trial"
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Feature slugs checked by CheckFeature.
const (
	FeatureBasicScheduling      = "basic_scheduling"
	FeatureEmailSupport         = "email_support"
	FeatureAIPredictions        = "ai_predictions"
	FeatureScheduleOptimization = "schedule_optimization"
	FeaturePrioritySupport      = "priority_support"
	FeatureAdvancedAnalytics    = "advanced_analytics"
	FeatureCustomReports        = "custom_reports"
	FeaturePhoneSupport         = "phone_support"
	FeatureMultiLocation        = "multi_location"
	FeatureAPIAccess            = "api_access"
	FeatureDedicatedSupport     = "dedicated_support"
)

var (
	trialFeatures        = []string{FeatureBasicScheduling, FeatureEmailSupport}
	starterFeatures      = append(append([]string{}, trialFeatures...), FeatureAIPredictions, FeatureScheduleOptimization, FeaturePrioritySupport)
	professionalFeatures = append(append([]string{}, starterFeatures...), FeatureAdvancedAnalytics, FeatureCustomReports, FeaturePhoneSupport)
	enterpriseFeatures   = append(append([]string{}, professionalFeatures...), FeatureMultiLocation, FeatureAPIAccess, FeatureDedicatedSupport)
)

// catalog is the complete plan table. Adding a plan is a data change only.
var catalog = map[string]models.Plan{
	PlanTrial: {
		Name:                    PlanTrial,
		DisplayName:             "Trial",
		Price:                   0,
		MaxProviders:            2,
		MaxAppointmentsPerMonth: 100,
		Features:                trialFeatures,
	},
	PlanStarter: {
		Name:                    PlanStarter,
		DisplayName:             "Starter",
		Price:                   49,
		MaxProviders:            3,
		MaxAppointmentsPerMonth: 500,
		Features:                starterFeatures,
	},
	PlanProfessional: {
		Name:                    PlanProfessional,
		DisplayName:             "Professional",
		Price:                   99,
		MaxProviders:            10,
		MaxAppointmentsPerMonth: 2000,
		Features:                professionalFeatures,
	},
	PlanEnterprise: {
		Name:                    PlanEnterprise,
		DisplayName:             "Enterprise",
		Price:                   199,
		MaxProviders:            50,
		MaxAppointmentsPerMonth: models.Unlimited,
		Features:                enterpriseFeatures,
	},
}

// Plans returns the catalog ordered by price.
func Plans() []models.Plan {
	out := make([]models.Plan, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, clonePlan(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// LookupPlan returns the named plan or ErrUnknownPlan.
func LookupPlan(name string) (models.Plan, error) {
	p, ok := catalog[name]
	if !ok {
		return models.Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, name)
	}
	return clonePlan(p), nil
}

// Limits returns the plan currently assigned to t. Limits are always derived at call
// time, so a plan change takes effect on the next reservation.
func Limits(t *models.Tenant) (models.Plan, error) {
	return LookupPlan(t.PlanName)
}

func clonePlan(p models.Plan) models.Plan {
	p.Features = append([]string(nil), p.Features...)
	return p
}
