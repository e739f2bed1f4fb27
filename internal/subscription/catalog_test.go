package subscription

import (
	"testing"

	"github.com/kiranshivaraju/chronoguard/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlans_OrderedByPrice(t *testing.T) {
	plans := Plans()
	require.Len(t, plans, 4)

	names := make([]string, len(plans))
	for i, p := range plans {
		names[i] = p.Name
	}
	assert.Equal(t, []string{PlanTrial, PlanStarter, PlanProfessional, PlanEnterprise}, names)
}

func TestLookupPlan(t *testing.T) {
	tests := []struct {
		name         string
		providers    int
		appointments int
		price        float64
	}{
		{PlanTrial, 2, 100, 0},
		{PlanStarter, 3, 500, 49},
		{PlanProfessional, 10, 2000, 99},
		{PlanEnterprise, 50, models.Unlimited, 199},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LookupPlan(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.providers, p.Limit(models.ResourceProvider))
			assert.Equal(t, tt.appointments, p.Limit(models.ResourceAppointment))
			assert.Equal(t, tt.price, p.Price)
		})
	}

	_, err := LookupPlan("gold")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestLookupPlan_ReturnsCopy(t *testing.T) {
	p, err := LookupPlan(PlanStarter)
	require.NoError(t, err)
	p.Features[0] = "tampered"

	again, err := LookupPlan(PlanStarter)
	require.NoError(t, err)
	assert.Equal(t, FeatureBasicScheduling, again.Features[0])
}

func TestFeaturesAreCumulative(t *testing.T) {
	enterprise, err := LookupPlan(PlanEnterprise)
	require.NoError(t, err)
	for _, name := range []string{PlanTrial, PlanStarter, PlanProfessional} {
		p, err := LookupPlan(name)
		require.NoError(t, err)
		for _, f := range p.Features {
			assert.True(t, enterprise.HasFeature(f), "enterprise should include %s", f)
		}
	}
}
