package api

import (
	"net/http"

	"github.com/kiranshivaraju/chronoguard/internal/api/handler"
	mw "github.com/kiranshivaraju/chronoguard/internal/api/middleware"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/internal/telemetry"
)

// Services are the domain services behind the HTTP surface.
type Services struct {
	Keys          store.APIKeyStore
	Limiter       mw.Counter
	RateLimit     int
	Metrics       *telemetry.Collector
	Health        http.HandlerFunc
	Subscriptions handler.Subscriptions
	Usage         handler.UsageReader
	Appointments  interface {
		handler.Appointments
		handler.Practice
	}
	Dashboard handler.Snapshotter
	APIKeys   handler.KeyManager
}

// Wire builds router dependencies from services.
func Wire(s Services) Dependencies {
	deps := Dependencies{
		Auth:      mw.NewAuth(s.Keys),
		RateLimit: mw.NewRateLimit(s.Limiter, s.RateLimit),

		HealthHandler:   s.Health,
		RegisterHandler: handler.NewRegisterHandler(s.Subscriptions, s.APIKeys),

		PlansHandler:       handler.NewPlansHandler(),
		GetSubscription:    handler.NewGetSubscriptionHandler(s.Subscriptions, s.Usage),
		UpgradeHandler:     handler.NewUpgradeHandler(s.Subscriptions),
		CancelHandler:      handler.NewCancelHandler(s.Subscriptions),
		ReactivateHandler:  handler.NewReactivateHandler(s.Subscriptions),
		SettingsHandler:    handler.NewSettingsHandler(s.Subscriptions),
		FeatureHandler:     handler.NewFeatureHandler(s.Subscriptions),
		CreateProvider:     handler.NewCreateProviderHandler(s.Appointments),
		DeactivateProvider: handler.NewDeactivateProviderHandler(s.Appointments),
		CreatePatient:      handler.NewCreatePatientHandler(s.Appointments),
		CreateAppointment:  handler.NewCreateAppointmentHandler(s.Appointments),
		GetAppointment:     handler.NewGetAppointmentHandler(s.Appointments),
		UpdateStatus:       handler.NewUpdateStatusHandler(s.Appointments),
		RefreshRisk:        handler.NewRefreshRiskHandler(s.Appointments),
		DashboardStats:     handler.NewDashboardStatsHandler(s.Subscriptions, s.Dashboard),
		Recommendations:    handler.NewRecommendationsHandler(s.Subscriptions, s.Dashboard),
		CreateKeyHandler:   handler.NewCreateKeyHandler(s.APIKeys),
		ListKeysHandler:    handler.NewListKeysHandler(s.APIKeys),
		RevokeKeyHandler:   handler.NewRevokeKeyHandler(s.APIKeys),
	}
	if s.Metrics != nil {
		deps.Instrument = s.Metrics.Middleware
		deps.MetricsHandler = s.Metrics.Handler()
	}
	return deps
}
