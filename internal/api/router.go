package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/chronoguard/internal/api/middleware"
	"github.com/kiranshivaraju/chronoguard/internal/api/response"
	"github.com/kiranshivaraju/chronoguard/internal/apikey"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// Instrument wraps every request; MetricsHandler serves /metrics.
	Instrument     func(http.Handler) http.Handler
	MetricsHandler http.Handler

	HealthHandler   http.HandlerFunc
	RegisterHandler http.HandlerFunc

	PlansHandler       http.HandlerFunc
	GetSubscription    http.HandlerFunc
	UpgradeHandler     http.HandlerFunc
	CancelHandler      http.HandlerFunc
	ReactivateHandler  http.HandlerFunc
	SettingsHandler    http.HandlerFunc
	FeatureHandler     http.HandlerFunc
	CreateProvider     http.HandlerFunc
	DeactivateProvider http.HandlerFunc
	CreatePatient      http.HandlerFunc
	CreateAppointment  http.HandlerFunc
	GetAppointment     http.HandlerFunc
	UpdateStatus       http.HandlerFunc
	RefreshRisk        http.HandlerFunc
	DashboardStats     http.HandlerFunc
	Recommendations    http.HandlerFunc
	CreateKeyHandler   http.HandlerFunc
	ListKeysHandler    http.HandlerFunc
	RevokeKeyHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.Instrument != nil {
		r.Use(deps.Instrument)
	}

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/api/v1/practices", orNotImplemented(deps.RegisterHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(apikey.ScopeRead))

			r.Get("/api/v1/plans", orNotImplemented(deps.PlansHandler))
			r.Get("/api/v1/subscription", orNotImplemented(deps.GetSubscription))
			r.Get("/api/v1/features/{feature}", orNotImplemented(deps.FeatureHandler))
			r.Get("/api/v1/appointments/{appointmentID}", orNotImplemented(deps.GetAppointment))
			r.Get("/api/v1/dashboard/stats", orNotImplemented(deps.DashboardStats))
			r.Get("/api/v1/dashboard/recommendations", orNotImplemented(deps.Recommendations))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(apikey.ScopeWrite))

			r.Post("/api/v1/providers", orNotImplemented(deps.CreateProvider))
			r.Delete("/api/v1/providers/{providerID}", orNotImplemented(deps.DeactivateProvider))
			r.Post("/api/v1/patients", orNotImplemented(deps.CreatePatient))

			r.Post("/api/v1/appointments", orNotImplemented(deps.CreateAppointment))
			r.Patch("/api/v1/appointments/{appointmentID}/status", orNotImplemented(deps.UpdateStatus))
			r.Post("/api/v1/appointments/{appointmentID}/risk", orNotImplemented(deps.RefreshRisk))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(apikey.ScopeAdmin))

			r.Post("/api/v1/subscription/upgrade", orNotImplemented(deps.UpgradeHandler))
			r.Post("/api/v1/subscription/cancel", orNotImplemented(deps.CancelHandler))
			r.Post("/api/v1/subscription/reactivate", orNotImplemented(deps.ReactivateHandler))
			r.Put("/api/v1/subscription/settings", orNotImplemented(deps.SettingsHandler))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
