package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/chronos/internal/api/middleware"
	"github.com/kiranshivaraju/chronos/internal/api/response"
	"github.com/kiranshivaraju/chronos/internal/metrics"
	"github.com/kiranshivaraju/chronos/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	// ImageFiles serves locally stored result images under ImagesPath.
	// Both are empty when images live in object storage.
	ImagesPath string
	ImageFiles http.Handler

	// user
	SubmitTask      http.HandlerFunc
	ConfirmTask     http.HandlerFunc
	ListTasks       http.HandlerFunc
	GetTask         http.HandlerFunc
	ListResults     http.HandlerFunc
	CreateRequest   http.HandlerFunc
	ListRequests    http.HandlerFunc
	ListBalances    http.HandlerFunc
	ListTelescopes  http.HandlerFunc
	ListSatellites  http.HandlerFunc
	TelescopeAgenda http.HandlerFunc

	// operator
	UpdateTaskStatus   http.HandlerFunc
	PushResult         http.HandlerFunc
	Plan               http.HandlerFunc
	SetTelescopeStatus http.HandlerFunc

	// admin
	CreateTelescope   http.HandlerFunc
	CreateSatellite   http.HandlerFunc
	AdminListRequests http.HandlerFunc
	ApproveRequest    http.HandlerFunc
	RejectRequest     http.HandlerFunc
	CreateKeyHandler  http.HandlerFunc
	ListKeysHandler   http.HandlerFunc
	RevokeKeyHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(metrics.Middleware)

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if deps.ImageFiles != nil && deps.ImagesPath != "" {
		prefix := strings.TrimSuffix(deps.ImagesPath, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, deps.ImageFiles))
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/telescopes", orNotImplemented(deps.ListTelescopes))
		r.Get("/api/v1/telescopes/{telescopeID}/schedule", orNotImplemented(deps.TelescopeAgenda))
		r.Get("/api/v1/satellites", orNotImplemented(deps.ListSatellites))

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeUser))

			r.Post("/api/v1/tasks", orNotImplemented(deps.SubmitTask))
			r.Get("/api/v1/tasks", orNotImplemented(deps.ListTasks))
			r.Post("/api/v1/tasks/{taskID}/confirm", orNotImplemented(deps.ConfirmTask))

			r.Post("/api/v1/balance-requests", orNotImplemented(deps.CreateRequest))
			r.Get("/api/v1/balance-requests", orNotImplemented(deps.ListRequests))
			r.Get("/api/v1/balances", orNotImplemented(deps.ListBalances))
		})

		// Owners and operators both read tasks; the service decides visibility.
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeUser, models.ScopeOperator))

			r.Get("/api/v1/tasks/{taskID}", orNotImplemented(deps.GetTask))
			r.Get("/api/v1/tasks/{taskID}/results", orNotImplemented(deps.ListResults))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeOperator))

			r.Post("/api/v1/tasks/{taskID}/status", orNotImplemented(deps.UpdateTaskStatus))
			r.Post("/api/v1/tasks/{taskID}/results", orNotImplemented(deps.PushResult))
			r.Get("/api/v1/telescopes/{telescopeID}/plan", orNotImplemented(deps.Plan))
			r.Post("/api/v1/telescopes/{telescopeID}/status", orNotImplemented(deps.SetTelescopeStatus))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/telescopes", orNotImplemented(deps.CreateTelescope))
			r.Post("/api/v1/admin/satellites", orNotImplemented(deps.CreateSatellite))

			r.Get("/api/v1/admin/balance-requests", orNotImplemented(deps.AdminListRequests))
			r.Post("/api/v1/admin/balance-requests/{requestID}/approve", orNotImplemented(deps.ApproveRequest))
			r.Post("/api/v1/admin/balance-requests/{requestID}/reject", orNotImplemented(deps.RejectRequest))

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
