package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/auth"
	"github.com/dangerclosesec/tenantkit/internal/metrics"
	"github.com/dangerclosesec/tenantkit/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig collects everything the API router mounts.
type RouterConfig struct {
	Logger         *slog.Logger
	Tokens         *auth.TokenManager
	ServiceKey     string
	AllowedOrigins []string
	RequestTimeout time.Duration

	// TrustProxy rewrites RemoteAddr from proxy headers. Rate limiting and
	// audit attribution key on the result.
	TrustProxy bool

	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	Health      *HealthChecker

	Auth          *AuthHandler
	Onboarding    *OnboardingHandler
	Settings      *SettingsHandler
	Invitations   *InvitationHandler
	Organizations *OrganizationHandler
	Users         *UserAdminHandler
	ActivityLogs  *ActivityLogHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(chimw.RequestID)
	r.Use(clientAddr(cfg.TrustProxy))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(cfg.Metrics.Middleware)
	r.Use(chimw.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.OrganizationHeader},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Readiness)
		r.Get("/health/live", cfg.Health.Liveness)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))

		// Machine routes authenticate with the service-role key only.
		r.Route("/service", func(r chi.Router) {
			r.Use(middleware.RequireServiceKey(cfg.ServiceKey))
			r.Use(middleware.RequestCaller)
			r.Post("/invitations/expire", cfg.Invitations.ExpireStale)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(cfg.Tokens))
			r.Use(middleware.RequestCaller)

			// Public routes
			r.Group(func(r chi.Router) {
				r.With(cfg.RateLimiter.Limit("auth")).Post("/auth/signup", cfg.Auth.SignupHandler)
				r.With(cfg.RateLimiter.Limit("auth")).Post("/auth/login", cfg.Auth.LoginHandler)

				r.Get("/onboarding/status", cfg.Onboarding.Status)
				r.With(cfg.RateLimiter.Limit("onboarding")).Post("/onboarding/bootstrap", cfg.Onboarding.Bootstrap)

				r.Get("/settings/public", cfg.Settings.Public)

				r.With(cfg.RateLimiter.Limit("invitation_lookup")).Get("/invitations/{token}", cfg.Invitations.Lookup)
			})

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)

				r.Get("/auth/me", cfg.Auth.MeHandler)

				r.Get("/invitations", cfg.Invitations.ListMine)
				r.Post("/invitations/accept", cfg.Invitations.Accept)

				r.Route("/organizations", func(r chi.Router) {
					r.Get("/", cfg.Organizations.ListMine)
					r.Post("/", cfg.Organizations.Create)
					r.Get("/by-slug/{slug}", cfg.Organizations.GetBySlug)

					r.Route("/{orgID}", func(r chi.Router) {
						r.Get("/", cfg.Organizations.Get)
						r.Patch("/", cfg.Organizations.Update)
						r.Delete("/", cfg.Organizations.Delete)

						r.Get("/members", cfg.Organizations.ListMembers)
						r.Patch("/members/{userID}", cfg.Organizations.UpdateMemberRole)
						r.Delete("/members/{userID}", cfg.Organizations.RemoveMember)

						r.Get("/invitations", cfg.Invitations.ListForOrganization)
						r.Post("/invitations", cfg.Invitations.Create)
						r.Post("/invitations/{invitationID}/cancel", cfg.Invitations.Cancel)
						r.Post("/invitations/{invitationID}/resend", cfg.Invitations.Resend)
					})
				})

				r.Route("/admin", func(r chi.Router) {
					r.Route("/users", func(r chi.Router) {
						r.Get("/", cfg.Users.List)
						r.Post("/", cfg.Users.Create)
						r.Get("/export", cfg.Users.Export)
						r.Get("/{userID}", cfg.Users.Get)
						r.Patch("/{userID}", cfg.Users.Update)
						r.Patch("/{userID}/status", cfg.Users.SetStatus)
						r.Delete("/{userID}", cfg.Users.Delete)
					})

					r.Get("/organizations", cfg.Organizations.AdminList)
					r.Get("/organizations/export", cfg.Organizations.Export)

					r.Route("/activity-logs", func(r chi.Router) {
						r.Get("/", cfg.ActivityLogs.List)
						r.Get("/summary", cfg.ActivityLogs.Summary)
						r.Get("/export", cfg.ActivityLogs.Export)
						r.Get("/{logID}", cfg.ActivityLogs.Get)
					})

					r.Get("/settings", cfg.Settings.Get)
					r.Put("/settings", cfg.Settings.Update)
				})
			})
		})
	})

	return r
}

func clientAddr(trustProxy bool) func(http.Handler) http.Handler {
	if trustProxy {
		return chimw.RealIP
	}
	return func(next http.Handler) http.Handler { return next }
}
