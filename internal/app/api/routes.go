package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/diagnosis"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/packages"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/plans"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/policies"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/reports"
	"github.com/magabrotheeeer/ent-insight/internal/api/middlewarectx"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Handlers содержит обработчики, подключаемые к роутеру.
type Handlers struct {
	Health    http.Handler
	Packages  *packages.Handler
	Policies  *policies.Handler
	Plans     *plans.Handler
	Quota     http.Handler
	Reports   *reports.Handler
	Diagnosis http.Handler
}

// Middlewares содержит middleware аутентификации, ограничения частоты и шлюза доступа.
type Middlewares struct {
	Auth      func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler
	Access    func(http.Handler) http.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, h Handlers, mw Middlewares) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Method(http.MethodGet, "/health", h.Health)
		r.Get("/packages", h.Packages.ListActive)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(mw.Auth)
			r.Use(mw.RateLimit)

			r.Route("/me", func(r chi.Router) {
				r.Get("/active-plan", h.Plans.MyActivePlan)
				r.Get("/plans", h.Plans.MyPlans)
				r.Post("/purchase", h.Plans.Purchase)
				r.Delete("/plans/{id}", h.Plans.CancelMine)
				r.Method(http.MethodGet, "/usage", h.Quota)
			})

			// Тарифицируемые маршруты
			r.Group(func(r chi.Router) {
				r.Use(mw.Access)
				r.Method(http.MethodPost, diagnosis.RoutePattern(), h.Diagnosis)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(logger, models.RoleAdmin))
				registerAdminRoutes(r, h)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

func registerAdminRoutes(r chi.Router, h Handlers) {
	r.Route("/role-policies", func(r chi.Router) {
		r.Get("/", h.Policies.List)
		r.Post("/initialize", h.Policies.Initialize)
		r.Post("/reset", h.Policies.Reset)
		r.Get("/{role}", h.Policies.Get)
		r.Put("/{role}", h.Policies.Update)
		r.Get("/{role}/has-unlimited-access", h.Policies.HasUnlimitedAccess)
		r.Get("/{role}/requires-package", h.Policies.RequiresPackage)
	})

	r.Route("/packages", func(r chi.Router) {
		r.Get("/", h.Packages.List)
		r.Post("/", h.Packages.Create)
		r.Get("/{id}", h.Packages.Get)
		r.Put("/{id}", h.Packages.Update)
		r.Delete("/{id}", h.Packages.Delete)
		r.Patch("/{id}/status", h.Packages.SetStatus)
	})

	r.Route("/user-plans", func(r chi.Router) {
		r.Get("/", h.Plans.List)
		r.Post("/", h.Plans.Create)
		r.Get("/expired", h.Plans.Expired)
		r.Post("/deactivate-expired", h.Plans.DeactivateExpired)
		r.Get("/user/{userID}", h.Plans.ByUser)
		r.Get("/{id}", h.Plans.Get)
		r.Put("/{id}", h.Plans.Update)
		r.Delete("/{id}", h.Plans.Cancel)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/api-usage/by-user", h.Reports.UsageByUser)
		r.Get("/api-usage/by-endpoint", h.Reports.UsageByEndpoint)
		r.Get("/user/{userID}/api-usage", h.Reports.UserDailyUsage)
		r.Get("/plans/api-usage", h.Reports.AllUsage)
		r.Get("/purchase-history", h.Reports.PurchaseHistory)
		r.Get("/user-plans/status", h.Reports.PlanStatus)
	})
}
