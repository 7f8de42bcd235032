// Package reports реализует административные отчёты об использовании API.
// Все отчёты принимают startDate и endDate (YYYY-MM-DD или RFC3339).
package reports

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ent-insight/internal/api/response"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Service строит отчёты.
type Service interface {
	Range(startStr, endStr string) (models.DateRange, error)
	UsageByUser(ctx context.Context, r models.DateRange) ([]models.UserUsage, error)
	UsageByEndpoint(ctx context.Context, r models.DateRange) (models.EndpointUsageReport, error)
	UserDailyUsage(ctx context.Context, userID string, r models.DateRange) (models.UserUsageReport, error)
	AllUsage(ctx context.Context, r models.DateRange) (models.AllUsageReport, error)
	PurchaseHistory(ctx context.Context, r models.DateRange) (models.PurchaseHistoryReport, error)
	PlanStatus(ctx context.Context) (models.PlanStatusReport, error)
}

// Handler обслуживает /admin/reports.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// serve разбирает период и отдаёт результат build.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, op string, build func(models.DateRange) (any, error)) {
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	q := r.URL.Query()
	dr, err := h.service.Range(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	data, err := build(dr)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(data))
}

// UsageByUser godoc
// @Summary Использование API по пользователям
// @Tags Admin Reports
// @Produce json
// @Param startDate query string false "Начало периода"
// @Param endDate query string false "Конец периода"
// @Success 200 {object} response.OKResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /admin/reports/api-usage/by-user [get]
func (h *Handler) UsageByUser(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "handlers.reports.UsageByUser", func(dr models.DateRange) (any, error) {
		return h.service.UsageByUser(r.Context(), dr)
	})
}

// UsageByEndpoint godoc
// @Summary Использование API по эндпоинтам
// @Tags Admin Reports
// @Produce json
// @Param startDate query string false "Начало периода"
// @Param endDate query string false "Конец периода"
// @Success 200 {object} response.OKResponse
// @Router /admin/reports/api-usage/by-endpoint [get]
func (h *Handler) UsageByEndpoint(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "handlers.reports.UsageByEndpoint", func(dr models.DateRange) (any, error) {
		return h.service.UsageByEndpoint(r.Context(), dr)
	})
}

// UserDailyUsage godoc
// @Summary Использование API пользователем по дням
// @Tags Admin Reports
// @Produce json
// @Param userID path string true "ID пользователя"
// @Param startDate query string false "Начало периода"
// @Param endDate query string false "Конец периода"
// @Success 200 {object} response.OKResponse
// @Router /admin/reports/user/{userID}/api-usage [get]
func (h *Handler) UserDailyUsage(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "handlers.reports.UserDailyUsage", func(dr models.DateRange) (any, error) {
		return h.service.UserDailyUsage(r.Context(), chi.URLParam(r, "userID"), dr)
	})
}

// AllUsage godoc
// @Summary Сводка использования API по дням
// @Tags Admin Reports
// @Produce json
// @Param startDate query string false "Начало периода"
// @Param endDate query string false "Конец периода"
// @Success 200 {object} response.OKResponse
// @Router /admin/reports/plans/api-usage [get]
func (h *Handler) AllUsage(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "handlers.reports.AllUsage", func(dr models.DateRange) (any, error) {
		return h.service.AllUsage(r.Context(), dr)
	})
}

// PurchaseHistory godoc
// @Summary История покупок
// @Tags Admin Reports
// @Produce json
// @Param startDate query string false "Начало периода"
// @Param endDate query string false "Конец периода"
// @Success 200 {object} response.OKResponse
// @Router /admin/reports/purchase-history [get]
func (h *Handler) PurchaseHistory(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "handlers.reports.PurchaseHistory", func(dr models.DateRange) (any, error) {
		return h.service.PurchaseHistory(r.Context(), dr)
	})
}

// PlanStatus godoc
// @Summary Состояние планов
// @Tags Admin Reports
// @Produce json
// @Success 200 {object} response.OKResponse
// @Router /admin/reports/user-plans/status [get]
func (h *Handler) PlanStatus(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(
		sl.Op("handlers.reports.PlanStatus"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	rep, err := h.service.PlanStatus(r.Context())
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(rep))
}
