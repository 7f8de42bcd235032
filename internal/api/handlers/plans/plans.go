// Package plans реализует HTTP-обработчики планов пользователей: административное
// управление и самообслуживание (/me).
package plans

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ent-insight/internal/api/middlewarectx"
	"github.com/magabrotheeeer/ent-insight/internal/api/response"
	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Service описывает операции над планами.
type Service interface {
	Create(ctx context.Context, in models.NewUserPlan) (*models.UserPlan, error)
	Purchase(ctx context.Context, userID string, req models.PurchaseRequest) (*models.UserPlan, error)
	GetAll(ctx context.Context, activeOnly bool) ([]models.UserPlan, error)
	GetByUser(ctx context.Context, userID string, activeOnly bool) ([]models.UserPlan, error)
	GetByID(ctx context.Context, id string) (*models.UserPlan, error)
	GetActiveUserPlan(ctx context.Context, userID string) (*models.UserPlan, error)
	Update(ctx context.Context, id string, upd models.UserPlanUpdate) (*models.UserPlan, error)
	Cancel(ctx context.Context, id string) (*models.UserPlan, error)
	CancelOwn(ctx context.Context, userID, id string) (*models.UserPlan, error)
	GetExpiredPlans(ctx context.Context) ([]models.UserPlan, error)
	DeactivateExpiredPlans(ctx context.Context) (int, error)
}

// Handler обслуживает маршруты планов.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func activeOnly(r *http.Request) bool {
	return r.URL.Query().Get("active") == "true"
}

// List godoc
// @Summary Все планы
// @Tags Admin Plans
// @Produce json
// @Param active query bool false "Только активные"
// @Success 200 {object} response.OKResponse
// @Router /admin/user-plans [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.List")
	items, err := h.service.GetAll(r.Context(), activeOnly(r))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(items))
}

// Create godoc
// @Summary Назначить план пользователю
// @Description Деактивирует прочие активные планы пользователя и создаёт новый.
// @Tags Admin Plans
// @Accept json
// @Produce json
// @Param request body models.NewUserPlan true "План"
// @Success 201 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse "Пакет не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /admin/user-plans [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.Create")

	var req models.NewUserPlan
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.DecodeError(w, r, log, err)
		return
	}
	if err := response.Validate(h.validate, req); err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	plan, err := h.service.Create(r.Context(), req)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	log.Info("user plan created", slog.String("plan_id", plan.ID), slog.String("user_id", plan.UserID))
	response.JSON(w, r, http.StatusCreated, response.OKWithMessage(plan, "user plan created"))
}

// Expired godoc
// @Summary Истёкшие, но активные планы
// @Tags Admin Plans
// @Produce json
// @Success 200 {object} response.OKResponse
// @Router /admin/user-plans/expired [get]
func (h *Handler) Expired(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.Expired")
	items, err := h.service.GetExpiredPlans(r.Context())
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(items))
}

// DeactivateExpired godoc
// @Summary Деактивировать истёкшие планы
// @Tags Admin Plans
// @Produce json
// @Success 200 {object} response.OKResponse
// @Router /admin/user-plans/deactivate-expired [post]
func (h *Handler) DeactivateExpired(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.DeactivateExpired")
	n, err := h.service.DeactivateExpiredPlans(r.Context())
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithMessage(map[string]int{"deactivated": n}, "expired plans deactivated"))
}

// ByUser godoc
// @Summary Планы пользователя
// @Tags Admin Plans
// @Produce json
// @Param userID path string true "ID пользователя"
// @Param active query bool false "Только активные"
// @Success 200 {object} response.OKResponse
// @Router /admin/user-plans/user/{userID} [get]
func (h *Handler) ByUser(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.ByUser")
	items, err := h.service.GetByUser(r.Context(), chi.URLParam(r, "userID"), activeOnly(r))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(items))
}

// Get godoc
// @Summary План по id
// @Tags Admin Plans
// @Produce json
// @Param id path string true "ID плана"
// @Success 200 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/user-plans/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.Get")
	plan, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(plan))
}

// Update godoc
// @Summary Изменить план
// @Tags Admin Plans
// @Accept json
// @Produce json
// @Param id path string true "ID плана"
// @Param request body models.UserPlanUpdate true "Изменения"
// @Success 200 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "У пользователя уже есть активный план"
// @Router /admin/user-plans/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.Update")

	var req models.UserPlanUpdate
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.DecodeError(w, r, log, err)
		return
	}
	if err := response.Validate(h.validate, req); err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	plan, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithMessage(plan, "user plan updated"))
}

// Cancel godoc
// @Summary Отменить план
// @Tags Admin Plans
// @Produce json
// @Param id path string true "ID плана"
// @Success 200 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/user-plans/{id} [delete]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.Cancel")
	plan, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithMessage(plan, "user plan cancelled"))
}

func identity(r *http.Request) (*models.Identity, error) {
	id, ok := middlewarectx.GetIdentity(r.Context())
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	return id, nil
}

// MyActivePlan godoc
// @Summary Действующий план текущего пользователя
// @Tags Me
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse "Нет действующего плана"
// @Router /me/active-plan [get]
func (h *Handler) MyActivePlan(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.MyActivePlan")
	id, err := identity(r)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	plan, err := h.service.GetActiveUserPlan(r.Context(), id.UserID)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	if plan == nil {
		response.WriteError(w, r, log, apperr.NotFound("no active plan"))
		return
	}
	render.JSON(w, r, response.OKWithData(plan))
}

// MyPlans godoc
// @Summary Планы текущего пользователя
// @Tags Me
// @Produce json
// @Security BearerAuth
// @Param active query bool false "Только активные"
// @Success 200 {object} response.OKResponse
// @Router /me/plans [get]
func (h *Handler) MyPlans(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.MyPlans")
	id, err := identity(r)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	items, err := h.service.GetByUser(r.Context(), id.UserID, activeOnly(r))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(items))
}

// Purchase godoc
// @Summary Купить пакет
// @Tags Me
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.PurchaseRequest true "Покупка"
// @Success 201 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse "Пакет не найден"
// @Failure 422 {object} response.ErrorResponse "Пакет неактивен или план уже есть"
// @Router /me/purchase [post]
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.Purchase")
	id, err := identity(r)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	var req models.PurchaseRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.DecodeError(w, r, log, err)
		return
	}
	if err := response.Validate(h.validate, req); err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	plan, err := h.service.Purchase(r.Context(), id.UserID, req)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	log.Info("package purchased", slog.String("plan_id", plan.ID), slog.String("user_id", id.UserID))
	response.JSON(w, r, http.StatusCreated, response.OKWithMessage(plan, "package purchased"))
}

// CancelMine godoc
// @Summary Отменить свой план
// @Tags Me
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID плана"
// @Success 200 {object} response.OKResponse
// @Failure 403 {object} response.ErrorResponse "Чужой план"
// @Failure 404 {object} response.ErrorResponse
// @Router /me/plans/{id} [delete]
func (h *Handler) CancelMine(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.plans.CancelMine")
	id, err := identity(r)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	plan, err := h.service.CancelOwn(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithMessage(plan, "user plan cancelled"))
}
