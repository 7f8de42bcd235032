// Package policies реализует административные HTTP-обработчики политик доступа ролей.
package policies

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ent-insight/internal/api/response"
	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Service описывает хранилище политик.
type Service interface {
	Initialize(ctx context.Context) (int, error)
	GetAll(ctx context.Context) ([]models.RoleAccessPolicy, error)
	GetByRole(ctx context.Context, role models.Role) (*models.RoleAccessPolicy, error)
	Update(ctx context.Context, role models.Role, upd models.PolicyUpdate) (*models.RoleAccessPolicy, error)
	HasUnlimitedAccess(ctx context.Context, role models.Role) (bool, error)
	RequiresPackage(ctx context.Context, role models.Role) (bool, error)
	ResetToDefaults(ctx context.Context) (int, error)
}

// Handler обслуживает /admin/role-policies.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func roleParam(r *http.Request) (models.Role, error) {
	role, err := models.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		return "", apperr.BadRequest("invalid role: %s", chi.URLParam(r, "role"))
	}
	return role, nil
}

// List godoc
// @Summary Все политики ролей
// @Tags Admin Policies
// @Produce json
// @Success 200 {object} response.OKResponse
// @Router /admin/role-policies [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.policies.List")
	items, err := h.service.GetAll(r.Context())
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(items))
}

// Initialize godoc
// @Summary Создать недостающие политики по умолчанию
// @Tags Admin Policies
// @Produce json
// @Success 200 {object} response.OKResponse
// @Router /admin/role-policies/initialize [post]
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.policies.Initialize")
	n, err := h.service.Initialize(r.Context())
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithMessage(map[string]int{"created": n}, "role access policies initialized"))
}

// Reset godoc
// @Summary Вернуть политики к значениям по умолчанию
// @Tags Admin Policies
// @Produce json
// @Success 200 {object} response.OKResponse
// @Router /admin/role-policies/reset [post]
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.policies.Reset")
	n, err := h.service.ResetToDefaults(r.Context())
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	log.Warn("role access policies reset to defaults")
	render.JSON(w, r, response.OKWithMessage(map[string]int{"count": n}, "role access policies reset to defaults"))
}

// Get godoc
// @Summary Политика роли
// @Tags Admin Policies
// @Produce json
// @Param role path string true "Роль"
// @Success 200 {object} response.OKResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/role-policies/{role} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.policies.Get")
	role, err := roleParam(r)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	p, err := h.service.GetByRole(r.Context(), role)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	if p == nil {
		response.WriteError(w, r, log, apperr.NotFound("access policy for role %s not found", role))
		return
	}
	render.JSON(w, r, response.OKWithData(p))
}

// Update godoc
// @Summary Изменить политику роли
// @Tags Admin Policies
// @Accept json
// @Produce json
// @Param role path string true "Роль"
// @Param request body models.PolicyUpdate true "Изменения"
// @Success 200 {object} response.OKResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/role-policies/{role} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.policies.Update")
	role, err := roleParam(r)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	var req models.PolicyUpdate
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.DecodeError(w, r, log, err)
		return
	}

	p, err := h.service.Update(r.Context(), role, req)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithMessage(p, "role access policy updated"))
}

// HasUnlimitedAccess отвечает, обходит ли роль тарификацию.
func (h *Handler) HasUnlimitedAccess(w http.ResponseWriter, r *http.Request) {
	h.flag(w, r, "hasUnlimitedAccess", h.service.HasUnlimitedAccess)
}

// RequiresPackage отвечает, нужен ли роли пакет.
func (h *Handler) RequiresPackage(w http.ResponseWriter, r *http.Request) {
	h.flag(w, r, "requiresPackage", h.service.RequiresPackage)
}

func (h *Handler) flag(w http.ResponseWriter, r *http.Request, name string, get func(context.Context, models.Role) (bool, error)) {
	log := h.logger(r, "handlers.policies."+name)
	role, err := roleParam(r)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	v, err := get(r.Context(), role)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]any{"role": role, name: v}))
}
