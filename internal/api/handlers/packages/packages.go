// Package packages реализует HTTP-обработчики каталога пакетов: публичный список
// активных пакетов и административные операции.
package packages

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ent-insight/internal/api/response"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Service описывает операции каталога.
type Service interface {
	Create(ctx context.Context, in models.PackageInput) (*models.Package, error)
	GetAll(ctx context.Context, activeOnly bool) ([]models.Package, error)
	GetByID(ctx context.Context, id string) (*models.Package, error)
	Update(ctx context.Context, id string, upd models.PackageUpdate) (*models.Package, error)
	SetActive(ctx context.Context, id string, active bool) (*models.Package, error)
	Delete(ctx context.Context, id string) error
}

// Handler обслуживает маршруты пакетов.
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

// ListActive godoc
// @Summary Список доступных пакетов
// @Tags Packages
// @Produce json
// @Success 200 {object} response.OKResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /packages [get]
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// List godoc
// @Summary Все пакеты (админ)
// @Tags Admin Packages
// @Produce json
// @Param active query bool false "Только активные"
// @Success 200 {object} response.OKResponse
// @Router /admin/packages [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, r.URL.Query().Get("active") == "true")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	log := h.logger(r, "handlers.packages.list")

	pkgs, err := h.service.GetAll(r.Context(), activeOnly)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(pkgs))
}

// Create godoc
// @Summary Создать пакет
// @Tags Admin Packages
// @Accept json
// @Produce json
// @Param request body models.PackageInput true "Пакет"
// @Success 201 {object} response.OKResponse
// @Failure 409 {object} response.ErrorResponse "Имя занято"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /admin/packages [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.packages.Create")

	var req models.PackageInput
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.DecodeError(w, r, log, err)
		return
	}
	if err := response.Validate(h.validate, req); err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	pkg, err := h.service.Create(r.Context(), req)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	log.Info("package created", slog.String("package_id", pkg.ID))
	response.JSON(w, r, http.StatusCreated, response.OKWithMessage(pkg, "package created"))
}

// Get godoc
// @Summary Пакет по id
// @Tags Admin Packages
// @Produce json
// @Param id path string true "ID пакета"
// @Success 200 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/packages/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.packages.Get")

	pkg, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(pkg))
}

// Update godoc
// @Summary Обновить пакет
// @Tags Admin Packages
// @Accept json
// @Produce json
// @Param id path string true "ID пакета"
// @Param request body models.PackageUpdate true "Изменения"
// @Success 200 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /admin/packages/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.packages.Update")

	var req models.PackageUpdate
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.DecodeError(w, r, log, err)
		return
	}
	if err := response.Validate(h.validate, req); err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	pkg, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithMessage(pkg, "package updated"))
}

// SetStatus godoc
// @Summary Включить или выключить пакет
// @Tags Admin Packages
// @Accept json
// @Produce json
// @Param id path string true "ID пакета"
// @Param request body models.PackageStatusRequest true "Статус"
// @Success 200 {object} response.OKResponse
// @Router /admin/packages/{id}/status [patch]
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.packages.SetStatus")

	var req models.PackageStatusRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.DecodeError(w, r, log, err)
		return
	}
	if err := response.Validate(h.validate, req); err != nil {
		response.WriteError(w, r, log, err)
		return
	}

	pkg, err := h.service.SetActive(r.Context(), chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(pkg))
}

// Delete godoc
// @Summary Удалить пакет
// @Tags Admin Packages
// @Produce json
// @Param id path string true "ID пакета"
// @Success 200 {object} response.OKResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/packages/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := h.logger(r, "handlers.packages.Delete")

	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	log.Info("package deleted", slog.String("package_id", id))
	render.JSON(w, r, response.OKWithMessage(nil, "package deleted"))
}
