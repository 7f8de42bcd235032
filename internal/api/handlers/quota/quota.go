// Package quota отдаёт пользователю состояние его дневной квоты.
package quota

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ent-insight/internal/api/middlewarectx"
	"github.com/magabrotheeeer/ent-insight/internal/api/response"
	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Service считает состояние квоты без занятия слота.
type Service interface {
	Status(ctx context.Context, id *models.Identity) (models.QuotaStatus, error)
}

// Handler обслуживает GET /me/usage.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Использование квоты за сегодня
// @Tags Me
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.OKResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /me/usage [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.quota.ServeHTTP"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, ok := middlewarectx.GetIdentity(r.Context())
	if !ok {
		response.WriteError(w, r, log, apperr.Unauthorized("authentication required"))
		return
	}
	st, err := h.service.Status(r.Context(), id)
	if err != nil {
		response.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(st))
}
