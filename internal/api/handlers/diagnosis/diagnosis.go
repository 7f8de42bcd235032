// Package diagnosis проксирует тарифицируемые запросы диагностики во внешний
// сервис инференса.
package diagnosis

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/ent-insight/internal/api/middlewarectx"
	"github.com/magabrotheeeer/ent-insight/internal/api/response"
	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
)

// Kinds перечисляет поддерживаемые виды диагностики.
var Kinds = map[string]bool{
	"cholesteatoma": true,
	"sinusitis":     true,
	"pharyngitis":   true,
}

// RoutePattern возвращает шаблон chi, совпадающий только с известными видами.
// Неизвестный вид не доходит до шлюза доступа и не расходует квоту.
func RoutePattern() string {
	kinds := make([]string, 0, len(Kinds))
	for k := range Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return "/diagnosis/{kind:(?:" + strings.Join(kinds, "|") + ")}"
}

// Заголовки с пользователем, которые получает сервис инференса.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Handler обслуживает POST /diagnosis/{kind}.
type Handler struct {
	log   *slog.Logger
	proxy *httputil.ReverseProxy
}

// New создаёт прокси на baseURL. Запрос /diagnosis/{kind} уходит на {baseURL}/{kind}.
func New(log *slog.Logger, baseURL string) (*Handler, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	h := &Handler{log: log}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = strings.TrimSuffix(target.Path, "/") + "/" + chi.URLParam(pr.In, "kind")
			pr.Out.URL.RawPath = ""
			pr.Out.Host = target.Host
			pr.SetXForwarded()

			pr.Out.Header.Del("Authorization")
			if id, ok := middlewarectx.GetIdentity(pr.In.Context()); ok {
				pr.Out.Header.Set(HeaderUserID, id.UserID)
				pr.Out.Header.Set(HeaderUserRole, id.Role.String())
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log := h.log.With(
				sl.Op("handlers.diagnosis.proxy"),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			response.WriteError(w, r, log, apperr.Wrap(http.StatusBadGateway, "inference service unavailable", err))
		},
	}
	return h, nil
}

// ServeHTTP godoc
// @Summary Диагностика по изображению
// @Description Тарифицируемый маршрут. Тело запроса передаётся сервису инференса без изменений.
// @Tags Diagnosis
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param kind path string true "cholesteatoma, sinusitis или pharyngitis"
// @Success 200 {object} map[string]any "Ответ сервиса инференса"
// @Failure 401 {object} response.ErrorResponse
// @Failure 402 {object} response.ErrorResponse "Нет активного пакета"
// @Failure 404 {object} response.ErrorResponse "Неизвестный вид диагностики"
// @Failure 429 {object} response.ErrorResponse "Исчерпана дневная квота"
// @Failure 502 {object} response.ErrorResponse
// @Router /diagnosis/{kind} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if !Kinds[kind] {
		log := h.log.With(
			sl.Op("handlers.diagnosis.ServeHTTP"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		response.WriteError(w, r, log, apperr.NotFound("unknown diagnosis kind: %s", kind))
		return
	}
	h.proxy.ServeHTTP(w, r)
}
