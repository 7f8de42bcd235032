package middlewarectx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/ent-insight/internal/api/response"
	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/metrics"
	"github.com/magabrotheeeer/ent-insight/internal/models"
	"github.com/magabrotheeeer/ent-insight/internal/services/access"
)

// Gate решает, пропускать ли запрос.
type Gate interface {
	Check(ctx context.Context, id *models.Identity) (access.Decision, error)
}

// LogQueue принимает записи журнала для фоновой записи.
type LogQueue interface {
	Enqueue(entry models.RequestLog) bool
}

// AccessControl пропускает запрос через шлюз. Отклонённые запросы не журналируются.
// Для пропущенных после ответа ставится запись с итоговым статусом и временем ответа.
func AccessControl(gate Gate, logs LogQueue, clk clock.Clock, m *metrics.Collector, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AccessControl"
			log := log.With(
				sl.Op(op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			id, _ := GetIdentity(r.Context())
			if _, err := gate.Check(r.Context(), id); err != nil {
				response.WriteError(w, r, log, err)
				return
			}

			start := clk.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				rec := recover()
				if rec != nil {
					status = http.StatusInternalServerError
				}

				elapsed := clk.Now().Sub(start)
				m.ObserveRequest(strconv.Itoa(status), elapsed.Seconds())
				logs.Enqueue(models.RequestLog{
					UserID:       id.UserID,
					Endpoint:     r.URL.Path,
					Method:       r.Method,
					StatusCode:   status,
					ResponseTime: elapsed.Milliseconds(),
					UserAgent:    r.UserAgent(),
					IP:           clientIP(r),
					Timestamp:    start,
				})

				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// clientIP берёт адрес клиента без порта. RealIP в роутере уже подставил X-Forwarded-For.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
