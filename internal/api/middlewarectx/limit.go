package middlewarectx

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/ent-insight/internal/api/response"
	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/metrics"
)

// minLimiterIdle — нижняя граница простоя, после которого ведро пользователя удаляется.
const minLimiterIdle = 10 * time.Minute

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// UserLimiter хранит token bucket на каждого пользователя. Вёдра, простаивавшие
// дольше idle, удаляются: к этому моменту они заполнены, и новое ведро ведёт себя так же.
type UserLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewUserLimiter создаёт лимитер с rps запросов в секунду и запасом burst.
func NewUserLimiter(rps float64, burst int) *UserLimiter {
	idle := minLimiterIdle
	if rps > 0 {
		// Время полного восполнения ведра.
		idle = max(idle, time.Duration(float64(burst)/rps*float64(time.Second)))
	}
	return &UserLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

// Allow тратит токен ключа key.
func (l *UserLimiter) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// sweep удаляет простаивающие вёдра. Вызывается под l.mu.
func (l *UserLimiter) sweep(now time.Time) {
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) >= l.idle {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// RateLimitMiddleware ограничивает частоту запросов пользователя. Ключ — id
// пользователя, для анонимных запросов адрес клиента.
func RateLimitMiddleware(limiter *UserLimiter, m *metrics.Collector, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if id, ok := GetIdentity(r.Context()); ok {
				key = id.UserID
			}
			if !limiter.Allow(key) {
				m.RateLimited()
				response.WriteError(w, r, log, apperr.TooManyRequests("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
