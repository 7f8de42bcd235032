// Package access реализует шлюз доступа к тарифицируемым маршрутам:
// проверку политики роли, активного плана и дневной квоты.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/ent-insight/internal/cache"
	"github.com/magabrotheeeer/ent-insight/internal/config"
	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/metrics"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Reason объясняет решение шлюза.
type Reason string

// Причины решений.
const (
	ReasonUnlimitedRole     Reason = "unlimited_role"
	ReasonNoPackageRequired Reason = "no_package_required"
	ReasonUnlimitedPackage  Reason = "unlimited_package"
	ReasonWithinQuota       Reason = "within_quota"
	ReasonFailOpen          Reason = "fail_open"
	ReasonUnauthenticated   Reason = "unauthenticated"
	ReasonNoActivePlan      Reason = "no_active_plan"
	ReasonQuotaExceeded     Reason = "quota_exceeded"
)

// Decision — результат проверки.
type Decision struct {
	Admitted   bool
	Reason     Reason
	Plan       *models.UserPlan
	TodayCount int
	Limit      int
}

// PolicyChecker отвечает на вопросы о политике роли.
type PolicyChecker interface {
	HasUnlimitedAccess(ctx context.Context, role models.Role) (bool, error)
	RequiresPackage(ctx context.Context, role models.Role) (bool, error)
}

// PlanFinder находит действующий план пользователя; nil, если его нет.
type PlanFinder interface {
	GetActiveUserPlan(ctx context.Context, userID string) (*models.UserPlan, error)
}

// UsageCounter считает запросы пользователя за сегодня по журналу.
type UsageCounter interface {
	CountTodayRequests(ctx context.Context, userID string) (int, error)
}

// QuotaReserver атомарно занимает слот дневной квоты в области scope.
type QuotaReserver interface {
	ReserveDaily(ctx context.Context, scope string, now time.Time, limit, seed int) (cache.Reservation, error)
	DailyCount(ctx context.Context, scope string, now time.Time) (int, bool, error)
}

// Gate — шлюз доступа. Состояние политик и планов читается заново при каждой проверке.
type Gate struct {
	policies PolicyChecker
	plans    PlanFinder
	usage    UsageCounter
	reserver QuotaReserver
	failOpen bool
	clock    clock.Clock
	metrics  *metrics.Collector
	log      *slog.Logger
}

// Option настраивает Gate.
type Option func(*Gate)

// WithReserver включает атомарный счётчик квоты.
func WithReserver(r QuotaReserver) Option {
	return func(g *Gate) { g.reserver = r }
}

// WithFailureMode задаёт поведение при ошибке хранилища.
func WithFailureMode(mode string) Option {
	return func(g *Gate) { g.failOpen = mode == config.FailureModeOpen }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.Collector) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithClock подменяет часы.
func WithClock(c clock.Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// NewGate создаёт шлюз. По умолчанию ошибки хранилища отклоняют запрос (closed).
func NewGate(policies PolicyChecker, plans PlanFinder, usage UsageCounter, log *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		policies: policies,
		plans:    plans,
		usage:    usage,
		clock:    clock.Real{},
		log:      log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check решает, пропускать ли запрос пользователя id. Отказы возвращаются как
// *apperr.Error с кодами 401, 402 и 429. Прочие ошибки означают сбой хранилища.
func (g *Gate) Check(ctx context.Context, id *models.Identity) (Decision, error) {
	const op = "access.Check"

	if id == nil || id.UserID == "" {
		g.metrics.Decision("reject", string(ReasonUnauthenticated))
		return Decision{Reason: ReasonUnauthenticated}, apperr.Unauthorized("authentication required")
	}

	d, err := g.evaluate(ctx, id)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			g.metrics.Decision("reject", string(d.Reason))
			return d, err
		}
		if g.failOpen {
			g.metrics.GateError(config.FailureModeOpen)
			g.metrics.Decision("admit", string(ReasonFailOpen))
			g.log.Warn("access gate store failure, admitting request", sl.Op(op),
				slog.String("user_id", id.UserID), sl.Err(err))
			return Decision{Admitted: true, Reason: ReasonFailOpen}, nil
		}
		g.metrics.GateError(config.FailureModeClosed)
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}

	g.metrics.Decision("admit", string(d.Reason))
	return d, nil
}

// evaluate выполняет проверки от дешёвых к дорогим и останавливается на первом решении.
func (g *Gate) evaluate(ctx context.Context, id *models.Identity) (Decision, error) {
	unlimited, err := g.policies.HasUnlimitedAccess(ctx, id.Role)
	if err != nil {
		return Decision{}, err
	}
	if unlimited {
		return Decision{Admitted: true, Reason: ReasonUnlimitedRole}, nil
	}

	requires, err := g.policies.RequiresPackage(ctx, id.Role)
	if err != nil {
		return Decision{}, err
	}
	if !requires {
		return Decision{Admitted: true, Reason: ReasonNoPackageRequired}, nil
	}

	plan, err := g.plans.GetActiveUserPlan(ctx, id.UserID)
	if err != nil {
		return Decision{}, err
	}
	if plan == nil {
		return Decision{Reason: ReasonNoActivePlan},
			apperr.PaymentRequired("an active subscription package is required to access this resource")
	}

	if plan.Package != nil && plan.Package.IsUnlimited {
		return Decision{Admitted: true, Reason: ReasonUnlimitedPackage, Plan: plan}, nil
	}

	// План без пакета (пакет удалён) получает нулевой лимит.
	limit := 0
	if plan.Package != nil {
		limit = plan.Package.DailyRequestLimit
	}

	count, allowed, err := g.consume(ctx, id.UserID, counterScope(id.UserID, plan), limit)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Plan: plan, TodayCount: count, Limit: limit}
	if !allowed {
		d.Reason = ReasonQuotaExceeded
		return d, apperr.TooManyRequests(fmt.Sprintf("daily request limit of %d reached", limit))
	}
	d.Admitted = true
	d.Reason = ReasonWithinQuota
	return d, nil
}

// counterScope привязывает счётчик к плану и версии его пакета: запросы,
// пропущенные без счётчика, попадают в новый счётчик через засев из журнала.
func counterScope(userID string, plan *models.UserPlan) string {
	var (
		pkgID    string
		revision time.Time
	)
	if plan.Package != nil {
		pkgID = plan.Package.ID
		revision = plan.Package.UpdatedAt
	}
	return cache.PlanScope(userID, plan.ID, pkgID, revision)
}

// consume сверяет дневное использование с лимитом. С атомарным счётчиком слот
// занимается сразу; без него сравнивается число записей журнала.
func (g *Gate) consume(ctx context.Context, userID, scope string, limit int) (int, bool, error) {
	const op = "access.consume"

	if g.reserver != nil {
		now := g.clock.Now()
		res, err := g.reserver.ReserveDaily(ctx, scope, now, limit, -1)
		if errors.Is(err, cache.ErrNotSeeded) {
			var seed int
			seed, err = g.usage.CountTodayRequests(ctx, userID)
			if err != nil {
				return 0, false, err
			}
			res, err = g.reserver.ReserveDaily(ctx, scope, now, limit, seed)
		}
		if err == nil {
			return res.Count, res.Allowed, nil
		}
		g.log.Warn("quota counter unavailable, falling back to request log count", sl.Op(op),
			slog.String("user_id", userID), sl.Err(err))
	}

	count, err := g.usage.CountTodayRequests(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	return count, count < limit, nil
}

// Status возвращает состояние квоты пользователя без занятия слота.
// Unlimited выставляется только для безлимитной роли или безлимитного пакета.
func (g *Gate) Status(ctx context.Context, id *models.Identity) (models.QuotaStatus, error) {
	const op = "access.Status"
	var st models.QuotaStatus
	if id == nil || id.UserID == "" {
		return st, apperr.Unauthorized("authentication required")
	}

	unlimited, err := g.policies.HasUnlimitedAccess(ctx, id.Role)
	if err != nil {
		return st, fmt.Errorf("%s: %w", op, err)
	}
	requires, err := g.policies.RequiresPackage(ctx, id.Role)
	if err != nil {
		return st, fmt.Errorf("%s: %w", op, err)
	}
	st.RequiresPackage = requires
	st.Unlimited = unlimited

	if unlimited || !requires {
		st.TodayCount, err = g.usage.CountTodayRequests(ctx, id.UserID)
		if err != nil {
			return st, fmt.Errorf("%s: %w", op, err)
		}
		return st, nil
	}

	plan, err := g.plans.GetActiveUserPlan(ctx, id.UserID)
	if err != nil {
		return st, fmt.Errorf("%s: %w", op, err)
	}
	if plan == nil || (plan.Package != nil && plan.Package.IsUnlimited) {
		st.TodayCount, err = g.usage.CountTodayRequests(ctx, id.UserID)
		if err != nil {
			return st, fmt.Errorf("%s: %w", op, err)
		}
		if plan != nil {
			st.HasActivePlan = true
			st.PlanID = plan.ID
			st.Unlimited = true
		}
		return st, nil
	}

	st.HasActivePlan = true
	st.PlanID = plan.ID
	count, err := g.todayCount(ctx, id.UserID, counterScope(id.UserID, plan))
	if err != nil {
		return st, fmt.Errorf("%s: %w", op, err)
	}
	st.TodayCount = count
	if plan.Package != nil {
		st.DailyLimit = plan.Package.DailyRequestLimit
	}
	st.Remaining = max(st.DailyLimit-count, 0)
	return st, nil
}

func (g *Gate) todayCount(ctx context.Context, userID, scope string) (int, error) {
	if g.reserver != nil {
		n, found, err := g.reserver.DailyCount(ctx, scope, g.clock.Now())
		if err == nil && found {
			return n, nil
		}
	}
	return g.usage.CountTodayRequests(ctx, userID)
}
