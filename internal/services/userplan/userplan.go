// Package userplan управляет планами пользователей: покупкой, активацией,
// отменой и деактивацией истёкших планов.
package userplan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
	"github.com/magabrotheeeer/ent-insight/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/metrics"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Repository описывает хранилище планов.
type Repository interface {
	ReplaceActivePlan(ctx context.Context, plan models.UserPlan) (*models.UserPlan, error)
	InsertPlanIfNoneEffective(ctx context.Context, plan models.UserPlan, now time.Time) (*models.UserPlan, error)
	GetUserPlanByID(ctx context.Context, id string) (*models.UserPlan, error)
	GetUserPlans(ctx context.Context, activeOnly bool) ([]models.UserPlan, error)
	GetUserPlansByUser(ctx context.Context, userID string, activeOnly bool) ([]models.UserPlan, error)
	GetActiveUserPlan(ctx context.Context, userID string, now time.Time) (*models.UserPlan, error)
	UpdateUserPlan(ctx context.Context, plan models.UserPlan) (*models.UserPlan, error)
	CancelUserPlan(ctx context.Context, id string) (*models.UserPlan, error)
	GetExpiredPlans(ctx context.Context, now time.Time) ([]models.UserPlan, error)
	DeactivateExpiredPlans(ctx context.Context, now time.Time) ([]models.UserPlan, error)
}

// PackageGetter читает пакет каталога.
type PackageGetter interface {
	GetPackageByID(ctx context.Context, id string) (*models.Package, error)
}

// Publisher публикует события планов. Может быть nil.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Service реализует операции над планами.
type Service struct {
	repo      Repository
	packages  PackageGetter
	publisher Publisher
	clock     clock.Clock
	metrics   *metrics.Collector
	log       *slog.Logger
}

// New создаёт сервис планов. publisher и m могут быть nil.
func New(repo Repository, packages PackageGetter, publisher Publisher, clk clock.Clock, m *metrics.Collector, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		packages:  packages,
		publisher: publisher,
		clock:     clk,
		metrics:   m,
		log:       log,
	}
}

func (s *Service) getPackage(ctx context.Context, id string) (*models.Package, error) {
	p, err := s.packages.GetPackageByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("package %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create создаёт план и деактивирует прочие активные планы пользователя атомарно.
// Без EndDate окно равно сроку пакета.
func (s *Service) Create(ctx context.Context, in models.NewUserPlan) (*models.UserPlan, error) {
	const op = "userplan.Create"

	pkg, err := s.getPackage(ctx, in.PackageID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock.Now()
	start := now
	if in.StartDate != nil {
		start = *in.StartDate
	}
	end := start.AddDate(0, 0, pkg.DurationInDays)
	if in.EndDate != nil {
		end = *in.EndDate
	}
	if end.Before(start) {
		return nil, apperr.Validation("endDate must not be before startDate")
	}
	status := in.PaymentStatus
	if status == "" {
		status = models.PaymentPending
	}

	plan := models.UserPlan{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		PackageID:     pkg.ID,
		StartDate:     start,
		EndDate:       end,
		IsActive:      true,
		PurchaseDate:  now,
		PaymentMethod: in.PaymentMethod,
		TransactionID: in.TransactionID,
		PaymentStatus: status,
	}
	created, err := s.repo.ReplaceActivePlan(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user plan created", sl.Op(op),
		slog.String("plan_id", created.ID), slog.String("user_id", created.UserID), slog.String("package_id", pkg.ID))
	s.publish(ctx, rabbitmq.RoutingPlanCreated, created, pkg)
	return created, nil
}

// Purchase оформляет покупку пакета пользователем. Пакет должен существовать
// и быть активным, а у пользователя не должно быть действующего плана.
func (s *Service) Purchase(ctx context.Context, userID string, req models.PurchaseRequest) (*models.UserPlan, error) {
	const op = "userplan.Purchase"

	pkg, err := s.getPackage(ctx, req.PackageID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !pkg.IsActive {
		return nil, apperr.Validation("package %s is not available for purchase", pkg.ID)
	}

	now := s.clock.Now()
	method := req.PaymentMethod
	if method == "" {
		method = models.DefaultPaymentMethod
	}
	txn := req.TransactionID
	if txn == "" {
		txn = "txn_" + strconv.FormatInt(now.UnixMilli(), 10)
	}

	plan := models.UserPlan{
		ID:            uuid.NewString(),
		UserID:        userID,
		PackageID:     pkg.ID,
		StartDate:     now,
		EndDate:       now.AddDate(0, 0, pkg.DurationInDays),
		IsActive:      true,
		PurchaseDate:  now,
		PaymentMethod: method,
		TransactionID: txn,
		PaymentStatus: models.PaymentCompleted,
	}
	created, err := s.repo.InsertPlanIfNoneEffective(ctx, plan, now)
	if errors.Is(err, models.ErrAlreadyExists) {
		return nil, apperr.Validation("user already has an active plan")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("package purchased", sl.Op(op),
		slog.String("plan_id", created.ID), slog.String("user_id", userID), slog.String("package_id", pkg.ID))
	s.publish(ctx, rabbitmq.RoutingPlanCreated, created, pkg)
	return created, nil
}

// GetAll возвращает все планы, новые первыми.
func (s *Service) GetAll(ctx context.Context, activeOnly bool) ([]models.UserPlan, error) {
	const op = "userplan.GetAll"
	plans, err := s.repo.GetUserPlans(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// GetByUser возвращает планы пользователя, новые первыми.
func (s *Service) GetByUser(ctx context.Context, userID string, activeOnly bool) ([]models.UserPlan, error) {
	const op = "userplan.GetByUser"
	plans, err := s.repo.GetUserPlansByUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// GetByID возвращает план или 404.
func (s *Service) GetByID(ctx context.Context, id string) (*models.UserPlan, error) {
	const op = "userplan.GetByID"
	plan, err := s.repo.GetUserPlanByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("user plan %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plan, nil
}

// GetActiveUserPlan возвращает план, действующий сейчас, или nil.
// Проверяются и флаг is_active, и окно дат.
func (s *Service) GetActiveUserPlan(ctx context.Context, userID string) (*models.UserPlan, error) {
	const op = "userplan.GetActiveUserPlan"
	plan, err := s.repo.GetActiveUserPlan(ctx, userID, s.clock.Now())
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plan, nil
}

// Update применяет частичное обновление плана.
func (s *Service) Update(ctx context.Context, id string, upd models.UserPlanUpdate) (*models.UserPlan, error) {
	const op = "userplan.Update"

	plan, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.PackageID != nil && *upd.PackageID != plan.PackageID {
		if _, err := s.getPackage(ctx, *upd.PackageID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	upd.Apply(plan)
	if plan.EndDate.Before(plan.StartDate) {
		return nil, apperr.Validation("endDate must not be before startDate")
	}

	updated, err := s.repo.UpdateUserPlan(ctx, *plan)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil, apperr.NotFound("user plan %s not found", id)
	case errors.Is(err, models.ErrAlreadyExists):
		return nil, apperr.Conflict("user already has another active plan")
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user plan updated", sl.Op(op), slog.String("plan_id", id))
	return updated, nil
}

// Cancel снимает флаг is_active, не меняя даты. Повторная отмена безопасна.
func (s *Service) Cancel(ctx context.Context, id string) (*models.UserPlan, error) {
	const op = "userplan.Cancel"
	plan, err := s.repo.CancelUserPlan(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("user plan %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user plan cancelled", sl.Op(op), slog.String("plan_id", id), slog.String("user_id", plan.UserID))
	s.publish(ctx, rabbitmq.RoutingPlanCancelled, plan, plan.Package)
	return plan, nil
}

// CancelOwn отменяет план от имени владельца. Чужой план даёт 403.
func (s *Service) CancelOwn(ctx context.Context, userID, id string) (*models.UserPlan, error) {
	plan, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.UserID != userID {
		return nil, apperr.Forbidden("you can only cancel your own plans")
	}
	return s.Cancel(ctx, id)
}

// GetExpiredPlans возвращает планы с is_active, срок которых уже истёк.
func (s *Service) GetExpiredPlans(ctx context.Context) ([]models.UserPlan, error) {
	const op = "userplan.GetExpiredPlans"
	plans, err := s.repo.GetExpiredPlans(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// DeactivateExpiredPlans снимает is_active с истёкших планов и возвращает их число.
func (s *Service) DeactivateExpiredPlans(ctx context.Context) (int, error) {
	const op = "userplan.DeactivateExpiredPlans"
	plans, err := s.repo.DeactivateExpiredPlans(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Swept(len(plans))
	if len(plans) > 0 {
		s.log.Info("expired plans deactivated", sl.Op(op), slog.Int("count", len(plans)))
	}
	for i := range plans {
		s.publish(ctx, rabbitmq.RoutingPlanExpired, &plans[i], nil)
	}
	return len(plans), nil
}

// publish отправляет событие плана. Ошибки только логируются.
func (s *Service) publish(ctx context.Context, routingKey string, plan *models.UserPlan, pkg *models.Package) {
	if s.publisher == nil || plan == nil {
		return
	}
	event := models.PlanEvent{
		Type:       routingKey,
		PlanID:     plan.ID,
		UserID:     plan.UserID,
		PackageID:  plan.PackageID,
		StartDate:  plan.StartDate,
		EndDate:    plan.EndDate,
		OccurredAt: s.clock.Now(),
	}
	if pkg != nil {
		event.Price = pkg.Price
	}
	if err := s.publisher.Publish(ctx, routingKey, event); err != nil {
		s.metrics.PlanEvent(routingKey, "failed")
		s.log.Error("failed to publish plan event", slog.String("type", routingKey),
			slog.String("plan_id", plan.ID), sl.Err(err))
		return
	}
	s.metrics.PlanEvent(routingKey, "published")
}
