package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// UsageByUser группирует записи журнала в [from, to] по пользователю.
func (s *Storage) UsageByUser(ctx context.Context, from, to time.Time) ([]models.UserUsage, error) {
	const op = "repository.UsageByUser"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT user_id, COUNT(*), array_agg(DISTINCT endpoint ORDER BY endpoint)
		FROM request_logs
		WHERE timestamp >= $1 AND timestamp <= $2
		GROUP BY user_id
		ORDER BY COUNT(*) DESC, user_id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	m := pgtype.NewMap()
	result := make([]models.UserUsage, 0)
	for rows.Next() {
		var u models.UserUsage
		if err := rows.Scan(&u.UserID, &u.Count, m.SQLScanner(&u.Endpoints)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UsageByEndpoint группирует записи журнала в [from, to] по эндпоинту.
func (s *Storage) UsageByEndpoint(ctx context.Context, from, to time.Time) ([]models.EndpointUsage, error) {
	const op = "repository.UsageByEndpoint"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT endpoint, COUNT(*), array_agg(DISTINCT method ORDER BY method)
		FROM request_logs
		WHERE timestamp >= $1 AND timestamp <= $2
		GROUP BY endpoint
		ORDER BY COUNT(*) DESC, endpoint`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	m := pgtype.NewMap()
	result := make([]models.EndpointUsage, 0)
	for rows.Next() {
		var e models.EndpointUsage
		if err := rows.Scan(&e.Endpoint, &e.Count, m.SQLScanner(&e.Methods)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// PurchaseHistory возвращает планы, купленные в [from, to], новые первыми.
func (s *Storage) PurchaseHistory(ctx context.Context, from, to time.Time) ([]models.PurchaseRecord, error) {
	const op = "repository.PurchaseHistory"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, planWithPackageSelect+`
		WHERE up.purchase_date >= $1 AND up.purchase_date <= $2
		ORDER BY up.purchase_date DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	plans, err := collectPlans(rows, scanPlanWithPackage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]models.PurchaseRecord, 0, len(plans))
	for _, p := range plans {
		rec := models.PurchaseRecord{
			PlanID:        p.ID,
			UserID:        p.UserID,
			PackageID:     p.PackageID,
			PurchaseDate:  p.PurchaseDate,
			StartDate:     p.StartDate,
			EndDate:       p.EndDate,
			IsActive:      p.IsActive,
			PaymentMethod: p.PaymentMethod,
			TransactionID: p.TransactionID,
			PaymentStatus: p.PaymentStatus,
		}
		if p.Package != nil {
			rec.PackageName = p.Package.Name
			rec.Price = p.Package.Price
		}
		result = append(result, rec)
	}
	return result, nil
}

// PlanStatusSummary считает планы по состояниям на момент now.
func (s *Storage) PlanStatusSummary(ctx context.Context, now time.Time) (models.PlanStatusSummary, error) {
	const op = "repository.PlanStatusSummary"
	var sum models.PlanStatusSummary
	if err := ctxDone(ctx, op); err != nil {
		return sum, err
	}

	err := s.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE is_active AND start_date <= $1 AND end_date >= $1),
			COUNT(*) FILTER (WHERE is_active AND end_date < $1),
			COUNT(*) FILTER (WHERE NOT is_active),
			COUNT(*)
		FROM user_plans`, now).Scan(&sum.Active, &sum.ExpiredFlagged, &sum.Inactive, &sum.Total)
	if err != nil {
		return sum, fmt.Errorf("%s: %w", op, err)
	}
	return sum, nil
}

// PlansExpiringBetween возвращает планы с is_active, чей end_date в [from, to].
func (s *Storage) PlansExpiringBetween(ctx context.Context, from, to time.Time) ([]models.UserPlan, error) {
	const op = "repository.PlansExpiringBetween"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, planWithPackageSelect+`
		WHERE up.is_active AND up.end_date >= $1 AND up.end_date <= $2
		ORDER BY up.end_date ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	plans, err := collectPlans(rows, scanPlanWithPackage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}
