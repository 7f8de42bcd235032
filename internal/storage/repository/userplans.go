package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/ent-insight/internal/models"
)

const planColumns = `up.id, up.user_id, up.package_id, up.start_date, up.end_date, up.is_active,
	up.purchase_date, up.payment_method, up.transaction_id, up.payment_status, up.created_at, up.updated_at`

const planWithPackageSelect = `SELECT ` + planColumns + `,
	p.id, p.name, p.description, p.daily_request_limit, p.duration_in_days, p.price,
	p.is_unlimited, p.is_active, p.created_at, p.updated_at
FROM user_plans up
LEFT JOIN packages p ON p.id = up.package_id`

type scanner interface {
	Scan(dest ...any) error
}

func planDest(p *models.UserPlan, status *string) []any {
	return []any{&p.ID, &p.UserID, &p.PackageID, &p.StartDate, &p.EndDate, &p.IsActive,
		&p.PurchaseDate, &p.PaymentMethod, &p.TransactionID, status, &p.CreatedAt, &p.UpdatedAt}
}

func scanPlan(row scanner) (*models.UserPlan, error) {
	var p models.UserPlan
	var status string
	if err := row.Scan(planDest(&p, &status)...); err != nil {
		return nil, err
	}
	p.PaymentStatus = models.PaymentStatus(status)
	return &p, nil
}

// Пакет может быть удалён, поэтому колонки LEFT JOIN читаются через Null-типы.
func scanPlanWithPackage(row scanner) (*models.UserPlan, error) {
	var (
		p       models.UserPlan
		status  string
		pkgID   sql.NullString
		name    sql.NullString
		desc    sql.NullString
		limit   sql.NullInt32
		days    sql.NullInt32
		price   decimal.NullDecimal
		unlim   sql.NullBool
		active  sql.NullBool
		created sql.NullTime
		updated sql.NullTime
	)
	dest := append(planDest(&p, &status), &pkgID, &name, &desc, &limit, &days, &price, &unlim, &active, &created, &updated)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	p.PaymentStatus = models.PaymentStatus(status)
	if pkgID.Valid {
		p.Package = &models.Package{
			ID:                pkgID.String,
			Name:              name.String,
			Description:       desc.String,
			DailyRequestLimit: int(limit.Int32),
			DurationInDays:    int(days.Int32),
			Price:             price.Decimal,
			IsUnlimited:       unlim.Bool,
			IsActive:          active.Bool,
			CreatedAt:         created.Time,
			UpdatedAt:         updated.Time,
		}
	}
	return &p, nil
}

func collectPlans(rows *sql.Rows, scan func(scanner) (*models.UserPlan, error)) ([]models.UserPlan, error) {
	defer rows.Close()
	result := make([]models.UserPlan, 0)
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// ReplaceActivePlan деактивирует действующие планы пользователя и вставляет новый
// в одной транзакции под advisory-блокировкой пользователя.
func (s *Storage) ReplaceActivePlan(ctx context.Context, plan models.UserPlan) (*models.UserPlan, error) {
	const op = "repository.ReplaceActivePlan"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	if err := s.insertPlan(ctx, plan, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetUserPlanByID(ctx, plan.ID)
}

// InsertPlanIfNoneEffective вставляет план, только если у пользователя нет плана,
// действующего в момент now; иначе возвращает models.ErrAlreadyExists.
// Флаг is_active у истёкших планов снимается в той же транзакции.
func (s *Storage) InsertPlanIfNoneEffective(ctx context.Context, plan models.UserPlan, now time.Time) (*models.UserPlan, error) {
	const op = "repository.InsertPlanIfNoneEffective"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	if err := s.insertPlan(ctx, plan, &now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetUserPlanByID(ctx, plan.ID)
}

func (s *Storage) insertPlan(ctx context.Context, plan models.UserPlan, rejectIfEffectiveAt *time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, plan.UserID); err != nil {
			return err
		}

		if rejectIfEffectiveAt != nil {
			var exists bool
			err := tx.QueryRowContext(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM user_plans
					WHERE user_id = $1 AND is_active AND start_date <= $2 AND end_date >= $2
				)`, plan.UserID, *rejectIfEffectiveAt).Scan(&exists)
			if err != nil {
				return err
			}
			if exists {
				return models.ErrAlreadyExists
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE user_plans SET is_active = false, updated_at = now()
			WHERE user_id = $1 AND is_active`, plan.UserID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_plans (id, user_id, package_id, start_date, end_date, is_active,
			                        purchase_date, payment_method, transaction_id, payment_status)
			VALUES ($1, $2, $3, $4, $5, true, $6, $7, $8, $9)`,
			plan.ID, plan.UserID, plan.PackageID, plan.StartDate, plan.EndDate,
			plan.PurchaseDate, plan.PaymentMethod, plan.TransactionID, string(plan.PaymentStatus))
		if isUniqueViolation(err) {
			return models.ErrAlreadyExists
		}
		return err
	})
}

// GetUserPlanByID возвращает план с пакетом или models.ErrNotFound.
func (s *Storage) GetUserPlanByID(ctx context.Context, id string) (*models.UserPlan, error) {
	const op = "repository.GetUserPlanByID"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPlanWithPackage(s.DB.QueryRowContext(ctx, planWithPackageSelect+` WHERE up.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetUserPlans возвращает все планы, новые первыми.
func (s *Storage) GetUserPlans(ctx context.Context, activeOnly bool) ([]models.UserPlan, error) {
	const op = "repository.GetUserPlans"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, planWithPackageSelect+`
		WHERE ($1 = false OR up.is_active)
		ORDER BY up.created_at DESC`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	plans, err := collectPlans(rows, scanPlanWithPackage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// GetUserPlansByUser возвращает планы пользователя, новые первыми.
func (s *Storage) GetUserPlansByUser(ctx context.Context, userID string, activeOnly bool) ([]models.UserPlan, error) {
	const op = "repository.GetUserPlansByUser"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, planWithPackageSelect+`
		WHERE up.user_id = $1 AND ($2 = false OR up.is_active)
		ORDER BY up.created_at DESC`, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	plans, err := collectPlans(rows, scanPlanWithPackage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// GetActiveUserPlan возвращает план с is_active, чьё окно содержит now,
// или models.ErrNotFound.
func (s *Storage) GetActiveUserPlan(ctx context.Context, userID string, now time.Time) (*models.UserPlan, error) {
	const op = "repository.GetActiveUserPlan"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, planWithPackageSelect+`
		WHERE up.user_id = $1 AND up.is_active AND up.start_date <= $2 AND up.end_date >= $2
		ORDER BY up.start_date DESC
		LIMIT 1`, userID, now)
	p, err := scanPlanWithPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// UpdateUserPlan перезаписывает изменяемые поля плана.
// Вторая запись с is_active для того же пользователя даёт models.ErrAlreadyExists.
func (s *Storage) UpdateUserPlan(ctx context.Context, plan models.UserPlan) (*models.UserPlan, error) {
	const op = "repository.UpdateUserPlan"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	result, err := s.DB.ExecContext(ctx, `
		UPDATE user_plans
		SET package_id = $2, start_date = $3, end_date = $4, is_active = $5,
		    payment_method = $6, transaction_id = $7, payment_status = $8, updated_at = now()
		WHERE id = $1`,
		plan.ID, plan.PackageID, plan.StartDate, plan.EndDate, plan.IsActive,
		plan.PaymentMethod, plan.TransactionID, string(plan.PaymentStatus))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return s.GetUserPlanByID(ctx, plan.ID)
}

// CancelUserPlan снимает флаг is_active, не трогая даты. Повторный вызов безопасен.
func (s *Storage) CancelUserPlan(ctx context.Context, id string) (*models.UserPlan, error) {
	const op = "repository.CancelUserPlan"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	result, err := s.DB.ExecContext(ctx, `
		UPDATE user_plans SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return s.GetUserPlanByID(ctx, id)
}

// GetExpiredPlans возвращает планы с is_active, чей end_date < now.
func (s *Storage) GetExpiredPlans(ctx context.Context, now time.Time) ([]models.UserPlan, error) {
	const op = "repository.GetExpiredPlans"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, planWithPackageSelect+`
		WHERE up.is_active AND up.end_date < $1
		ORDER BY up.end_date ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	plans, err := collectPlans(rows, scanPlanWithPackage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// DeactivateExpiredPlans снимает is_active с истёкших планов и возвращает их.
func (s *Storage) DeactivateExpiredPlans(ctx context.Context, now time.Time) ([]models.UserPlan, error) {
	const op = "repository.DeactivateExpiredPlans"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		UPDATE user_plans up SET is_active = false, updated_at = now()
		WHERE up.is_active AND up.end_date < $1
		RETURNING `+planColumns, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	plans, err := collectPlans(rows, scanPlan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}
