package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/ent-insight/internal/models"
)

const packageColumns = `id, name, description, daily_request_limit, duration_in_days, price,
	is_unlimited, is_active, created_at, updated_at`

func scanPackage(row interface{ Scan(...any) error }) (*models.Package, error) {
	var p models.Package
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.DailyRequestLimit, &p.DurationInDays, &p.Price,
		&p.IsUnlimited, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePackage вставляет пакет. Дубликат имени возвращает models.ErrAlreadyExists.
func (s *Storage) CreatePackage(ctx context.Context, p models.Package) (*models.Package, error) {
	const op = "repository.CreatePackage"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO packages (id, name, description, daily_request_limit, duration_in_days, price, is_unlimited, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+packageColumns,
		p.ID, p.Name, p.Description, p.DailyRequestLimit, p.DurationInDays, p.Price, p.IsUnlimited, p.IsActive)
	created, err := scanPackage(row)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetPackages возвращает пакеты по возрастанию цены.
func (s *Storage) GetPackages(ctx context.Context, activeOnly bool) ([]models.Package, error) {
	const op = "repository.GetPackages"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+packageColumns+`
		FROM packages
		WHERE ($1 = false OR is_active)
		ORDER BY price ASC, name ASC`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	result := make([]models.Package, 0)
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetPackageByID возвращает пакет или models.ErrNotFound.
func (s *Storage) GetPackageByID(ctx context.Context, id string) (*models.Package, error) {
	const op = "repository.GetPackageByID"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	p, err := scanPackage(s.DB.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// PackageNameTaken сообщает, занято ли имя другим пакетом, кроме excludeID.
func (s *Storage) PackageNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	const op = "repository.PackageNameTaken"
	if err := ctxDone(ctx, op); err != nil {
		return false, err
	}

	var taken bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM packages WHERE name = $1 AND id <> $2)`, name, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return taken, nil
}

// UpdatePackage перезаписывает изменяемые поля пакета.
func (s *Storage) UpdatePackage(ctx context.Context, p models.Package) (*models.Package, error) {
	const op = "repository.UpdatePackage"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `
		UPDATE packages
		SET name = $2, description = $3, daily_request_limit = $4, duration_in_days = $5,
		    price = $6, is_unlimited = $7, is_active = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+packageColumns,
		p.ID, p.Name, p.Description, p.DailyRequestLimit, p.DurationInDays, p.Price, p.IsUnlimited, p.IsActive)
	updated, err := scanPackage(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case isUniqueViolation(err):
		return nil, fmt.Errorf("%s: %w", op, models.ErrAlreadyExists)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updated, nil
}

// SetPackageActive меняет доступность пакета для покупки.
func (s *Storage) SetPackageActive(ctx context.Context, id string, active bool) (*models.Package, error) {
	const op = "repository.SetPackageActive"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `
		UPDATE packages SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+packageColumns, id, active)
	p, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// DeletePackage удаляет пакет. Планы, ссылающиеся на него, сохраняются.
func (s *Storage) DeletePackage(ctx context.Context, id string) error {
	const op = "repository.DeletePackage"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM packages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}
