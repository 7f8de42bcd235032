package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/ent-insight/internal/models"
)

const policyColumns = `role, has_unlimited_access, requires_package, description, created_at, updated_at`

func scanPolicy(row interface{ Scan(...any) error }) (*models.RoleAccessPolicy, error) {
	var p models.RoleAccessPolicy
	var role string
	if err := row.Scan(&role, &p.HasUnlimitedAccess, &p.RequiresPackage, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	return &p, nil
}

// GetPolicies возвращает все политики, отсортированные по роли.
func (s *Storage) GetPolicies(ctx context.Context) ([]models.RoleAccessPolicy, error) {
	const op = "repository.GetPolicies"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+policyColumns+` FROM role_access_policies ORDER BY role`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	result := make([]models.RoleAccessPolicy, 0)
	for rows.Next() {
		p, err := scanPolicy(rows)
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

// GetPolicyByRole возвращает политику роли или models.ErrNotFound.
func (s *Storage) GetPolicyByRole(ctx context.Context, role models.Role) (*models.RoleAccessPolicy, error) {
	const op = "repository.GetPolicyByRole"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM role_access_policies WHERE role = $1`, string(role))
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// InsertPoliciesIfMissing создаёт политики для ролей, у которых их ещё нет,
// и возвращает число созданных записей.
func (s *Storage) InsertPoliciesIfMissing(ctx context.Context, policies []models.RoleAccessPolicy) (int, error) {
	const op = "repository.InsertPoliciesIfMissing"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}

	var created int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := insertPolicies(ctx, tx, policies)
		created = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// ReplacePolicies удаляет все политики и создаёт переданные в одной транзакции.
func (s *Storage) ReplacePolicies(ctx context.Context, policies []models.RoleAccessPolicy) (int, error) {
	const op = "repository.ReplacePolicies"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}

	var created int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_access_policies`); err != nil {
			return err
		}
		n, err := insertPolicies(ctx, tx, policies)
		created = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

func insertPolicies(ctx context.Context, tx *sql.Tx, policies []models.RoleAccessPolicy) (int, error) {
	var created int
	for _, p := range policies {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO role_access_policies (role, has_unlimited_access, requires_package, description)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (role) DO NOTHING`,
			string(p.Role), p.HasUnlimitedAccess, p.RequiresPackage, p.Description)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		created += int(n)
	}
	return created, nil
}

// UpdatePolicy применяет частичное обновление и возвращает новую версию политики.
// Поле Role в upd игнорируется.
func (s *Storage) UpdatePolicy(ctx context.Context, role models.Role, upd models.PolicyUpdate) (*models.RoleAccessPolicy, error) {
	const op = "repository.UpdatePolicy"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `
		UPDATE role_access_policies
		SET has_unlimited_access = COALESCE($2, has_unlimited_access),
		    requires_package = COALESCE($3, requires_package),
		    description = COALESCE($4, description),
		    updated_at = now()
		WHERE role = $1
		RETURNING `+policyColumns,
		string(role), nullBool(upd.HasUnlimitedAccess), nullBool(upd.RequiresPackage), nullString(upd.Description))
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
