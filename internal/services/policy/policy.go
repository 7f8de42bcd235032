// Package policy управляет политиками доступа ролей: флагами безлимитного доступа
// и обязательного пакета.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Значения для роли без записи политики: тарификация не обходится, пакет обязателен.
const (
	DefaultHasUnlimitedAccess = false
	DefaultRequiresPackage    = true
)

// Repository описывает хранилище политик.
type Repository interface {
	GetPolicies(ctx context.Context) ([]models.RoleAccessPolicy, error)
	GetPolicyByRole(ctx context.Context, role models.Role) (*models.RoleAccessPolicy, error)
	InsertPoliciesIfMissing(ctx context.Context, policies []models.RoleAccessPolicy) (int, error)
	ReplacePolicies(ctx context.Context, policies []models.RoleAccessPolicy) (int, error)
	UpdatePolicy(ctx context.Context, role models.Role, upd models.PolicyUpdate) (*models.RoleAccessPolicy, error)
}

// Service реализует операции над политиками.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// New создаёт сервис политик.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Defaults возвращает политики по умолчанию для всех известных ролей.
func Defaults() []models.RoleAccessPolicy {
	roles := models.Roles()
	out := make([]models.RoleAccessPolicy, 0, len(roles))
	for _, r := range roles {
		out = append(out, models.RoleAccessPolicy{
			Role:               r,
			HasUnlimitedAccess: r == models.RoleAdmin,
			RequiresPackage:    r == models.RoleStudent,
			Description:        defaultDescription(r),
		})
	}
	return out
}

func defaultDescription(r models.Role) string {
	switch r {
	case models.RoleAdmin:
		return "Administrators have unlimited API access"
	case models.RoleStudent:
		return "Students need an active package to use the API"
	default:
		return fmt.Sprintf("Default access policy for %s", r)
	}
}

// Initialize создаёт политики по умолчанию для ролей без записи. Идемпотентна.
func (s *Service) Initialize(ctx context.Context) (int, error) {
	const op = "policy.Initialize"
	created, err := s.repo.InsertPoliciesIfMissing(ctx, Defaults())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if created > 0 {
		s.log.Info("role access policies initialized", sl.Op(op), slog.Int("created", created))
	}
	return created, nil
}

// GetAll возвращает все политики, отсортированные по роли.
func (s *Service) GetAll(ctx context.Context) ([]models.RoleAccessPolicy, error) {
	const op = "policy.GetAll"
	policies, err := s.repo.GetPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return policies, nil
}

// GetByRole возвращает политику роли или nil, если её нет.
func (s *Service) GetByRole(ctx context.Context, role models.Role) (*models.RoleAccessPolicy, error) {
	const op = "policy.GetByRole"
	if !role.Valid() {
		return nil, apperr.BadRequest("invalid role: %s", role)
	}
	p, err := s.repo.GetPolicyByRole(ctx, role)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// Update применяет частичное обновление. Роль менять нельзя.
func (s *Service) Update(ctx context.Context, role models.Role, upd models.PolicyUpdate) (*models.RoleAccessPolicy, error) {
	const op = "policy.Update"
	if !role.Valid() {
		return nil, apperr.BadRequest("invalid role: %s", role)
	}
	if upd.Role != nil && models.Role(*upd.Role) != role {
		return nil, apperr.BadRequest("role cannot be changed")
	}

	p, err := s.repo.UpdatePolicy(ctx, role, upd)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("access policy for role %s not found", role)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("role access policy updated", sl.Op(op), slog.String("role", string(role)))
	return p, nil
}

// HasUnlimitedAccess сообщает, обходит ли роль тарификацию.
// Для роли без политики возвращает DefaultHasUnlimitedAccess.
func (s *Service) HasUnlimitedAccess(ctx context.Context, role models.Role) (bool, error) {
	const op = "policy.HasUnlimitedAccess"
	p, err := s.repo.GetPolicyByRole(ctx, role)
	if errors.Is(err, models.ErrNotFound) {
		return DefaultHasUnlimitedAccess, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return p.HasUnlimitedAccess, nil
}

// RequiresPackage сообщает, нужен ли роли активный пакет.
// Для роли без политики возвращает DefaultRequiresPackage.
func (s *Service) RequiresPackage(ctx context.Context, role models.Role) (bool, error) {
	const op = "policy.RequiresPackage"
	p, err := s.repo.GetPolicyByRole(ctx, role)
	if errors.Is(err, models.ErrNotFound) {
		return DefaultRequiresPackage, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return p.RequiresPackage, nil
}

// ResetToDefaults удаляет все политики и создаёт значения по умолчанию.
// Возвращает число созданных записей.
func (s *Service) ResetToDefaults(ctx context.Context) (int, error) {
	const op = "policy.ResetToDefaults"
	created, err := s.repo.ReplacePolicies(ctx, Defaults())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Warn("role access policies reset to defaults", sl.Op(op), slog.Int("created", created))
	return created, nil
}
