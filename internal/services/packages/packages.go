// Package packages реализует каталог пакетов подписки.
package packages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Repository описывает хранилище пакетов.
type Repository interface {
	CreatePackage(ctx context.Context, p models.Package) (*models.Package, error)
	GetPackages(ctx context.Context, activeOnly bool) ([]models.Package, error)
	GetPackageByID(ctx context.Context, id string) (*models.Package, error)
	PackageNameTaken(ctx context.Context, name, excludeID string) (bool, error)
	UpdatePackage(ctx context.Context, p models.Package) (*models.Package, error)
	SetPackageActive(ctx context.Context, id string, active bool) (*models.Package, error)
	DeletePackage(ctx context.Context, id string) error
}

// Service реализует операции каталога.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// New создаёт сервис каталога.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func checkPackage(p models.Package) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return apperr.Validation("name is required")
	case p.DailyRequestLimit < 0:
		return apperr.Validation("dailyRequestLimit must be >= 0")
	case p.DurationInDays < 1:
		return apperr.Validation("durationInDays must be >= 1")
	case p.Price.IsNegative():
		return apperr.Validation("price must be >= 0")
	}
	return nil
}

// Create добавляет пакет. Имя должно быть уникальным.
func (s *Service) Create(ctx context.Context, in models.PackageInput) (*models.Package, error) {
	const op = "packages.Create"

	p := models.Package{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		DurationInDays: in.DurationInDays,
		Price:          in.Price,
		IsUnlimited:    in.IsUnlimited,
		IsActive:       true,
	}
	if in.DailyRequestLimit != nil {
		p.DailyRequestLimit = *in.DailyRequestLimit
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := checkPackage(p); err != nil {
		return nil, err
	}

	taken, err := s.repo.PackageNameTaken(ctx, p.Name, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if taken {
		return nil, apperr.Conflict("package with name %q already exists", p.Name)
	}

	created, err := s.repo.CreatePackage(ctx, p)
	if errors.Is(err, models.ErrAlreadyExists) {
		return nil, apperr.Conflict("package with name %q already exists", p.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("package created", sl.Op(op), slog.String("id", created.ID), slog.String("name", created.Name))
	return created, nil
}

// GetAll возвращает пакеты по возрастанию цены.
func (s *Service) GetAll(ctx context.Context, activeOnly bool) ([]models.Package, error) {
	const op = "packages.GetAll"
	list, err := s.repo.GetPackages(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// GetByID возвращает пакет или 404.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Package, error) {
	const op = "packages.GetByID"
	p, err := s.repo.GetPackageByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("package %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// Update применяет частичное обновление. Новое имя не должно совпадать
// с именем другого пакета.
func (s *Service) Update(ctx context.Context, id string, upd models.PackageUpdate) (*models.Package, error) {
	const op = "packages.Update"

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		upd.Name = &trimmed
	}
	upd.Apply(current)
	if err := checkPackage(*current); err != nil {
		return nil, err
	}

	if upd.Name != nil {
		taken, err := s.repo.PackageNameTaken(ctx, current.Name, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if taken {
			return nil, apperr.Conflict("package with name %q already exists", current.Name)
		}
	}

	updated, err := s.repo.UpdatePackage(ctx, *current)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return nil, apperr.NotFound("package %s not found", id)
	case errors.Is(err, models.ErrAlreadyExists):
		return nil, apperr.Conflict("package with name %q already exists", current.Name)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("package updated", sl.Op(op), slog.String("id", id))
	return updated, nil
}

// SetActive включает или скрывает пакет для покупки.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*models.Package, error) {
	const op = "packages.SetActive"
	p, err := s.repo.SetPackageActive(ctx, id, active)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("package %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("package status changed", sl.Op(op), slog.String("id", id), slog.Bool("is_active", active))
	return p, nil
}

// Delete удаляет пакет. Существующие планы не проверяются: план без пакета
// получает нулевой дневной лимит.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "packages.Delete"
	err := s.repo.DeletePackage(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return apperr.NotFound("package %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("package deleted", sl.Op(op), slog.String("id", id))
	return nil
}
