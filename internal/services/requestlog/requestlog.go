// Package requestlog ведёт журнал тарифицируемых запросов и считает дневное использование.
package requestlog

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// Repository — хранилище журнала запросов.
type Repository interface {
	CreateRequestLog(ctx context.Context, entry models.RequestLog) error
	CountRequests(ctx context.Context, userID string, from, to time.Time) (int, error)
	GetRequestLogs(ctx context.Context, userID string, from, to time.Time) ([]models.RequestLog, error)
}

// Service читает и пишет журнал.
type Service struct {
	repo  Repository
	clock clock.Clock
}

// New создаёт сервис журнала.
func New(repo Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clock: clk}
}

// Create записывает одну запись журнала.
func (s *Service) Create(ctx context.Context, entry models.RequestLog) error {
	const op = "requestlog.Create"
	if err := s.repo.CreateRequestLog(ctx, entry); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountTodayRequests считает записи пользователя за текущие локальные сутки.
func (s *Service) CountTodayRequests(ctx context.Context, userID string) (int, error) {
	const op = "requestlog.CountTodayRequests"
	start, next := clock.DayBounds(s.clock.Now())
	n, err := s.repo.CountRequests(ctx, userID, start, next)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// GetUserRequestLogs возвращает записи пользователя за период, новые первыми.
func (s *Service) GetUserRequestLogs(ctx context.Context, userID string, start, end time.Time) ([]models.RequestLog, error) {
	const op = "requestlog.GetUserRequestLogs"
	logs, err := s.repo.GetRequestLogs(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return logs, nil
}
