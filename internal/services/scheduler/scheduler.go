// Package scheduler периодически деактивирует истёкшие планы.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
)

// Sweeper деактивирует истёкшие планы и возвращает их число.
type Sweeper interface {
	DeactivateExpiredPlans(ctx context.Context) (int, error)
}

// Service запускает очистку по таймеру.
type Service struct {
	sweeper  Sweeper
	interval time.Duration
	log      *slog.Logger
}

// New создаёт планировщик очистки.
func New(sweeper Sweeper, interval time.Duration, log *slog.Logger) *Service {
	return &Service{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
	}
}

// Run выполняет очистку сразу, затем каждые interval до отмены ctx.
func (s *Service) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expired plan sweep stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет одну очистку. Ошибка только логируется.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	const op = "scheduler.RunOnce"
	n, err := s.sweeper.DeactivateExpiredPlans(ctx)
	if err != nil {
		s.log.Error("failed to deactivate expired plans", sl.Op(op), sl.Err(err))
		return 0, err
	}
	if n == 0 {
		s.log.Debug("no expired plans found")
		return 0, nil
	}
	s.log.Info("expired plans deactivated", slog.Int("count", n))
	return n, nil
}
