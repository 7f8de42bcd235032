// Package scheduler содержит приложение фоновой очистки истёкших планов.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/ent-insight/internal/app/infra"
	"github.com/magabrotheeeer/ent-insight/internal/config"
	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
	schedulerservice "github.com/magabrotheeeer/ent-insight/internal/services/scheduler"
	"github.com/magabrotheeeer/ent-insight/internal/services/userplan"
)

// App представляет приложение планировщика.
type App struct {
	scheduler *schedulerservice.Service
	res       *infra.Resources
	logger    *slog.Logger
}

// New создает новый экземпляр приложения планировщика. Кэш не нужен, события публикуются, если настроен RabbitMQ.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	res, err := infra.Open(ctx, cfg, infra.Options{Events: true}, logger)
	if err != nil {
		return nil, err
	}

	var publisher userplan.Publisher
	if res.Publisher != nil {
		publisher = res.Publisher
	}
	plans := userplan.New(res.DB, res.DB, publisher, clock.Real{}, nil, logger)

	return &App{
		scheduler: schedulerservice.New(plans, cfg.SweepInterval, logger),
		res:       res,
		logger:    logger,
	}, nil
}

// Run запускает очистку. С once выполняется один проход, иначе цикл до отмены ctx.
func (a *App) Run(ctx context.Context, once bool) error {
	defer a.res.Close()

	if once {
		_, err := a.scheduler.RunOnce(ctx)
		return err
	}

	a.scheduler.Run(ctx)
	a.logger.Info("shutting down scheduler service")
	return nil
}
