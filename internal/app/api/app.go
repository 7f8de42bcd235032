// Package api собирает HTTP-приложение: хранилища, сервисы, шлюз доступа,
// фоновую запись журнала и очистку истёкших планов.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/diagnosis"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/health"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/packages"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/plans"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/policies"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/quota"
	"github.com/magabrotheeeer/ent-insight/internal/api/handlers/reports"
	"github.com/magabrotheeeer/ent-insight/internal/api/middlewarectx"
	"github.com/magabrotheeeer/ent-insight/internal/app/infra"
	"github.com/magabrotheeeer/ent-insight/internal/config"
	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
	"github.com/magabrotheeeer/ent-insight/internal/lib/jwt"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/metrics"
	"github.com/magabrotheeeer/ent-insight/internal/services/access"
	packageservice "github.com/magabrotheeeer/ent-insight/internal/services/packages"
	policyservice "github.com/magabrotheeeer/ent-insight/internal/services/policy"
	"github.com/magabrotheeeer/ent-insight/internal/services/report"
	"github.com/magabrotheeeer/ent-insight/internal/services/requestlog"
	"github.com/magabrotheeeer/ent-insight/internal/services/scheduler"
	"github.com/magabrotheeeer/ent-insight/internal/services/userplan"
)

const shutdownTimeout = 15 * time.Second

// App — HTTP-сервер со всеми зависимостями.
type App struct {
	server  *http.Server
	logger  *slog.Logger
	res     *infra.Resources
	writer  *requestlog.AsyncWriter
	sweeper *scheduler.Service
}

// New открывает ресурсы, применяет миграции, создаёт политики по умолчанию и собирает роутер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.api.New"

	res, err := infra.Open(ctx, cfg, infra.Options{Migrate: true, Cache: true, Events: true}, logger)
	if err != nil {
		return nil, err
	}

	diagnosisHandler, err := diagnosis.New(logger, cfg.BaseURL)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("%s: inference base url: %w", op, err)
	}

	clk := clock.Real{}
	m := metrics.New(prometheus.DefaultRegisterer)

	var publisher userplan.Publisher
	if res.Publisher != nil {
		publisher = res.Publisher
	}

	policySvc := policyservice.New(res.DB, logger)
	if _, err := policySvc.Initialize(ctx); err != nil {
		res.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	packageSvc := packageservice.New(res.DB, logger)
	planSvc := userplan.New(res.DB, res.DB, publisher, clk, m, logger)
	logSvc := requestlog.New(res.DB, clk)
	reportSvc := report.New(res.DB, logSvc, clk)

	gateOpts := []access.Option{
		access.WithFailureMode(cfg.FailureMode),
		access.WithMetrics(m),
		access.WithClock(clk),
	}
	if res.Cache != nil {
		gateOpts = append(gateOpts, access.WithReserver(res.Cache))
	}
	gate := access.NewGate(policySvc, planSvc, logSvc, logger, gateOpts...)

	writer := requestlog.NewAsyncWriter(logSvc, requestlog.WriterConfig{
		Workers:   cfg.LogWorkers,
		QueueSize: cfg.LogQueueSize,
		Timeout:   cfg.LogTimeout,
	}, m, logger)

	checks := map[string]health.Pinger{"postgres": res.DB}
	if res.Cache != nil {
		checks["redis"] = res.Cache
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Handlers{
		Health:    health.New(logger, checks),
		Packages:  packages.New(logger, packageSvc),
		Policies:  policies.New(logger, policySvc),
		Plans:     plans.New(logger, planSvc),
		Quota:     quota.New(logger, gate),
		Reports:   reports.New(logger, reportSvc),
		Diagnosis: diagnosisHandler,
	}, Middlewares{
		Auth:      middlewarectx.JWTMiddleware(jwt.NewVerifier(cfg.JWTSecretKey), logger),
		RateLimit: middlewarectx.RateLimitMiddleware(middlewarectx.NewUserLimiter(cfg.RPS, cfg.Burst), m, logger),
		Access:    middlewarectx.AccessControl(gate, writer, clk, m, logger),
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:  srv,
		logger:  logger,
		res:     res,
		writer:  writer,
		sweeper: scheduler.New(planSvc, cfg.SweepInterval, logger),
	}, nil
}

// Run запускает сервер и очистку планов. При отмене ctx сервер останавливается,
// очередь журнала дописывается, ресурсы закрываются.
func (a *App) Run(ctx context.Context) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		runErr = a.server.Shutdown(timeoutCtx)
	}
	stopSweep()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.writer.Close(flushCtx); err != nil {
		a.logger.Error("request log queue not drained", sl.Err(err))
	}
	a.res.Close()
	return runErr
}
