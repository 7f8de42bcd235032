// Package infra открывает и закрывает внешние ресурсы, общие для бинарников:
// PostgreSQL, Redis и RabbitMQ.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/ent-insight/internal/cache"
	"github.com/magabrotheeeer/ent-insight/internal/config"
	"github.com/magabrotheeeer/ent-insight/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ent-insight/internal/lib/sl"
	"github.com/magabrotheeeer/ent-insight/internal/migrations"
	"github.com/magabrotheeeer/ent-insight/internal/storage/repository"
)

const (
	dbReadyAttempts = 10
	dbReadyDelay    = 3 * time.Second
)

// Resources — открытые подключения. Cache и Publisher равны nil, если отключены в конфиге.
type Resources struct {
	DB        *repository.Storage
	Cache     *cache.Cache
	Publisher *rabbitmq.Publisher

	conn   *amqp.Connection
	logger *slog.Logger
}

// Options выбирает, какие ресурсы открывать.
type Options struct {
	Migrate bool
	Cache   bool
	Events  bool
}

// Open подключается к хранилищам из cfg. При ошибке уже открытое закрывается.
func Open(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*Resources, error) {
	const op = "infra.Open"
	res := &Resources{logger: logger}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res.DB = db

	if err := waitForDB(ctx, db); err != nil {
		res.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if opts.Migrate {
		if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			res.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if opts.Cache && cfg.AddressRedis != "" {
		c, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res.Cache = c
	} else if opts.Cache {
		logger.Warn("redis address is empty, quota is checked against the request log")
	}

	if opts.Events && cfg.RabbitMQURL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res.conn = conn
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetPlanQueues())
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res.Publisher = rabbitmq.NewPublisher(ch, rabbitmq.PlansExchange)
	} else if opts.Events {
		logger.Info("rabbitmq url is empty, plan events are disabled")
	}

	return res, nil
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	var err error
	for range dbReadyAttempts {
		if err = repository.CheckDatabaseReady(ctx, db); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dbReadyDelay):
		}
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// Close закрывает всё открытое. Ошибки только логируются.
func (r *Resources) Close() {
	if r.Publisher != nil {
		if err := r.Publisher.Close(); err != nil {
			r.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Error("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			r.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			r.logger.Error("failed to close database", sl.Err(err))
		}
	}
}
