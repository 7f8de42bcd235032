// Package config предоставляет структуры и функции для загрузки конфигурации сервиса.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Режимы поведения шлюза доступа при ошибке хранилища.
const (
	FailureModeClosed = "closed"
	FailureModeOpen   = "open"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	HTTPServer              `yaml:"http_server"`
	RedisConnection         `yaml:"redis_connection"`
	JWTToken                `yaml:"jwttoken"`
	Access                  `yaml:"access"`
	RateLimit               `yaml:"rate_limit"`
	Scheduler               `yaml:"scheduler"`
	RabbitMQ                `yaml:"rabbitmq"`
	Inference               `yaml:"inference"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"30s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает атомарный счётчик квоты.
type RedisConnection struct {
	AddressRedis string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	MaxRetries   int           `yaml:"max_retries" env:"REDIS_MAX_RETRIES" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeout" env:"REDIS_TIMEOUT" env-default:"2s"`
}

// JWTToken структура для проверки jwt-токена.
type JWTToken struct {
	JWTSecretKey string `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY" env-required:"true"`
}

// Access настройки шлюза доступа и записи журнала запросов.
type Access struct {
	FailureMode  string        `yaml:"failure_mode" env:"ACCESS_FAILURE_MODE" env-default:"closed"`
	LogWorkers   int           `yaml:"log_workers" env:"ACCESS_LOG_WORKERS" env-default:"4"`
	LogQueueSize int           `yaml:"log_queue_size" env:"ACCESS_LOG_QUEUE_SIZE" env-default:"1024"`
	LogTimeout   time.Duration `yaml:"log_timeout" env:"ACCESS_LOG_TIMEOUT" env-default:"5s"`
}

// RateLimit настройки ограничителя частоты запросов на пользователя.
type RateLimit struct {
	RPS   float64 `yaml:"rps" env:"RATE_LIMIT_RPS" env-default:"5"`
	Burst int     `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"10"`
}

// Scheduler настройки фоновой деактивации истёкших планов.
type Scheduler struct {
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"1h"`
}

// RabbitMQ настройки публикации событий. Пустой URL отключает события.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env:"RABBITMQ_MAX_RETRIES" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env:"RABBITMQ_RETRY_DELAY" env-default:"2s"`
}

// Inference адрес внешнего сервиса диагностики.
type Inference struct {
	BaseURL string `yaml:"base_url" env:"INFERENCE_BASE_URL"`
}

// MustLoad загружает конфиг из файла CONFIG_PATH и переменных окружения.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает и проверяет конфиг по указанному пути.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	switch c.FailureMode {
	case FailureModeClosed, FailureModeOpen:
	default:
		return fmt.Errorf("access.failure_mode must be %q or %q, got %q", FailureModeClosed, FailureModeOpen, c.FailureMode)
	}
	if c.LogWorkers <= 0 {
		return fmt.Errorf("access.log_workers must be positive")
	}
	if c.LogQueueSize <= 0 {
		return fmt.Errorf("access.log_queue_size must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("scheduler.sweep_interval must be positive")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"Access:\n"+
			"  FailureMode: %s\n"+
			"  LogWorkers: %d\n"+
			"Scheduler:\n"+
			"  SweepInterval: %s\n",
		c.Env,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.AddressRedis,
		c.DB,
		c.FailureMode,
		c.LogWorkers,
		c.SweepInterval,
	)
}
