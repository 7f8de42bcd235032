// Package cache хранит в Redis дневные счётчики тарифицируемых запросов.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/ent-insight/internal/config"
	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
)

// counterGrace продлевает жизнь ключа после конца суток, чтобы запросы на границе дня
// не создавали ключ заново.
const counterGrace = time.Hour

// reserveScript увеличивает счётчик, только пока он меньше лимита.
// ARGV: лимит, TTL в мс, начальное значение (пустая строка, если неизвестно).
// Возвращает {1, n} при успехе, {0, n} при исчерпании, {-1, 0} если ключа нет и seed не передан.
var reserveScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  if ARGV[3] == '' then
    return {-1, 0}
  end
  redis.call('SET', KEYS[1], ARGV[3], 'PX', ARGV[2], 'NX')
  cur = redis.call('GET', KEYS[1])
end
cur = tonumber(cur)
local limit = tonumber(ARGV[1])
if cur >= limit then
  return {0, cur}
end
local n = redis.call('INCR', KEYS[1])
return {1, n}
`)

// ErrNotSeeded возвращается, если счётчика на этот день ещё нет и начальное значение не передано.
var ErrNotSeeded = errors.New("daily counter is not seeded")

// Cache — клиент Redis.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// Close закрывает соединение.
func (c *Cache) Close() error {
	return c.Db.Close()
}

// Ping проверяет соединение.
func (c *Cache) Ping(ctx context.Context) error {
	return c.Db.Ping(ctx).Err()
}

// PlanScope возвращает область счётчика для плана пользователя. Новый план или
// правка пакета дают новую область, и её счётчик засевается из журнала заново.
func PlanScope(userID, planID, packageID string, revision time.Time) string {
	return userID + ":" + planID + ":" + packageID + ":" + strconv.FormatInt(revision.UnixMilli(), 10)
}

// DailyKey возвращает ключ счётчика области scope на день now в локальной зоне.
func DailyKey(scope string, now time.Time) string {
	return "usage:" + scope + ":" + now.Format(time.DateOnly)
}

// Reservation — результат попытки занять слот дневной квоты.
type Reservation struct {
	Allowed bool
	Count   int // значение счётчика после попытки
}

// ReserveDaily атомарно увеличивает счётчик дня, если он меньше limit.
// seed задаёт начальное значение для ещё не созданного ключа; при seed < 0
// и отсутствии ключа возвращается ErrNotSeeded.
func (c *Cache) ReserveDaily(ctx context.Context, scope string, now time.Time, limit, seed int) (Reservation, error) {
	const op = "cache.ReserveDaily"

	_, next := clock.DayBounds(now)
	ttl := next.Sub(now) + counterGrace
	seedArg := ""
	if seed >= 0 {
		seedArg = strconv.Itoa(seed)
	}

	res, err := reserveScript.Run(ctx, c.Db, []string{DailyKey(scope, now)},
		limit, ttl.Milliseconds(), seedArg).Int64Slice()
	if err != nil {
		return Reservation{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(res) != 2 {
		return Reservation{}, fmt.Errorf("%s: unexpected script reply %v", op, res)
	}

	switch res[0] {
	case -1:
		return Reservation{}, ErrNotSeeded
	case 1:
		return Reservation{Allowed: true, Count: int(res[1])}, nil
	default:
		return Reservation{Allowed: false, Count: int(res[1])}, nil
	}
}

// DailyCount возвращает значение счётчика дня. found=false, если ключа нет.
func (c *Cache) DailyCount(ctx context.Context, scope string, now time.Time) (count int, found bool, err error) {
	const op = "cache.DailyCount"
	n, err := c.Db.Get(ctx, DailyKey(scope, now)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return n, true, nil
}
