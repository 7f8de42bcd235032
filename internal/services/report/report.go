// Package report строит отчёты об использовании API и о покупках планов.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// DefaultRangeDays — длина периода отчёта по умолчанию.
const DefaultRangeDays = 30

// ExpiringWithinDays — горизонт списка истекающих планов.
const ExpiringWithinDays = 7

const dayLayout = "2006-01-02"

// Repository отдаёт агрегаты для отчётов.
type Repository interface {
	UsageByUser(ctx context.Context, from, to time.Time) ([]models.UserUsage, error)
	UsageByEndpoint(ctx context.Context, from, to time.Time) ([]models.EndpointUsage, error)
	GetRequestLogs(ctx context.Context, userID string, from, to time.Time) ([]models.RequestLog, error)
	PurchaseHistory(ctx context.Context, from, to time.Time) ([]models.PurchaseRecord, error)
	PlanStatusSummary(ctx context.Context, now time.Time) (models.PlanStatusSummary, error)
	PlansExpiringBetween(ctx context.Context, from, to time.Time) ([]models.UserPlan, error)
}

// LogReader читает журнал запросов одного пользователя.
type LogReader interface {
	GetUserRequestLogs(ctx context.Context, userID string, start, end time.Time) ([]models.RequestLog, error)
}

// Service строит отчёты.
type Service struct {
	repo  Repository
	logs  LogReader
	clock clock.Clock
}

// New создаёт сервис отчётов.
func New(repo Repository, logs LogReader, clk clock.Clock) *Service {
	return &Service{repo: repo, logs: logs, clock: clk}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(dayLayout, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(time.Local), nil
}

// ParseDateRange разбирает границы отчёта. Без конца берётся now, без начала
// конец минус 30 дней. Начало выравнивается на полночь, конец на конец дня.
func ParseDateRange(startStr, endStr string, now time.Time) (models.DateRange, error) {
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	end := now
	if endStr != "" {
		t, err := parseDate(endStr)
		if err != nil {
			return models.DateRange{}, apperr.BadRequest("invalid endDate %q: expected YYYY-MM-DD or RFC3339", endStr)
		}
		end = t
	}

	start := end.AddDate(0, 0, -DefaultRangeDays)
	if startStr != "" {
		t, err := parseDate(startStr)
		if err != nil {
			return models.DateRange{}, apperr.BadRequest("invalid startDate %q: expected YYYY-MM-DD or RFC3339", startStr)
		}
		start = t
	}

	r := models.DateRange{Start: clock.StartOfDay(start), End: clock.EndOfDay(end)}
	if r.Start.After(r.End) {
		return models.DateRange{}, apperr.Validation("startDate must not be after endDate")
	}
	return r, nil
}

// Range разбирает границы относительно текущего времени сервиса.
func (s *Service) Range(startStr, endStr string) (models.DateRange, error) {
	return ParseDateRange(startStr, endStr, s.clock.Now())
}

// UsageByUser возвращает запросы по пользователям, больше всего первыми.
func (s *Service) UsageByUser(ctx context.Context, r models.DateRange) ([]models.UserUsage, error) {
	const op = "report.UsageByUser"
	rows, err := s.repo.UsageByUser(ctx, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

// UsageByEndpoint возвращает запросы по эндпоинтам с числом групп и периодом.
func (s *Service) UsageByEndpoint(ctx context.Context, r models.DateRange) (models.EndpointUsageReport, error) {
	const op = "report.UsageByEndpoint"
	rows, err := s.repo.UsageByEndpoint(ctx, r.Start, r.End)
	if err != nil {
		return models.EndpointUsageReport{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.EndpointUsageReport{Count: len(rows), DateRange: r, Data: rows}, nil
}

// UserDailyUsage возвращает использование одного пользователя по дням.
func (s *Service) UserDailyUsage(ctx context.Context, userID string, r models.DateRange) (models.UserUsageReport, error) {
	const op = "report.UserDailyUsage"
	if strings.TrimSpace(userID) == "" {
		return models.UserUsageReport{}, apperr.BadRequest("user id is required")
	}
	logs, err := s.logs.GetUserRequestLogs(ctx, userID, r.Start, r.End)
	if err != nil {
		return models.UserUsageReport{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.UserUsageReport{
		UserID:     userID,
		DateRange:  r,
		TotalCount: len(logs),
		Daily:      bucketByDay(logs, true),
	}, nil
}

// AllUsage возвращает сводку по дням и все записи журнала за период.
func (s *Service) AllUsage(ctx context.Context, r models.DateRange) (models.AllUsageReport, error) {
	const op = "report.AllUsage"
	logs, err := s.repo.GetRequestLogs(ctx, "", r.Start, r.End)
	if err != nil {
		return models.AllUsageReport{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.AllUsageReport{
		DateRange:  r,
		TotalCount: len(logs),
		Daily:      bucketByDay(logs, false),
		Logs:       logs,
	}, nil
}

// PurchaseHistory возвращает купленные в период планы, новые первыми.
func (s *Service) PurchaseHistory(ctx context.Context, r models.DateRange) (models.PurchaseHistoryReport, error) {
	const op = "report.PurchaseHistory"
	rows, err := s.repo.PurchaseHistory(ctx, r.Start, r.End)
	if err != nil {
		return models.PurchaseHistoryReport{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.PurchaseHistoryReport{DateRange: r, Count: len(rows), Data: rows}, nil
}

// PlanStatus возвращает сводку состояний планов и планы, истекающие в ближайшую неделю.
func (s *Service) PlanStatus(ctx context.Context) (models.PlanStatusReport, error) {
	const op = "report.PlanStatus"
	now := s.clock.Now()

	sum, err := s.repo.PlanStatusSummary(ctx, now)
	if err != nil {
		return models.PlanStatusReport{}, fmt.Errorf("%s: %w", op, err)
	}
	soon, err := s.repo.PlansExpiringBetween(ctx, now, now.AddDate(0, 0, ExpiringWithinDays))
	if err != nil {
		return models.PlanStatusReport{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.PlanStatusReport{Summary: sum, ExpiringSoon: soon}, nil
}

// bucketByDay группирует записи по локальной дате, дни по возрастанию.
func bucketByDay(logs []models.RequestLog, withEndpoints bool) []models.DailyUsage {
	byDay := make(map[string]*models.DailyUsage)
	for _, l := range logs {
		key := l.Timestamp.In(time.Local).Format(dayLayout)
		d, ok := byDay[key]
		if !ok {
			d = &models.DailyUsage{Date: key}
			if withEndpoints {
				d.Endpoints = make(map[string]int)
			}
			byDay[key] = d
		}
		d.Count++
		if withEndpoints {
			d.Endpoints[l.Endpoint]++
		}
	}

	days := make([]models.DailyUsage, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}
