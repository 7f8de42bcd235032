package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ent-insight/internal/models"
)

const requestLogColumns = `id, user_id, endpoint, method, status_code, response_time, user_agent, ip, timestamp`

// CreateRequestLog добавляет запись в журнал запросов.
func (s *Storage) CreateRequestLog(ctx context.Context, entry models.RequestLog) error {
	const op = "repository.CreateRequestLog"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO request_logs (`+requestLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.UserID, entry.Endpoint, entry.Method, entry.StatusCode,
		entry.ResponseTime, entry.UserAgent, entry.IP, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountRequests считает записи пользователя с timestamp в [from, to).
func (s *Storage) CountRequests(ctx context.Context, userID string, from, to time.Time) (int, error) {
	const op = "repository.CountRequests"
	if err := ctxDone(ctx, op); err != nil {
		return 0, err
	}

	var count int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM request_logs
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		userID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// GetRequestLogs возвращает записи с timestamp в [from, to], новые первыми.
// Пустой userID означает всех пользователей.
func (s *Storage) GetRequestLogs(ctx context.Context, userID string, from, to time.Time) ([]models.RequestLog, error) {
	const op = "repository.GetRequestLogs"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+requestLogColumns+`
		FROM request_logs
		WHERE ($1 = '' OR user_id = $1) AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp DESC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	result := make([]models.RequestLog, 0)
	for rows.Next() {
		var l models.RequestLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Endpoint, &l.Method, &l.StatusCode,
			&l.ResponseTime, &l.UserAgent, &l.IP, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
