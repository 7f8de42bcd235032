package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/ent-insight/internal/migrations"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(connStr)
	require.NoError(t, err)

	path, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, path))
	require.NoError(t, CheckDatabaseReady(ctx, storage))

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}

// TestDataFactory создаёт тестовые данные через методы хранилища.
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создаёт фабрику тестовых данных.
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreatePackage создаёт пакет с заданным лимитом.
func (f *TestDataFactory) CreatePackage(t *testing.T, name string, limit int, unlimited bool) *models.Package {
	t.Helper()
	p, err := f.storage.CreatePackage(context.Background(), models.Package{
		ID:                uuid.NewString(),
		Name:              name,
		DailyRequestLimit: limit,
		DurationInDays:    30,
		Price:             decimal.NewFromInt(int64(limit)),
		IsUnlimited:       unlimited,
		IsActive:          true,
	})
	require.NoError(t, err)
	return p
}

// InsertPlan вставляет план напрямую, минуя деактивацию прочих планов.
func (f *TestDataFactory) InsertPlan(t *testing.T, userID, packageID string, start, end time.Time, active bool) string {
	t.Helper()
	id := uuid.NewString()
	_, err := f.storage.DB.Exec(`
		INSERT INTO user_plans (id, user_id, package_id, start_date, end_date, is_active, purchase_date, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $4, 'completed')`,
		id, userID, packageID, start, end, active)
	require.NoError(t, err)
	return id
}

// InsertLogs добавляет n записей журнала для пользователя с указанным временем.
func (f *TestDataFactory) InsertLogs(t *testing.T, userID, endpoint, method string, ts time.Time, n int) {
	t.Helper()
	for range n {
		err := f.storage.CreateRequestLog(context.Background(), models.RequestLog{
			ID:         uuid.NewString(),
			UserID:     userID,
			Endpoint:   endpoint,
			Method:     method,
			StatusCode: 200,
			Timestamp:  ts,
		})
		require.NoError(t, err)
	}
}

func newPlan(userID, packageID string, start time.Time, days int) models.UserPlan {
	return models.UserPlan{
		ID:            uuid.NewString(),
		UserID:        userID,
		PackageID:     packageID,
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, days),
		PurchaseDate:  start,
		PaymentStatus: models.PaymentCompleted,
	}
}
