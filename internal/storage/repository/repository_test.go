package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ent-insight/internal/models"
)

func TestStorage_Policies(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	defaults := []models.RoleAccessPolicy{
		{Role: models.RoleAdmin, HasUnlimitedAccess: true},
		{Role: models.RoleStudent, RequiresPackage: true},
	}

	created, err := storage.InsertPoliciesIfMissing(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	created, err = storage.InsertPoliciesIfMissing(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	all, err := storage.GetPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.RoleAdmin, all[0].Role)

	desc := "students pay"
	unlimited := true
	updated, err := storage.UpdatePolicy(ctx, models.RoleStudent, models.PolicyUpdate{Description: &desc, HasUnlimitedAccess: &unlimited})
	require.NoError(t, err)
	assert.Equal(t, "students pay", updated.Description)
	assert.True(t, updated.HasUnlimitedAccess)
	assert.True(t, updated.RequiresPackage)

	_, err = storage.UpdatePolicy(ctx, models.RoleDoctor, models.PolicyUpdate{Description: &desc})
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = storage.GetPolicyByRole(ctx, models.RolePatient)
	require.ErrorIs(t, err, models.ErrNotFound)

	created, err = storage.ReplacePolicies(ctx, defaults[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	all, err = storage.GetPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStorage_Packages(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	pro := factory.CreatePackage(t, "pro", 50, false)
	basic := factory.CreatePackage(t, "basic", 5, false)

	_, err := storage.CreatePackage(ctx, models.Package{ID: uuid.NewString(), Name: "pro", DurationInDays: 1})
	require.ErrorIs(t, err, models.ErrAlreadyExists)

	list, err := storage.GetPackages(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, basic.ID, list[0].ID, "sorted by price ascending")

	_, err = storage.SetPackageActive(ctx, basic.ID, false)
	require.NoError(t, err)
	list, err = storage.GetPackages(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pro.ID, list[0].ID)

	taken, err := storage.PackageNameTaken(ctx, "pro", pro.ID)
	require.NoError(t, err)
	assert.False(t, taken)
	taken, err = storage.PackageNameTaken(ctx, "pro", basic.ID)
	require.NoError(t, err)
	assert.True(t, taken)

	basic.Name = "pro"
	_, err = storage.UpdatePackage(ctx, *basic)
	require.ErrorIs(t, err, models.ErrAlreadyExists)

	basic.Name = "starter"
	basic.Price = decimal.RequireFromString("9.99")
	got, err := storage.UpdatePackage(ctx, *basic)
	require.NoError(t, err)
	assert.Equal(t, "starter", got.Name)
	assert.True(t, decimal.RequireFromString("9.99").Equal(got.Price))

	require.NoError(t, storage.DeletePackage(ctx, basic.ID))
	require.ErrorIs(t, storage.DeletePackage(ctx, basic.ID), models.ErrNotFound)
	_, err = storage.GetPackageByID(ctx, basic.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestStorage_ReplaceActivePlan_SingleActive(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	pkg := factory.CreatePackage(t, "basic", 5, false)

	now := time.Now()
	p1, err := storage.ReplaceActivePlan(ctx, newPlan("user-1", pkg.ID, now, 30))
	require.NoError(t, err)
	p2, err := storage.ReplaceActivePlan(ctx, newPlan("user-1", pkg.ID, now, 30))
	require.NoError(t, err)

	plans, err := storage.GetUserPlansByUser(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	byID := map[string]models.UserPlan{}
	for _, p := range plans {
		byID[p.ID] = p
	}
	assert.False(t, byID[p1.ID].IsActive)
	assert.True(t, byID[p2.ID].IsActive)
	require.NotNil(t, byID[p2.ID].Package)
	assert.Equal(t, "basic", byID[p2.ID].Package.Name)
}

func TestStorage_ReplaceActivePlan_Concurrent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	pkg := factory.CreatePackage(t, "basic", 5, false)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.ReplaceActivePlan(ctx, newPlan("user-1", pkg.ID, time.Now(), 30))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, err := storage.GetUserPlansByUser(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestStorage_InsertPlanIfNoneEffective(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	pkg := factory.CreatePackage(t, "basic", 5, false)
	now := time.Now()

	expired := factory.InsertPlan(t, "user-1", pkg.ID, now.AddDate(0, 0, -40), now.AddDate(0, 0, -10), true)

	_, err := storage.InsertPlanIfNoneEffective(ctx, newPlan("user-1", pkg.ID, now, 30), now)
	require.NoError(t, err)

	old, err := storage.GetUserPlanByID(ctx, expired)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	_, err = storage.InsertPlanIfNoneEffective(ctx, newPlan("user-1", pkg.ID, now, 30), now)
	require.ErrorIs(t, err, models.ErrAlreadyExists)
}

func TestStorage_GetActiveUserPlan_DateWindow(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	pkg := factory.CreatePackage(t, "basic", 5, false)
	now := time.Now()

	factory.InsertPlan(t, "expired", pkg.ID, now.AddDate(0, 0, -30), now.AddDate(0, 0, -1), true)
	factory.InsertPlan(t, "future", pkg.ID, now.AddDate(0, 0, 1), now.AddDate(0, 0, 30), true)
	factory.InsertPlan(t, "cancelled", pkg.ID, now.AddDate(0, 0, -1), now.AddDate(0, 0, 30), false)
	current := factory.InsertPlan(t, "current", pkg.ID, now.AddDate(0, 0, -1), now.AddDate(0, 0, 30), true)

	for _, user := range []string{"expired", "future", "cancelled", "nobody"} {
		_, err := storage.GetActiveUserPlan(ctx, user, now)
		assert.ErrorIs(t, err, models.ErrNotFound, user)
	}

	plan, err := storage.GetActiveUserPlan(ctx, "current", now)
	require.NoError(t, err)
	assert.Equal(t, current, plan.ID)
	require.NotNil(t, plan.Package)
	assert.Equal(t, 5, plan.Package.DailyRequestLimit)
}

func TestStorage_ExpirySweep(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	pkg := factory.CreatePackage(t, "basic", 5, false)
	now := time.Now()

	start := now.AddDate(0, 0, -30).Truncate(time.Second)
	end := now.AddDate(0, 0, -1).Truncate(time.Second)
	id := factory.InsertPlan(t, "user-1", pkg.ID, start, end, true)

	expired, err := storage.GetExpiredPlans(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, id, expired[0].ID)

	swept, err := storage.DeactivateExpiredPlans(ctx, now)
	require.NoError(t, err)
	assert.Len(t, swept, 1)

	expired, err = storage.GetExpiredPlans(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, expired)

	plan, err := storage.GetUserPlanByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, plan.IsActive)
	assert.True(t, start.Equal(plan.StartDate))
	assert.True(t, end.Equal(plan.EndDate))

	swept, err = storage.DeactivateExpiredPlans(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, swept)
}

func TestStorage_CancelUserPlan(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	pkg := factory.CreatePackage(t, "basic", 5, false)
	now := time.Now()
	id := factory.InsertPlan(t, "user-1", pkg.ID, now, now.AddDate(0, 0, 30), true)

	for range 2 {
		plan, err := storage.CancelUserPlan(ctx, id)
		require.NoError(t, err)
		assert.False(t, plan.IsActive)
	}

	_, err := storage.CancelUserPlan(ctx, "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestStorage_RequestLogsAndReports(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	factory.InsertLogs(t, "user-1", "/api/v1/diagnosis/sinusitis", "POST", dayStart.Add(time.Hour), 3)
	factory.InsertLogs(t, "user-1", "/api/v1/diagnosis/pharyngitis", "POST", dayStart.Add(2*time.Hour), 1)
	factory.InsertLogs(t, "user-1", "/api/v1/diagnosis/sinusitis", "POST", dayStart.Add(-time.Minute), 2)
	factory.InsertLogs(t, "user-2", "/api/v1/diagnosis/sinusitis", "POST", dayStart.Add(time.Hour), 1)

	count, err := storage.CountRequests(ctx, "user-1", dayStart, dayStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	logs, err := storage.GetRequestLogs(ctx, "user-1", dayStart.AddDate(0, 0, -1), now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 6)
	assert.False(t, logs[0].Timestamp.Before(logs[5].Timestamp), "newest first")

	byUser, err := storage.UsageByUser(ctx, dayStart.AddDate(0, 0, -1), dayStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "user-1", byUser[0].UserID)
	assert.Equal(t, 6, byUser[0].Count)
	assert.ElementsMatch(t, []string{"/api/v1/diagnosis/pharyngitis", "/api/v1/diagnosis/sinusitis"}, byUser[0].Endpoints)

	byEndpoint, err := storage.UsageByEndpoint(ctx, dayStart.AddDate(0, 0, -1), dayStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, byEndpoint, 2)
	assert.Equal(t, "/api/v1/diagnosis/sinusitis", byEndpoint[0].Endpoint)
	assert.Equal(t, 6, byEndpoint[0].Count)
	assert.Equal(t, []string{"POST"}, byEndpoint[0].Methods)
}

func TestStorage_PlanReports(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	pkg := factory.CreatePackage(t, "basic", 5, false)
	now := time.Now()

	factory.InsertPlan(t, "u1", pkg.ID, now.AddDate(0, 0, -1), now.AddDate(0, 0, 3), true)
	factory.InsertPlan(t, "u2", pkg.ID, now.AddDate(0, 0, -30), now.AddDate(0, 0, -1), true)
	factory.InsertPlan(t, "u3", pkg.ID, now.AddDate(0, 0, -5), now.AddDate(0, 0, 25), false)

	sum, err := storage.PlanStatusSummary(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusSummary{Active: 1, ExpiredFlagged: 1, Inactive: 1, Total: 3}, sum)

	soon, err := storage.PlansExpiringBetween(ctx, now, now.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, soon, 1)
	assert.Equal(t, "u1", soon[0].UserID)

	history, err := storage.PurchaseHistory(ctx, now.AddDate(0, 0, -7), now)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "u1", history[0].UserID)
	assert.Equal(t, "basic", history[0].PackageName)
}
