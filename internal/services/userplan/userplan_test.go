package userplan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
	"github.com/magabrotheeeer/ent-insight/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// memStore хранит планы и пакеты в памяти с той же семантикой, что и PostgreSQL.
type memStore struct {
	mu       sync.Mutex
	plans    map[string]models.UserPlan
	order    []string
	packages map[string]models.Package
}

func newMemStore(pkgs ...models.Package) *memStore {
	s := &memStore{plans: map[string]models.UserPlan{}, packages: map[string]models.Package{}}
	for _, p := range pkgs {
		s.packages[p.ID] = p
	}
	return s
}

func (s *memStore) GetPackageByID(_ context.Context, id string) (*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) withPackage(p models.UserPlan) *models.UserPlan {
	if pkg, ok := s.packages[p.PackageID]; ok {
		p.Package = &pkg
	}
	return &p
}

func (s *memStore) insert(plan models.UserPlan) *models.UserPlan {
	for id, p := range s.plans {
		if p.UserID == plan.UserID && p.IsActive {
			p.IsActive = false
			s.plans[id] = p
		}
	}
	plan.IsActive = true
	s.plans[plan.ID] = plan
	s.order = append(s.order, plan.ID)
	return s.withPackage(plan)
}

func (s *memStore) ReplaceActivePlan(_ context.Context, plan models.UserPlan) (*models.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(plan), nil
}

func (s *memStore) InsertPlanIfNoneEffective(_ context.Context, plan models.UserPlan, now time.Time) (*models.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.plans {
		if p.UserID == plan.UserID && p.EffectivelyActive(now) {
			return nil, models.ErrAlreadyExists
		}
	}
	return s.insert(plan), nil
}

func (s *memStore) GetUserPlanByID(_ context.Context, id string) (*models.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.withPackage(p), nil
}

func (s *memStore) list(filter func(models.UserPlan) bool) []models.UserPlan {
	out := make([]models.UserPlan, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		p := s.plans[s.order[i]]
		if filter(p) {
			out = append(out, *s.withPackage(p))
		}
	}
	return out
}

func (s *memStore) GetUserPlans(_ context.Context, activeOnly bool) ([]models.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(p models.UserPlan) bool { return !activeOnly || p.IsActive }), nil
}

func (s *memStore) GetUserPlansByUser(_ context.Context, userID string, activeOnly bool) ([]models.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(p models.UserPlan) bool { return p.UserID == userID && (!activeOnly || p.IsActive) }), nil
}

func (s *memStore) GetActiveUserPlan(_ context.Context, userID string, now time.Time) (*models.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.list(func(p models.UserPlan) bool { return p.UserID == userID && p.EffectivelyActive(now) })
	if len(found) == 0 {
		return nil, models.ErrNotFound
	}
	return &found[0], nil
}

func (s *memStore) UpdateUserPlan(_ context.Context, plan models.UserPlan) (*models.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[plan.ID]; !ok {
		return nil, models.ErrNotFound
	}
	if plan.IsActive {
		for id, p := range s.plans {
			if id != plan.ID && p.UserID == plan.UserID && p.IsActive {
				return nil, models.ErrAlreadyExists
			}
		}
	}
	plan.Package = nil
	s.plans[plan.ID] = plan
	return s.withPackage(plan), nil
}

func (s *memStore) CancelUserPlan(_ context.Context, id string) (*models.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	p.IsActive = false
	s.plans[id] = p
	return s.withPackage(p), nil
}

func (s *memStore) GetExpiredPlans(_ context.Context, now time.Time) ([]models.UserPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.list(func(p models.UserPlan) bool { return p.IsActive && p.EndDate.Before(now) })
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (s *memStore) DeactivateExpiredPlans(ctx context.Context, now time.Time) ([]models.UserPlan, error) {
	expired, _ := s.GetExpiredPlans(ctx, now)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range expired {
		p := s.plans[expired[i].ID]
		p.IsActive = false
		s.plans[p.ID] = p
		expired[i].IsActive = false
	}
	return expired, nil
}

func (s *memStore) put(p models.UserPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
	s.order = append(s.order, p.ID)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, message any) error {
	return m.Called(ctx, routingKey, message).Error(0)
}

var (
	day0  = time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	basic = models.Package{ID: "basic", Name: "basic", DailyRequestLimit: 5, DurationInDays: 30, IsActive: true}
)

func newService(store *memStore, pub Publisher) (*Service, *clock.Fake) {
	clk := clock.NewFake(day0)
	return New(store, store, pub, clk, nil, discard), clk
}

func TestService_Create_DeactivatesPrevious(t *testing.T) {
	store := newMemStore(basic)
	svc, _ := newService(store, nil)
	ctx := context.Background()

	p1, err := svc.Create(ctx, models.NewUserPlan{UserID: "u1", PackageID: "basic"})
	require.NoError(t, err)
	p2, err := svc.Create(ctx, models.NewUserPlan{UserID: "u1", PackageID: "basic"})
	require.NoError(t, err)

	plans, err := svc.GetByUser(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, p2.ID, plans[0].ID)
	assert.True(t, plans[0].IsActive)
	assert.Equal(t, p1.ID, plans[1].ID)
	assert.False(t, plans[1].IsActive)
}

func TestService_Create_DerivesEndDate(t *testing.T) {
	store := newMemStore(basic)
	svc, _ := newService(store, nil)
	start := day0.AddDate(0, 0, 2)

	plan, err := svc.Create(context.Background(), models.NewUserPlan{UserID: "u1", PackageID: "basic", StartDate: &start})
	require.NoError(t, err)
	assert.Equal(t, start.AddDate(0, 0, 30), plan.EndDate)
	assert.Equal(t, models.PaymentPending, plan.PaymentStatus)
}

func TestService_Create_Errors(t *testing.T) {
	store := newMemStore(basic)
	svc, _ := newService(store, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, models.NewUserPlan{UserID: "u1", PackageID: "missing"})
	assert.Equal(t, http.StatusNotFound, apperr.StatusCode(err))

	end := day0.AddDate(0, 0, -1)
	_, err = svc.Create(ctx, models.NewUserPlan{UserID: "u1", PackageID: "basic", EndDate: &end})
	assert.Equal(t, http.StatusUnprocessableEntity, apperr.StatusCode(err))
}

func TestService_GetActiveUserPlan_DateWindow(t *testing.T) {
	store := newMemStore(basic)
	svc, _ := newService(store, nil)
	ctx := context.Background()

	store.put(models.UserPlan{ID: "expired", UserID: "u1", PackageID: "basic", IsActive: true,
		StartDate: day0.AddDate(0, 0, -30), EndDate: day0.AddDate(0, 0, -1)})
	store.put(models.UserPlan{ID: "future", UserID: "u2", PackageID: "basic", IsActive: true,
		StartDate: day0.AddDate(0, 0, 1), EndDate: day0.AddDate(0, 0, 31)})

	plan, err := svc.GetActiveUserPlan(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, plan)

	plan, err = svc.GetActiveUserPlan(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestService_Purchase(t *testing.T) {
	hidden := models.Package{ID: "hidden", Name: "hidden", DurationInDays: 10, IsActive: false}
	store := newMemStore(basic, hidden)
	pub := new(PublisherMock)
	pub.On("Publish", mock.Anything, rabbitmq.RoutingPlanCreated, mock.AnythingOfType("models.PlanEvent")).Return(nil).Once()
	svc, _ := newService(store, pub)
	ctx := context.Background()

	plan, err := svc.Purchase(ctx, "u1", models.PurchaseRequest{PackageID: "basic"})
	require.NoError(t, err)
	assert.Equal(t, day0, plan.StartDate)
	assert.Equal(t, day0.AddDate(0, 0, 30), plan.EndDate)
	assert.Equal(t, models.PaymentCompleted, plan.PaymentStatus)
	assert.Equal(t, models.DefaultPaymentMethod, plan.PaymentMethod)
	assert.True(t, strings.HasPrefix(plan.TransactionID, "txn_"))

	_, err = svc.Purchase(ctx, "u1", models.PurchaseRequest{PackageID: "basic"})
	assert.Equal(t, http.StatusUnprocessableEntity, apperr.StatusCode(err), "already has an active plan")

	_, err = svc.Purchase(ctx, "u2", models.PurchaseRequest{PackageID: "hidden"})
	assert.Equal(t, http.StatusUnprocessableEntity, apperr.StatusCode(err))

	_, err = svc.Purchase(ctx, "u2", models.PurchaseRequest{PackageID: "missing"})
	assert.Equal(t, http.StatusNotFound, apperr.StatusCode(err))

	pub.AssertExpectations(t)
}

func TestService_Purchase_AfterExpiry(t *testing.T) {
	store := newMemStore(basic)
	svc, clk := newService(store, nil)
	ctx := context.Background()

	first, err := svc.Purchase(ctx, "u1", models.PurchaseRequest{PackageID: "basic", TransactionID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", first.TransactionID)

	clk.Advance(31 * 24 * time.Hour)
	second, err := svc.Purchase(ctx, "u1", models.PurchaseRequest{PackageID: "basic"})
	require.NoError(t, err)

	old, err := svc.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	assert.True(t, second.IsActive)
}

func TestService_Cancel(t *testing.T) {
	store := newMemStore(basic)
	pub := new(PublisherMock)
	pub.On("Publish", mock.Anything, rabbitmq.RoutingPlanCreated, mock.Anything).Return(nil)
	pub.On("Publish", mock.Anything, rabbitmq.RoutingPlanCancelled, mock.Anything).Return(errors.New("broker down"))
	svc, _ := newService(store, pub)
	ctx := context.Background()

	plan, err := svc.Create(ctx, models.NewUserPlan{UserID: "u1", PackageID: "basic"})
	require.NoError(t, err)

	_, err = svc.CancelOwn(ctx, "u2", plan.ID)
	assert.Equal(t, http.StatusForbidden, apperr.StatusCode(err))

	_, err = svc.CancelOwn(ctx, "u1", "missing")
	assert.Equal(t, http.StatusNotFound, apperr.StatusCode(err))

	for range 2 {
		cancelled, err := svc.CancelOwn(ctx, "u1", plan.ID)
		require.NoError(t, err, "publish failures do not fail the cancel")
		assert.False(t, cancelled.IsActive)
		assert.Equal(t, plan.StartDate, cancelled.StartDate)
		assert.Equal(t, plan.EndDate, cancelled.EndDate)
	}
}

func TestService_Update(t *testing.T) {
	pro := models.Package{ID: "pro", Name: "pro", DailyRequestLimit: 50, DurationInDays: 30, IsActive: true}
	store := newMemStore(basic, pro)
	svc, _ := newService(store, nil)
	ctx := context.Background()

	p1, err := svc.Create(ctx, models.NewUserPlan{UserID: "u1", PackageID: "basic"})
	require.NoError(t, err)

	missing := "missing"
	_, err = svc.Update(ctx, p1.ID, models.UserPlanUpdate{PackageID: &missing})
	assert.Equal(t, http.StatusNotFound, apperr.StatusCode(err))

	proID := "pro"
	updated, err := svc.Update(ctx, p1.ID, models.UserPlanUpdate{PackageID: &proID})
	require.NoError(t, err)
	require.NotNil(t, updated.Package)
	assert.Equal(t, 50, updated.Package.DailyRequestLimit)

	_, err = svc.Create(ctx, models.NewUserPlan{UserID: "u1", PackageID: "basic"})
	require.NoError(t, err)
	active := true
	_, err = svc.Update(ctx, p1.ID, models.UserPlanUpdate{IsActive: &active})
	assert.Equal(t, http.StatusConflict, apperr.StatusCode(err))

	_, err = svc.Update(ctx, "missing", models.UserPlanUpdate{})
	assert.Equal(t, http.StatusNotFound, apperr.StatusCode(err))
}

func TestService_DeactivateExpiredPlans(t *testing.T) {
	store := newMemStore(basic)
	pub := new(PublisherMock)
	pub.On("Publish", mock.Anything, rabbitmq.RoutingPlanExpired, mock.MatchedBy(func(e models.PlanEvent) bool {
		return e.PlanID == "old" && e.Type == rabbitmq.RoutingPlanExpired
	})).Return(nil).Once()
	svc, _ := newService(store, pub)
	ctx := context.Background()

	start := day0.AddDate(0, 0, -30)
	end := day0.AddDate(0, 0, -1)
	store.put(models.UserPlan{ID: "old", UserID: "u1", PackageID: "basic", IsActive: true, StartDate: start, EndDate: end})
	store.put(models.UserPlan{ID: "current", UserID: "u2", PackageID: "basic", IsActive: true, StartDate: start, EndDate: day0.AddDate(0, 0, 1)})

	expired, err := svc.GetExpiredPlans(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].ID)

	count, err := svc.DeactivateExpiredPlans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired, err = svc.GetExpiredPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	old, err := svc.GetByID(ctx, "old")
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	assert.Equal(t, start, old.StartDate)
	assert.Equal(t, end, old.EndDate)

	count, err = svc.DeactivateExpiredPlans(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	pub.AssertExpectations(t)
}
