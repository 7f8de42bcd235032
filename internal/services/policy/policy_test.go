package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memRepo struct {
	mu       sync.Mutex
	policies map[models.Role]models.RoleAccessPolicy
}

func newMemRepo() *memRepo {
	return &memRepo{policies: map[models.Role]models.RoleAccessPolicy{}}
}

func (m *memRepo) GetPolicies(_ context.Context) ([]models.RoleAccessPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RoleAccessPolicy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (m *memRepo) GetPolicyByRole(_ context.Context, role models.Role) (*models.RoleAccessPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[role]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (m *memRepo) InsertPoliciesIfMissing(_ context.Context, policies []models.RoleAccessPolicy) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, p := range policies {
		if _, ok := m.policies[p.Role]; !ok {
			m.policies[p.Role] = p
			created++
		}
	}
	return created, nil
}

func (m *memRepo) ReplacePolicies(ctx context.Context, policies []models.RoleAccessPolicy) (int, error) {
	m.mu.Lock()
	m.policies = map[models.Role]models.RoleAccessPolicy{}
	m.mu.Unlock()
	return m.InsertPoliciesIfMissing(ctx, policies)
}

func (m *memRepo) UpdatePolicy(_ context.Context, role models.Role, upd models.PolicyUpdate) (*models.RoleAccessPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[role]
	if !ok {
		return nil, models.ErrNotFound
	}
	if upd.HasUnlimitedAccess != nil {
		p.HasUnlimitedAccess = *upd.HasUnlimitedAccess
	}
	if upd.RequiresPackage != nil {
		p.RequiresPackage = *upd.RequiresPackage
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	m.policies[role] = p
	return &p, nil
}

type repoMock struct{ mock.Mock }

func (m *repoMock) GetPolicies(ctx context.Context) ([]models.RoleAccessPolicy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAccessPolicy), args.Error(1)
}

func (m *repoMock) GetPolicyByRole(ctx context.Context, role models.Role) (*models.RoleAccessPolicy, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoleAccessPolicy), args.Error(1)
}

func (m *repoMock) InsertPoliciesIfMissing(ctx context.Context, policies []models.RoleAccessPolicy) (int, error) {
	args := m.Called(ctx, policies)
	return args.Int(0), args.Error(1)
}

func (m *repoMock) ReplacePolicies(ctx context.Context, policies []models.RoleAccessPolicy) (int, error) {
	args := m.Called(ctx, policies)
	return args.Int(0), args.Error(1)
}

func (m *repoMock) UpdatePolicy(ctx context.Context, role models.Role, upd models.PolicyUpdate) (*models.RoleAccessPolicy, error) {
	args := m.Called(ctx, role, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoleAccessPolicy), args.Error(1)
}

func TestDefaults(t *testing.T) {
	byRole := map[models.Role]models.RoleAccessPolicy{}
	for _, p := range Defaults() {
		byRole[p.Role] = p
	}
	require.Len(t, byRole, len(models.Roles()))

	assert.True(t, byRole[models.RoleAdmin].HasUnlimitedAccess)
	assert.False(t, byRole[models.RoleAdmin].RequiresPackage)
	assert.True(t, byRole[models.RoleStudent].RequiresPackage)
	assert.False(t, byRole[models.RoleStudent].HasUnlimitedAccess)
	for _, r := range []models.Role{models.RoleDoctor, models.RoleRadiologist, models.RolePatient} {
		assert.False(t, byRole[r].HasUnlimitedAccess, r)
		assert.False(t, byRole[r].RequiresPackage, r)
	}
}

func TestService_MissingPolicyFailsSafe(t *testing.T) {
	svc := New(newMemRepo(), discard)
	ctx := context.Background()

	unlimited, err := svc.HasUnlimitedAccess(ctx, models.RoleDoctor)
	require.NoError(t, err)
	assert.False(t, unlimited)

	requires, err := svc.RequiresPackage(ctx, models.RoleDoctor)
	require.NoError(t, err)
	assert.True(t, requires)
}

func TestService_InitializeIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo, discard)
	ctx := context.Background()

	created, err := svc.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(models.Roles()), created)
	first, err := svc.GetAll(ctx)
	require.NoError(t, err)

	created, err = svc.Initialize(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)
	second, err := svc.GetAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, len(models.Roles()))
}

func TestService_InitializeKeepsEdits(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo, discard)
	ctx := context.Background()

	_, err := svc.Initialize(ctx)
	require.NoError(t, err)
	unlimited := true
	_, err = svc.Update(ctx, models.RoleStudent, models.PolicyUpdate{HasUnlimitedAccess: &unlimited})
	require.NoError(t, err)

	_, err = svc.Initialize(ctx)
	require.NoError(t, err)
	got, err := svc.HasUnlimitedAccess(ctx, models.RoleStudent)
	require.NoError(t, err)
	assert.True(t, got)

	created, err := svc.ResetToDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(models.Roles()), created)
	got, err = svc.HasUnlimitedAccess(ctx, models.RoleStudent)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	desc := "updated"
	otherRole := "doctor"
	sameRole := "student"

	tests := []struct {
		name     string
		role     models.Role
		upd      models.PolicyUpdate
		seed     bool
		wantCode int
	}{
		{name: "invalid role", role: "nurse", upd: models.PolicyUpdate{Description: &desc}, wantCode: http.StatusBadRequest},
		{name: "role change", role: models.RoleStudent, upd: models.PolicyUpdate{Role: &otherRole}, seed: true, wantCode: http.StatusBadRequest},
		{name: "missing policy", role: models.RoleStudent, upd: models.PolicyUpdate{Description: &desc}, wantCode: http.StatusNotFound},
		{name: "same role is allowed", role: models.RoleStudent, upd: models.PolicyUpdate{Role: &sameRole, Description: &desc}, seed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(newMemRepo(), discard)
			if tt.seed {
				_, err := svc.Initialize(ctx)
				require.NoError(t, err)
			}

			got, err := svc.Update(ctx, tt.role, tt.upd)
			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperr.StatusCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, desc, got.Description)
			assert.Equal(t, tt.role, got.Role)
		})
	}
}

func TestService_GetByRole(t *testing.T) {
	svc := New(newMemRepo(), discard)
	ctx := context.Background()

	_, err := svc.GetByRole(ctx, "nurse")
	assert.Equal(t, http.StatusBadRequest, apperr.StatusCode(err))

	p, err := svc.GetByRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestService_StoreErrorsPropagate(t *testing.T) {
	repo := new(repoMock)
	boom := errors.New("connection refused")
	repo.On("GetPolicyByRole", mock.Anything, models.RoleStudent).Return(nil, boom)
	svc := New(repo, discard)

	_, err := svc.HasUnlimitedAccess(context.Background(), models.RoleStudent)
	require.ErrorIs(t, err, boom)
	_, err = svc.RequiresPackage(context.Background(), models.RoleStudent)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, http.StatusInternalServerError, apperr.StatusCode(err))
	repo.AssertExpectations(t)
}
