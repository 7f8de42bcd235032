package middlewarectx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ent-insight/internal/lib/apperr"
	"github.com/magabrotheeeer/ent-insight/internal/lib/clock"
	"github.com/magabrotheeeer/ent-insight/internal/models"
	"github.com/magabrotheeeer/ent-insight/internal/services/access"
)

type GateMock struct {
	mock.Mock
}

func (m *GateMock) Check(ctx context.Context, id *models.Identity) (access.Decision, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(access.Decision), args.Error(1)
}

type queue struct {
	mu      sync.Mutex
	entries []models.RequestLog
}

func (q *queue) Enqueue(e models.RequestLog) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	return true
}

// stepClock сдвигается на step при каждом чтении.
type stepClock struct {
	*clock.Fake
	step time.Duration
}

func (c stepClock) Now() time.Time {
	t := c.Fake.Now()
	c.Fake.Advance(c.step)
	return t
}

var student = &models.Identity{UserID: "s-1", Role: models.RoleStudent}

func serve(t *testing.T, gate Gate, q *queue, next http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	clk := stepClock{Fake: clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)), step: 40 * time.Millisecond}
	h := AccessControl(gate, q, clk, nil, newNoopLogger())(next)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/diagnosis/sinusitis", nil)
	req.RemoteAddr = "192.0.2.7:51000"
	req.Header.Set("User-Agent", "ent-client/1.0")
	req = req.WithContext(WithIdentity(req.Context(), student))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAccessControl_RejectionsAreNotLogged(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "no plan", err: apperr.PaymentRequired("an active subscription package is required"), want: http.StatusPaymentRequired},
		{name: "quota", err: apperr.TooManyRequests("daily request limit of 5 reached"), want: http.StatusTooManyRequests},
		{name: "store failure", err: errors.New("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := new(GateMock)
			gate.On("Check", mock.Anything, student).Return(access.Decision{}, tt.err)
			q := &queue{}
			called := false

			w := serve(t, gate, q, http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

			assert.Equal(t, tt.want, w.Code)
			assert.False(t, called)
			assert.Empty(t, q.entries)
		})
	}
}

func TestAccessControl_LogsFinalStatusAfterResponse(t *testing.T) {
	gate := new(GateMock)
	gate.On("Check", mock.Anything, student).Return(access.Decision{Admitted: true, Reason: access.ReasonWithinQuota}, nil)
	q := &queue{}

	w := serve(t, gate, q, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		assert.Empty(t, q.entries, "entry must be queued after the handler returns")
		w.WriteHeader(http.StatusBadGateway)
	}))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.Len(t, q.entries, 1)
	e := q.entries[0]
	assert.Equal(t, "s-1", e.UserID)
	assert.Equal(t, "/api/v1/diagnosis/sinusitis", e.Endpoint)
	assert.Equal(t, http.MethodPost, e.Method)
	assert.Equal(t, http.StatusBadGateway, e.StatusCode)
	assert.Equal(t, int64(40), e.ResponseTime)
	assert.Equal(t, "ent-client/1.0", e.UserAgent)
	assert.Equal(t, "192.0.2.7", e.IP)
}

func TestAccessControl_ImplicitOK(t *testing.T) {
	gate := new(GateMock)
	gate.On("Check", mock.Anything, student).Return(access.Decision{Admitted: true}, nil)
	q := &queue{}

	serve(t, gate, q, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	require.Len(t, q.entries, 1)
	assert.Equal(t, http.StatusOK, q.entries[0].StatusCode)
}

func TestAccessControl_PanicIsLoggedAs500(t *testing.T) {
	gate := new(GateMock)
	gate.On("Check", mock.Anything, student).Return(access.Decision{Admitted: true}, nil)
	q := &queue{}

	assert.Panics(t, func() {
		serve(t, gate, q, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("inference client exploded")
		}))
	})
	require.Len(t, q.entries, 1)
	assert.Equal(t, http.StatusInternalServerError, q.entries[0].StatusCode)
}
