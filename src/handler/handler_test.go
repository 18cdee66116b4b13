package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/src/auth"
	"autotrader/src/controller"
	"autotrader/src/executors"
	"autotrader/src/model"
	"autotrader/src/ratelimit"
	"autotrader/src/signals"
)

type mockSupervisor struct {
	running map[string]bool
	stopErr error
}

func newMockSupervisor(names ...string) *mockSupervisor {
	m := &mockSupervisor{running: map[string]bool{}}
	for _, n := range names {
		m.running[n] = false
	}
	return m
}

func (m *mockSupervisor) Start(name string) error {
	if _, ok := m.running[name]; !ok {
		return controller.ErrUnknownComponent
	}
	m.running[name] = true
	return nil
}

func (m *mockSupervisor) Stop(name string) error {
	if _, ok := m.running[name]; !ok {
		return controller.ErrUnknownComponent
	}
	if m.stopErr != nil {
		return m.stopErr
	}
	m.running[name] = false
	return nil
}

func (m *mockSupervisor) Status(name string) (controller.ComponentStatus, error) {
	running, ok := m.running[name]
	if !ok {
		return controller.ComponentStatus{}, controller.ErrUnknownComponent
	}
	return controller.ComponentStatus{Name: name, Running: running}, nil
}

func (m *mockSupervisor) Statuses() []controller.ComponentStatus {
	var out []controller.ComponentStatus
	for n, r := range m.running {
		out = append(out, controller.ComponentStatus{Name: n, Running: r})
	}
	return out
}

type mockSignals struct {
	status string
	limit  int
	recent bool
	err    error
}

func (m *mockSignals) ListByStatus(ctx context.Context, status string, limit int) ([]model.Signal, error) {
	m.status, m.limit = status, limit
	return []model.Signal{{ID: 1, Status: status}}, m.err
}

func (m *mockSignals) ListRecent(ctx context.Context, limit int) ([]model.Signal, error) {
	m.recent, m.limit = true, limit
	return []model.Signal{{ID: 2}}, m.err
}

func (m *mockSignals) Stats(ctx context.Context) (*signals.Stats, error) {
	return &signals.Stats{Total: 3, ByStatus: map[string]int64{"PENDING": 3}}, m.err
}

type mockCloser struct {
	err error
	id  uint
}

func (m *mockCloser) ClosePosition(ctx context.Context, id uint) (*model.Position, error) {
	m.id = id
	if m.err != nil {
		return nil, m.err
	}
	return &model.Position{ID: id, Status: model.PositionStatusManualSell}, nil
}

type mockGovernor struct{ resets int }

func (m *mockGovernor) Status() ratelimit.Snapshot {
	if m.resets > 0 {
		return ratelimit.Snapshot{Status: ratelimit.StatusNormal}
	}
	return ratelimit.Snapshot{Status: ratelimit.StatusLimited}
}

func (m *mockGovernor) Reset() { m.resets++ }

type mockTokens struct{}

func (mockTokens) Status() auth.TokenStatus { return auth.TokenStatus{HasToken: true, Valid: true} }

func serve(method, pattern, target string, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(auth.WithOperator(req.Context(), "admin"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestComponentHandlers(t *testing.T) {
	sup := newMockSupervisor("buy-processing")

	rr := serve(http.MethodPost, "/components/{name}/start", "/components/buy-processing/start", StartComponentHandler(sup))
	require.Equal(t, http.StatusOK, rr.Code)
	var st controller.ComponentStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.True(t, st.Running)

	rr = serve(http.MethodPost, "/components/{name}/stop", "/components/buy-processing/stop", StopComponentHandler(sup))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, sup.running["buy-processing"])

	rr = serve(http.MethodPost, "/components/{name}/start", "/components/nope/start", StartComponentHandler(sup))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	sup.stopErr = controller.ErrStopTimeout
	rr = serve(http.MethodPost, "/components/{name}/stop", "/components/buy-processing/stop", StopComponentHandler(sup))
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}

func TestListSignalsHandler(t *testing.T) {
	store := &mockSignals{}

	rr := serve(http.MethodGet, "/signals", "/signals?status=pending&limit=10", ListSignalsHandler(store))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.SignalStatusPending, store.status)
	assert.Equal(t, 10, store.limit)

	rr = serve(http.MethodGet, "/signals", "/signals", ListSignalsHandler(store))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, store.recent)
	assert.Equal(t, 50, store.limit)

	rr = serve(http.MethodGet, "/signals", "/signals?status=bogus", ListSignalsHandler(store))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(http.MethodGet, "/signals", "/signals?limit=-1", ListSignalsHandler(store))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	store.err = assert.AnError
	rr = serve(http.MethodGet, "/signals", "/signals", ListSignalsHandler(store))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestManualSellHandler(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		code   int
	}{
		{"sold", "/positions/7/sell", nil, http.StatusOK},
		{"bad id", "/positions/x/sell", nil, http.StatusBadRequest},
		{"missing", "/positions/7/sell", executors.ErrPositionNotFound, http.StatusNotFound},
		{"closed", "/positions/7/sell", executors.ErrPositionNotHolding, http.StatusConflict},
		{"broker", "/positions/7/sell", errors.New("order rejected"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			closer := &mockCloser{err: tc.err}
			rr := serve(http.MethodPost, "/positions/{id}/sell", tc.target, ManualSellHandler(closer))
			assert.Equal(t, tc.code, rr.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, uint(7), closer.id)
			}
		})
	}
}

func TestRateLimitHandlers(t *testing.T) {
	gov := &mockGovernor{}

	rr := serve(http.MethodGet, "/rate-limit", "/rate-limit", RateLimitStatusHandler(gov))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), string(ratelimit.StatusLimited))

	rr = serve(http.MethodPost, "/rate-limit/reset", "/rate-limit/reset", RateLimitResetHandler(gov))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, gov.resets)
	assert.Contains(t, rr.Body.String(), string(ratelimit.StatusNormal))
}

func TestStatusHandler(t *testing.T) {
	sup := newMockSupervisor("cleanup")
	rr := serve(http.MethodGet, "/status", "/status", StatusHandler(sup, &mockGovernor{}, mockTokens{}, &mockSignals{}))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, controller.ServiceName, resp.Service)
	require.Len(t, resp.Components, 1)
	assert.True(t, resp.Token.Valid)
	require.NotNil(t, resp.Signals)
	assert.Equal(t, int64(3), resp.Signals.Total)
	assert.WithinDuration(t, time.Now(), resp.Time, time.Minute)
}

type mockJanitor struct{ err error }

func (m mockJanitor) ManualCleanup(ctx context.Context) (*executors.CleanupReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &executors.CleanupReport{Canceled: 4, Manual: true}, nil
}

func TestManualCleanupHandler(t *testing.T) {
	rr := serve(http.MethodPost, "/cleanup", "/cleanup", ManualCleanupHandler(mockJanitor{}))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"cancelled":4`)

	rr = serve(http.MethodPost, "/cleanup", "/cleanup", ManualCleanupHandler(mockJanitor{err: assert.AnError}))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
