package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-advisor/internal/database"
	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
	"github.com/aristath/portfolio-advisor/internal/scheduler"
	testingpkg "github.com/aristath/portfolio-advisor/internal/testing"
)

type fakeRuns struct {
	mu      sync.Mutex
	running bool
	latest  *portfolio.RunReport
	started int
}

func (f *fakeRuns) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return scheduler.ErrRunInProgress
	}
	f.running = true
	f.started++
	return nil
}

func (f *fakeRuns) Latest() *portfolio.RunReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest
}

func (f *fakeRuns) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func newTestServer(t *testing.T, runs RunController, dbs ...*database.DB) *Server {
	store := testingpkg.NewMockStore()
	return New(Config{
		Log:       zerolog.Nop(),
		Port:      0,
		DevMode:   true,
		Databases: dbs,
		Positions: store,
		Ledger:    store,
		Runs:      runs,
	})
}

func do(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()

	s := newTestServer(t, &fakeRuns{}, db)
	w, body := do(t, s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["databases"].(map[string]interface{})["ledger"])
	assert.Equal(t, false, body["run_in_progress"])
}

func TestHealth_Degraded(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()
	require.NoError(t, db.Close())

	s := newTestServer(t, nil, db)
	w, body := do(t, s, http.MethodGet, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestStartRun(t *testing.T) {
	runs := &fakeRuns{}
	s := newTestServer(t, runs)

	w, body := do(t, s, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "started", body["status"])

	w, _ = do(t, s, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, runs.started)
}

func TestLatestRun(t *testing.T) {
	runs := &fakeRuns{}
	s := newTestServer(t, runs)

	w, _ := do(t, s, http.MethodGet, "/api/runs/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)

	runs.latest = &portfolio.RunReport{RunID: "abc", Date: "2024-03-01"}
	w, body := do(t, s, http.MethodGet, "/api/runs/latest")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", body["run_id"])
}

func TestRunsUnavailable(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := do(t, s, http.MethodGet, "/api/runs/latest")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = do(t, s, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPortfolioRoutesMounted(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := do(t, s, http.MethodGet, "/api/portfolio/positions?status=open")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, s, http.MethodGet, "/api/portfolio/realized-gains")
	assert.Equal(t, http.StatusOK, w.Code)
}
