package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catface996/aiops-executor/internal/adapter"
	"github.com/catface996/aiops-executor/internal/domain"
	"github.com/catface996/aiops-executor/internal/server/app"
)

func testDemoHierarchy() domain.Hierarchy {
	return domain.Hierarchy{
		ID:   "H1",
		Name: "demo",
		Teams: []domain.Team{
			{ID: "T", Name: "Team", Role: "team_supervisor", Workers: []domain.Worker{
				{ID: "W", Name: "Worker", Role: "worker", AgentRef: "worker-W"},
			}},
		},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *app.InMemoryRunStore) {
	t.Helper()
	events := app.NewInMemoryEventRepository()
	registry := app.NewRegistry(events)
	sink := app.NewSink(events, registry)
	runs := app.NewInMemoryRunStore()
	t.Cleanup(runs.Close)
	hierarchies := app.NewInMemoryHierarchyStore(testDemoHierarchy())

	scripts := map[string]adapter.Script{
		adapter.GlobalSupervisorRefPrefix + "H1": {Chunks: []adapter.Chunk{
			{Kind: adapter.ChunkFinal, TextDelta: "done"},
		}},
	}
	resolvers := adapter.SingleAgentRegistry(adapter.NewScriptedAgent(scripts))
	manager := app.NewManager(app.ManagerConfig{WorkerPoolSize: 2}, runs, hierarchies, registry, sink, resolvers, nil)

	return NewRouter(manager, runs, events, registry, nil), runs
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestHandleStartRun(t *testing.T) {
	router, runs := newTestRouter(t)

	body, _ := json.Marshal(startRunRequest{HierarchyID: "H1", Task: "do it"})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	assert.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	runID, _ := data["id"].(string)
	require.NotEmpty(t, runID)
	assert.Equal(t, "/api/runs/"+runID+"/stream", data["stream_url"])

	require.Eventually(t, func() bool {
		got, err := runs.Get(context.Background(), runID)
		return err == nil && got.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleStartRun_MissingFields(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(startRunRequest{HierarchyID: "", Task: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	assert.False(t, env.Success)
}

func TestHandleGetRun_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListRuns_Paged(t *testing.T) {
	router, runs := newTestRouter(t)
	for i := 0; i < 3; i++ {
		_, err := runs.Create(context.Background(), "H1", "task")
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs?page=1&size=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), data["totalElements"])
	assert.Equal(t, float64(2), data["totalPages"])
	content, ok := data["content"].([]any)
	require.True(t, ok)
	assert.Len(t, content, 2)
}

func TestHandleListRuns_ZeroSizeIsRejected(t *testing.T) {
	router, runs := newTestRouter(t)
	_, err := runs.Create(context.Background(), "H1", "task")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/runs?size=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListRuns_OutOfRangeSizeIsRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs?size=101", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCancelRun_Conflict(t *testing.T) {
	router, runs := newTestRouter(t)
	run, err := runs.Create(context.Background(), "H1", "task")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, runs.UpdateStatus(context.Background(), run.ID, domain.StatusCompleted, domain.StatusUpdate{CompletedAt: &now}))

	req := httptest.NewRequest(http.MethodPost, "/api/runs/"+run.ID+"/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStreamRun_UnknownRun(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/does-not-exist/stream", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetRunEvents(t *testing.T) {
	router, runs := newTestRouter(t)
	run, err := runs.Create(context.Background(), "H1", "task")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+run.ID+"/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body.Bytes())
	assert.True(t, env.Success)
}
