package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dagger/internal/core/app"
	"dagger/internal/core/config"
	"dagger/internal/core/errors"
	"dagger/internal/core/ports"
	"dagger/internal/data/store"
	"dagger/internal/data/tasks"
	"dagger/internal/output"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const team = "00000000-0000-0000-0000-0000000000bb"

func task(i int) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
}

type testServer struct {
	server *Server
	app    *app.App
	dir    *tasks.Directory
}

func newTestServer(t *testing.T, opts Options) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "dagger.db"), 0)
	require.NoError(t, err)
	dir := tasks.NewDirectory(s.DB(), s.Dialect())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.NewWithDependencies(config.DefaultConfig(), app.Dependencies{Store: s, Tasks: dir, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	opts.Logger = logger
	return testServer{
		server: NewServer(ctx, a.GraphService(), a.HealthService(), opts),
		app:    a,
		dir:    dir,
	}
}

func (ts testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func create(t *testing.T, ts testServer, from, to int) mutationResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/dag", map[string]any{
		"action": "create", "team_id": team, "from_task_id": task(from), "to_task_id": task(to),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[mutationResponse](t, rec)
}

func TestCreateAndGet(t *testing.T) {
	ts := newTestServer(t, Options{})
	created := create(t, ts, 1, 2)
	require.Len(t, created.Components, 1)
	assert.Len(t, created.Components[0].Edges, 1)

	rec := ts.do(t, http.MethodGet, "/v1/dag/"+created.ComponentID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[output.ComponentJSON](t, rec)
	assert.Equal(t, created.ComponentID, got.ComponentID)
	assert.JSONEq(t, fmt.Sprintf(`{%q:[%q],%q:[]}`, task(1), task(2), task(2)), string(got.Adjacency))

	rec = ts.do(t, http.MethodGet, "/v1/dag/"+created.ComponentID.String()+"?format=dot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "graphviz")
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("%q -> %q", task(1), task(2)))
}

func TestGet_IncludeTasks(t *testing.T) {
	ts := newTestServer(t, Options{})
	created := create(t, ts, 1, 2)

	teamID := created.Components[0].TeamID
	require.NoError(t, ts.dir.Upsert(context.Background(), ports.TaskSummary{ID: created.Components[0].Edges[0].From, TeamID: teamID, Title: "design"}))

	rec := ts.do(t, http.MethodGet, "/v1/dag/"+created.ComponentID.String()+"?include_tasks=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[output.DetailsJSON](t, rec)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "design", got.Tasks[0].Title)
	require.Len(t, got.MissingTaskIDs, 1)
	assert.Equal(t, task(2), got.MissingTaskIDs[0].String())
}

func TestCreate_CycleIsRejected(t *testing.T) {
	ts := newTestServer(t, Options{})
	create(t, ts, 1, 2)

	rec := ts.do(t, http.MethodPost, "/v1/dag", map[string]any{
		"action": "create", "team_id": team, "from_task_id": task(2), "to_task_id": task(1),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, errors.CodeCycleRejected, body.Code)
	assert.False(t, body.Retryable)
	assert.Contains(t, body.Context, "cycle")
}

func TestAddEdges_ReportsPartialProgress(t *testing.T) {
	ts := newTestServer(t, Options{})
	create(t, ts, 1, 2)

	rec := ts.do(t, http.MethodPost, "/v1/dag", map[string]any{
		"action": "add_edges", "team_id": team, "from_task_id": task(2),
		"dependency_task_ids": []string{task(3), task(1)},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Equal(t, errors.CodeCycleRejected, body.Code)
	require.Len(t, body.Applied, 1)
	assert.Equal(t, task(3), body.Applied[0].To.String())
	require.NotNil(t, body.FailedEdge)
	assert.Equal(t, task(1), body.FailedEdge.To.String())
}

func TestDeleteEdges_SplitReturnsNewRecords(t *testing.T) {
	ts := newTestServer(t, Options{})
	created := create(t, ts, 1, 2)
	rec := ts.do(t, http.MethodPost, "/v1/dag", map[string]any{
		"action": "add_edges", "team_id": team, "from_task_id": task(2),
		"dependency_task_ids": []string{task(3)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	create(t, ts, 3, 4)

	rec = ts.do(t, http.MethodPost, "/v1/dag", map[string]any{
		"action": "delete_edges", "component_id": created.ComponentID.String(),
		"from_task_id": task(2), "dependency_task_ids": []string{task(3)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[mutationResponse](t, rec)
	require.NotNil(t, got.Survived)
	assert.False(t, *got.Survived)
	assert.Len(t, got.Created, 2)
	assert.Len(t, got.Components, 2)

	rec = ts.do(t, http.MethodGet, "/v1/dag/"+created.ComponentID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeComponentNotFound, decode[errorResponse](t, rec).Code)
}

func TestMutation_Validation(t *testing.T) {
	ts := newTestServer(t, Options{})
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{name: "unknown action", body: map[string]any{"action": "merge", "from_task_id": task(1)}, field: "action"},
		{name: "bad uuid", body: map[string]any{"action": "create", "team_id": team, "from_task_id": "nope", "to_task_id": task(2)}, field: "from_task_id"},
		{name: "missing to", body: map[string]any{"action": "create", "team_id": team, "from_task_id": task(1)}, field: "to_task_id"},
		{name: "missing component", body: map[string]any{"action": "delete_edges", "from_task_id": task(1), "dependency_task_ids": []string{task(2)}}, field: "component_id"},
		{name: "bad dependency", body: map[string]any{"action": "add_edges", "team_id": team, "from_task_id": task(1), "dependency_task_ids": []string{"x"}}, field: "dependency_task_ids[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/v1/dag", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[errorResponse](t, rec)
			assert.Equal(t, errors.CodeValidationError, body.Code)
			assert.Contains(t, body.Error, tt.field)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/dag", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList(t *testing.T) {
	ts := newTestServer(t, Options{})
	create(t, ts, 1, 2)
	create(t, ts, 3, 4)

	rec := ts.do(t, http.MethodGet, "/v1/dag?team_id="+team, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listResponse](t, rec).Components, 2)

	rec = ts.do(t, http.MethodGet, "/v1/dag", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimit: 0.001, RateBurst: 1})
	create(t, ts, 1, 2)

	rec := ts.do(t, http.MethodPost, "/v1/dag", map[string]any{
		"action": "create", "team_id": team, "from_task_id": task(3), "to_task_id": task(4),
	})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.True(t, decode[errorResponse](t, rec).Retryable)

	// Reads are not limited.
	rec = ts.do(t, http.MethodGet, "/v1/dag?team_id="+team, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, Options{})
	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up", decode[app.HealthStatus](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dagger_http_requests_total")
}

func TestServer_StartReportsBindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	ts := newTestServer(t, Options{Address: occupied.Addr().String()})
	err = ts.server.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), occupied.Addr().String())
	assert.Empty(t, ts.server.Addr())
}

func TestServer_StartServesUntilStopped(t *testing.T) {
	ts := newTestServer(t, Options{Address: "127.0.0.1:0"})
	require.NoError(t, ts.server.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer func() { require.NoError(t, ts.server.Stop(ctx)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+ts.server.Addr()+"/health", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
