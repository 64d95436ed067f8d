package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-swarm/internal/db/sqlite"
	"github.com/jonathan/content-swarm/internal/swarm"
	"github.com/jonathan/content-swarm/internal/types"
)

const testTaskBody = `{"org": "acme", "config": {"execution": {"maxLocalConcurrent": 1,
	"maxCloudConcurrent": 3, "maxEditCycles": 2, "topNForFinalRanking": 5, "topNForDeliverable": 1}}}`

func setupTestServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.NewMemoryStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := swarm.NewService(store, nil, nil)
	agents := []types.Agent{
		{Org: "acme", Slug: "writer-local", Role: types.RoleWriter, Provider: "ollama"},
		{Org: "acme", Slug: "writer-cloud", Role: types.RoleWriter, Provider: "openai"},
		{Org: "acme", Slug: "editor", Role: types.RoleEditor, Provider: "anthropic"},
		{Org: "acme", Slug: "judge", Role: types.RoleEvaluator, Provider: "openai"},
	}
	for i := range agents {
		require.NoError(t, svc.RegisterAgent(ctx, &agents[i]))
	}
	return New(Config{}, svc, nil).Handler()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createTask(t *testing.T, h http.Handler) types.Task {
	t.Helper()
	w := doRequest(t, h, http.MethodPost, "/tasks", testTaskBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[types.Task](t, w)
}

func TestHealth(t *testing.T) {
	h := setupTestServer(t)
	w := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestCORSPreflight(t *testing.T) {
	h := setupTestServer(t)
	w := doRequest(t, h, http.MethodOptions, "/tasks", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCreateAndGetTask(t *testing.T) {
	h := setupTestServer(t)
	task := createTask(t, h)
	assert.Equal(t, types.TaskPending, task.Status)
	assert.Equal(t, "acme", task.Org)

	w := doRequest(t, h, http.MethodGet, "/tasks/"+task.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[types.Task](t, w)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, 2, got.Config.Execution.MaxEditCycles)

	w = doRequest(t, h, http.MethodGet, "/tasks?org=acme", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[map[string][]types.Task](t, w)
	assert.Len(t, list["tasks"], 1)

	w = doRequest(t, h, http.MethodGet, "/tasks?org=globex", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tasks": []}`, w.Body.String())
}

func TestCreateTask_Errors(t *testing.T) {
	h := setupTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{"org":`, http.StatusBadRequest},
		{"missing org", `{"config": {}}`, http.StatusBadRequest},
		{"invalid config", `{"org": "acme", "config": {"execution": {"maxLocalConcurrent": -1,
			"maxCloudConcurrent": 1, "maxEditCycles": 0, "topNForFinalRanking": 1, "topNForDeliverable": 1}}}`,
			http.StatusBadRequest},
		{"org without agents", `{"org": "globex", "config": {"execution": {"maxLocalConcurrent": 1,
			"maxCloudConcurrent": 1, "maxEditCycles": 0, "topNForFinalRanking": 1, "topNForDeliverable": 1}}}`,
			http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, http.MethodPost, "/tasks", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, w)["error"])
		})
	}
}

func TestGetTask_NotFound(t *testing.T) {
	h := setupTestServer(t)

	w := doRequest(t, h, http.MethodGet, "/tasks/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, h, http.MethodGet, "/tasks/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodGet, "/outputs/"+uuid.NewString()+"/versions", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDispatcherQueries(t *testing.T) {
	h := setupTestServer(t)
	task := createTask(t, h)
	base := "/tasks/" + task.ID.String()

	w := doRequest(t, h, http.MethodGet, base+"/progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	progress := decode[types.TaskProgress](t, w)
	assert.Equal(t, 6, progress.Total)
	assert.Equal(t, 6, progress.Pending)
	assert.Equal(t, 0, progress.Percentage)

	w = doRequest(t, h, http.MethodGet, base+"/steps/next", "")
	require.Equal(t, http.StatusOK, w.Code)
	next := decode[struct {
		Step       *types.ExecutionStep `json:"step"`
		HasPending bool                 `json:"has_pending"`
	}](t, w)
	require.NotNil(t, next.Step)
	assert.Equal(t, 1, next.Step.Sequence)
	assert.Equal(t, types.StepWrite, next.Step.StepType)
	assert.True(t, next.HasPending)

	w = doRequest(t, h, http.MethodGet, base+"/running", "")
	require.Equal(t, http.StatusOK, w.Code)
	running := decode[runningResponse](t, w)
	assert.Equal(t, 0, running.Local)
	assert.Equal(t, 0, running.Cloud)
	assert.Equal(t, map[string]int{"local": 1, "cloud": 3}, running.Budget)

	w = doRequest(t, h, http.MethodGet, base+"/outputs/next?class=local", "")
	require.Equal(t, http.StatusOK, w.Code)
	local := decode[struct {
		OutputIDs []uuid.UUID `json:"output_ids"`
	}](t, w)
	require.Len(t, local.OutputIDs, 1)

	w = doRequest(t, h, http.MethodGet, base+"/outputs/next?class=cloud&limit=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"output_ids":[]`)

	w = doRequest(t, h, http.MethodGet, base+"/outputs/next?class=gpu", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodGet, "/outputs/"+local.OutputIDs[0].String()+"/versions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"versions": []}`, w.Body.String())
}

func TestRankingEndpoints(t *testing.T) {
	h := setupTestServer(t)
	task := createTask(t, h)
	base := "/tasks/" + task.ID.String()

	w := doRequest(t, h, http.MethodGet, base+"/rankings", "")
	require.Equal(t, http.StatusOK, w.Code)
	standings := decode[map[string][]types.Output](t, w)
	assert.Len(t, standings["outputs"], 2)

	w = doRequest(t, h, http.MethodPost, base+"/rankings/initial", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rankings": []}`, w.Body.String())

	w = doRequest(t, h, http.MethodPost, base+"/rankings/finalists?top_n=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodPost, base+"/rankings/finalists?top_n=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, h, http.MethodGet, base+"/deliverables", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, h, http.MethodPost, "/tasks/"+uuid.NewString()+"/rankings/final", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelTask(t *testing.T) {
	h := setupTestServer(t)
	task := createTask(t, h)
	path := "/tasks/" + task.ID.String() + "/cancel"

	w := doRequest(t, h, http.MethodPost, path, `{"reason": "budget exhausted"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[swarm.CancelSummary](t, w)
	assert.Equal(t, swarm.CancelSummary{StepsSkipped: 6, OutputsFailed: 2, EvaluationsFailed: 2}, summary)

	w = doRequest(t, h, http.MethodGet, "/tasks/"+task.ID.String(), "")
	got := decode[types.Task](t, w)
	assert.Equal(t, types.TaskFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "budget exhausted", *got.ErrorMessage)

	w = doRequest(t, h, http.MethodPost, path, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ErrValidation{Field: "org", Message: "required"}, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", types.ErrTaskNotFound), http.StatusNotFound},
		{types.ErrOutputNotFound, http.StatusNotFound},
		{types.ErrStepNotFound, http.StatusNotFound},
		{types.ErrEvaluationNotFound, http.StatusNotFound},
		{types.ErrInvalidConfig, http.StatusBadRequest},
		{types.ErrInvalidArgument, http.StatusBadRequest},
		{types.ErrInvalidScore, http.StatusBadRequest},
		{types.ErrInvalidRank, http.StatusBadRequest},
		{fmt.Errorf("claim: %w", types.ErrInvalidTransition), http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
