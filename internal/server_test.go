package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdigest/internal/config"
	"github.com/kazz187/taskdigest/internal/digest"
	"github.com/kazz187/taskdigest/internal/pushnotification"
	pushrepo "github.com/kazz187/taskdigest/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/taskdigest/internal/run"
	runrepo "github.com/kazz187/taskdigest/internal/run/repositoryimpl"
	"github.com/kazz187/taskdigest/internal/scheduler"
	"github.com/kazz187/taskdigest/pkg/cerr"
	"github.com/kazz187/taskdigest/pkg/storage"
)

type fakePipeline struct {
	req digest.Request
	err error
}

func (f *fakePipeline) Run(_ context.Context, req digest.Request) (*digest.Result, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &digest.Result{Run: &run.Run{ID: "01RUN", TaskCount: 7, ChunkCount: 2, Delivered: 2}}, nil
}

type fakeSchedule struct {
	next *time.Time
}

func (f fakeSchedule) Next() *time.Time { return f.next }

func (f fakeSchedule) State() scheduler.State {
	if f.next == nil {
		return scheduler.StateIdle
	}
	return scheduler.StateWaiting
}

type fixture struct {
	srv      *httptest.Server
	pipeline *fakePipeline
	runs     run.Repository
}

func newFixture(t *testing.T, apiKey string) *fixture {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	env := &config.Env{BaseEnv: config.BaseEnv{APIKey: apiKey}}
	next := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	f := &fixture{pipeline: &fakePipeline{}, runs: runrepo.NewYAMLRepository(st)}
	s := NewServer(env, f.pipeline, fakeSchedule{next: &next}, f.runs,
		pushnotification.NewHandler(&env.VAPIDEnv, pushrepo.NewYAMLRepository(st)))
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, apiKey string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_APIKey(t *testing.T) {
	f := newFixture(t, "secret")

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", nil))
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/schedule", "", nil))
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/schedule", "wrong", nil))
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/schedule", "secret", nil))

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/schedule", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_PostDigest(t *testing.T) {
	f := newFixture(t, "")

	var res digestResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/digest?limit=5", "", &res))
	assert.Equal(t, digestResponse{RunID: "01RUN", Tasks: 7, Chunks: 2, Delivered: 2}, res)
	assert.Equal(t, digest.Request{Trigger: run.TriggerOnDemand, Limit: 5}, f.pipeline.req)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/digest?limit=zero", "", nil))

	f.pipeline.err = cerr.NewError(cerr.Aborted, "another digest is being delivered", nil)
	var apiErr struct {
		Code string `json:"code"`
	}
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/digest", "", &apiErr))
	assert.Equal(t, "aborted", apiErr.Code)
}

func TestServer_Schedule(t *testing.T) {
	f := newFixture(t, "")
	var res struct {
		State       string    `json:"state"`
		NextTrigger time.Time `json:"next_trigger"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/schedule", "", &res))
	assert.Equal(t, "waiting", res.State)
	assert.True(t, res.NextTrigger.Equal(time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)))
}

func TestServer_Runs(t *testing.T) {
	f := newFixture(t, "")
	id := ulid.Make().String()
	require.NoError(t, f.runs.Create(context.Background(), &run.Run{ID: id, Trigger: run.TriggerScheduled, Status: run.StatusSucceeded}))

	var list runsResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/runs?limit=10", "", &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, id, list.Runs[0].ID)

	var one run.Run
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/runs/"+id, "", &one))
	assert.Equal(t, run.StatusSucceeded, one.Status)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/runs/"+ulid.Make().String(), "", nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/runs/not-a-ulid", "", nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/nothing", "", nil))
}
