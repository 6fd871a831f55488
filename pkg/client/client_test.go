package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

type testLogger struct {
	count int32
}

func (l *testLogger) Debugf(string, ...interface{}) { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Infof(string, ...interface{})  { atomic.AddInt32(&l.count, 1) }
func (l *testLogger) Errorf(string, ...interface{}) { atomic.AddInt32(&l.count, 1) }

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(srv.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_Validation(t *testing.T) {
	for _, u := range []string{"", "ftp://host", "://bad"} {
		_, err := NewClient(u)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), u)
	}
	c, err := NewClient("https://fragmenter.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://fragmenter.example.com", c.baseURL)
}

func TestClient_Fragment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/fragment", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req types.FragmentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Molecules, 1)
		writeJSON(w, http.StatusOK, types.FragmentResponse{
			Provenance: map[string]interface{}{"job_id": "job-1"},
			Molecules:  []types.MoleculeResult{{Title: req.Molecules[0].Title, ParentSMILES: "CCCCO"}},
		})
	})

	resp, err := c.Fragment(context.Background(), &types.FragmentRequest{
		Molecules: []types.MoleculeInput{{Title: "butanol", SMILES: "CCCCO", WBO: []float64{1, 1, 1, 1}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.Provenance["job_id"])
	require.Len(t, resp.Molecules, 1)
	assert.Equal(t, "butanol", resp.Molecules[0].Title)
}

func TestClient_RunsAndLineage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/runs":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			writeJSON(w, http.StatusOK, []types.RunSummary{{JobID: "a"}, {JobID: "b"}})
		case "/api/v1/runs/job 1":
			writeJSON(w, http.StatusOK, types.RunResponse{JobID: "job 1"})
		case "/api/v1/runs/job-1/report":
			writeJSON(w, http.StatusOK, types.ReportURLResponse{JobID: "job-1", URL: "https://minio/report"})
		case "/api/v1/lineage":
			writeJSON(w, http.StatusOK, types.LineageResponse{ParentSMILES: r.URL.Query().Get("smiles"), Fragments: []string{"CCO"}})
		default:
			http.NotFound(w, r)
		}
	}, WithAPIKey("secret"))
	ctx := context.Background()

	runs, err := c.ListRuns(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	run, err := c.GetRun(ctx, "job 1")
	require.NoError(t, err)
	assert.Equal(t, "job 1", run.JobID)

	link, err := c.ReportURL(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "https://minio/report", link)

	lin, err := c.Lineage(ctx, "C#CC(=O)O")
	require.NoError(t, err)
	assert.Equal(t, "C#CC(=O)O", lin.ParentSMILES)

	_, err = c.GetRun(ctx, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestClient_APIErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusNotFound, types.ErrorResponse{Error: types.ErrorBody{
			Code: "FRAG_005", Message: "run not found", Detail: "job-9", RequestID: "req-1",
		}})
	})

	_, err := c.GetRun(context.Background(), "job-9")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "FRAG_005", apiErr.Code)
	assert.Equal(t, "job-9", apiErr.Detail)
	assert.Equal(t, "req-1", apiErr.RequestID)
	assert.Contains(t, apiErr.Error(), "run not found: job-9")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	logger := &testLogger{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Error: types.ErrorBody{Code: "COMMON_005"}})
			return
		}
		writeJSON(w, http.StatusOK, types.CutResponse{Title: "ok"})
	}, WithLogger(logger))

	resp, err := c.Cut(context.Background(), &types.CutRequest{SMILES: "CCO"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Title)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Positive(t, atomic.LoadInt32(&logger.count))
}

func TestClient_GivesUpAfterRetryMax(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}, WithRetryMax(2))

	err := c.Ready(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, "boom", apiErr.Message)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClient_RateLimitedHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusTooManyRequests, types.ErrorResponse{Error: types.ErrorBody{Code: "COMMON_010"}})
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.ListRuns(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_Backoff(t *testing.T) {
	c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: 300 * time.Millisecond}
	assert.GreaterOrEqual(t, c.backoff(1), 100*time.Millisecond)
	assert.Less(t, c.backoff(1), 125*time.Millisecond)
	assert.GreaterOrEqual(t, c.backoff(5), 300*time.Millisecond)
	assert.Less(t, c.backoff(5), 375*time.Millisecond)
}
