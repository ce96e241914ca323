package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-cog-pipeline/internal/api/handler"
	"go-cog-pipeline/internal/config"
	"go-cog-pipeline/internal/model"
	"go-cog-pipeline/internal/pipeline"
	"go-cog-pipeline/internal/raster/rastertest"
	"go-cog-pipeline/internal/store"
	"go-cog-pipeline/internal/tiler"
	"go-cog-pipeline/pkg/router"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	m.Run()
}

type testAPI struct {
	handler http.Handler
	runs    *handler.RunHandler
	runner  *pipeline.Runner
	tiler   *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	tile := rastertest.Tile(2, 2, []float32{3, 9, 4, 1}, []float32{1, 0, 1, 1})
	tilerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("url")
		switch {
		case r.URL.Path == "/cog/metadata" && id == "missing.tif":
			http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
		case r.URL.Path == "/cog/metadata":
			w.Write([]byte(`{"bounds":[-61.5,16.1,-61.2,16.5],"dtype":"float32","nodata_type":"Mask","statistics":{"1":{"pc":[1,9],"min":0,"max":12,"std":2.5}}}`))
		case strings.Contains(id, "broken"):
			http.Error(w, "internal error", http.StatusInternalServerError)
		case strings.Contains(id, "slow"):
			<-r.Context().Done()
		default:
			w.Write(tile)
		}
	}))
	t.Cleanup(tilerServer.Close)

	require.NoError(t, store.InitDB(filepath.Join(t.TempDir(), "pipeline.db")))
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		OutputDir:       t.TempDir(),
		TitilerEndpoint: tilerServer.URL,
		RequestTimeout:  5 * time.Second,
		JobTimeout:      time.Minute,
		MaxConcurrency:  2,
	}
	runner := pipeline.NewRunner(cfg, pipeline.NewRegistry())
	client, err := tiler.NewClient(cfg.TitilerEndpoint)
	require.NoError(t, err)

	runs := handler.NewRunHandler(runner, client)
	t.Cleanup(func() {
		runner.Registry().CancelAll()
		runs.Wait()
	})

	r := router.New(router.WithCacheControl("public, max-age=3600"))
	RegisterRoutes(r, runs)
	return &testAPI{handler: r.Handler(), runs: runs, runner: runner, tiler: tilerServer}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func testRunSpec(ids ...string) model.RunSpec {
	items := make([]model.WorkItem, len(ids))
	for i, id := range ids {
		items[i] = model.WorkItem{ID: id, Label: "2019-01-0" + string(rune('1'+i))}
	}
	return model.RunSpec{
		Items:  items,
		BBox:   []float64{-61.5, 16.1, -61.2, 16.5},
		Export: &model.Export{File: "series.json"},
	}
}

func (a *testAPI) createRun(t *testing.T, spec model.RunSpec) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/runs", spec)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var created struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	decode(t, rec, &created)
	require.NotEmpty(t, created.RunID)
	assert.Equal(t, model.StatusPending, created.Status)
	return created.RunID
}

func TestRunLifecycle(t *testing.T) {
	a := newTestAPI(t)

	id := a.createRun(t, testRunSpec("s3://b/one.tif", "s3://b/broken.tif", "s3://b/three.tif"))
	a.runs.Wait()

	rec := a.do(t, http.MethodGet, "/api/v1/runs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	var got struct {
		Run         model.RunRecord `json:"run"`
		DownloadURL string          `json:"download_url"`
	}
	decode(t, rec, &got)
	assert.Equal(t, model.StatusCompleted, got.Run.Status)
	assert.Equal(t, 3, got.Run.Submitted)
	assert.Equal(t, 1, got.Run.Dropped)
	assert.Equal(t, "/api/v1/runs/"+id+"/files/series.json", got.DownloadURL)

	rec = a.do(t, http.MethodGet, "/api/v1/runs/"+id+"/series", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var series struct {
		Series  []model.StatSample     `json:"series"`
		Count   int                    `json:"count"`
		Summary pipeline.SeriesSummary `json:"summary"`
	}
	decode(t, rec, &series)
	assert.Equal(t, 2, series.Count)
	assert.Equal(t, "2019-01-01", series.Series[0].Label)
	assert.Equal(t, "2019-01-03", series.Series[1].Label)
	assert.Equal(t, float64(4), series.Series[0].Value)
	assert.Equal(t, float64(4), series.Summary.Max)

	rec = a.do(t, http.MethodGet, "/api/v1/runs/"+id+"/failures", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var failures struct {
		Count  int            `json:"count"`
		ByKind map[string]int `json:"by_kind"`
	}
	decode(t, rec, &failures)
	assert.Equal(t, 1, failures.Count)
	assert.Equal(t, map[string]int{model.FailureStatus: 1}, failures.ByKind)

	rec = a.do(t, http.MethodGet, "/api/v1/runs/"+id+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress pipeline.RunProgress
	decode(t, rec, &progress)
	assert.Equal(t, 3, progress.Completed)
	assert.Equal(t, 3, progress.Total)

	rec = a.do(t, http.MethodGet, got.DownloadURL, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"run_id": "`+id+`"`)

	rec = a.do(t, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.RunRecord
	decode(t, rec, &runs)
	assert.Len(t, runs, 1)

	rec = a.do(t, http.MethodPost, "/api/v1/runs/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodDelete, "/api/v1/runs/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, "/api/v1/runs/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodGet, got.DownloadURL, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRunRejectsBadInput(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	spec := testRunSpec("s3://b/one.tif")
	spec.BBox = []float64{1, 2, 3}
	rec = a.do(t, http.MethodPost, "/api/v1/runs", spec)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/runs", model.RunSpec{BBox: []float64{0, 0, 1, 1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/runs", model.RunSpec{
		Source: &model.ItemSource{Type: "csv", URL: "/etc/passwd"},
		BBox:   []float64{0, 0, 1, 1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	spec = testRunSpec("s3://b/one.tif")
	spec.JobTimeout = "1hr"
	rec = a.do(t, http.MethodPost, "/api/v1/runs", spec)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/runs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRun(t *testing.T) {
	a := newTestAPI(t)

	id := a.createRun(t, testRunSpec("s3://b/slow-1.tif", "s3://b/slow-2.tif", "s3://b/slow-3.tif"))
	require.Eventually(t, func() bool {
		_, ok := a.runner.Registry().Get(id)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	rec := a.do(t, http.MethodGet, "/api/v1/runs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = a.do(t, http.MethodDelete, "/api/v1/runs/"+id, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/runs/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	a.runs.Wait()

	run, err := store.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, run.Status)
}

func TestCancelRightAfterCreate(t *testing.T) {
	a := newTestAPI(t)

	for i := 0; i < 20; i++ {
		id := a.createRun(t, testRunSpec("s3://b/slow-1.tif", "s3://b/slow-2.tif"))

		rec := a.do(t, http.MethodDelete, "/api/v1/runs/"+id, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = a.do(t, http.MethodPost, "/api/v1/runs/"+id+"/cancel", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	a.runs.Wait()

	runs, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 20)
	for _, run := range runs {
		assert.Equal(t, model.StatusCancelled, run.Status, run.ID)
	}
}

func TestGetMetadata(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/metadata?url=s3://b/one.tif&pmin=5&pmax=95", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var md tiler.Metadata
	decode(t, rec, &md)
	assert.Equal(t, "float32", md.Dtype)
	assert.Equal(t, float64(12), md.Statistics["1"].Max)

	rec = a.do(t, http.MethodGet, "/api/v1/metadata", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/metadata?url=s3://b/one.tif&pmin=200", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/metadata?url=missing.tif", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSwaggerDoc(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/swagger/doc.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "COG Pipeline API")
	assert.Contains(t, rec.Body.String(), "/runs/{id}/series")

	rec = a.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
