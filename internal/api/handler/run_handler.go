package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-cog-pipeline/internal/model"
	"go-cog-pipeline/internal/pipeline"
	"go-cog-pipeline/internal/store"
	"go-cog-pipeline/internal/tiler"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const runsPrefix = "/api/v1/runs/"

// RunHandler serves the run and metadata endpoints
type RunHandler struct {
	runner *pipeline.Runner
	tiler  *tiler.Client

	// background runs, waited on at shutdown
	wg sync.WaitGroup
}

// NewRunHandler creates the handler. client answers the metadata endpoint.
func NewRunHandler(runner *pipeline.Runner, client *tiler.Client) *RunHandler {
	return &RunHandler{runner: runner, tiler: client}
}

// Wait blocks until every run started by the handler has returned
func (h *RunHandler) Wait() {
	h.wg.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// runID extracts the run ID from /api/v1/runs/{id}{suffix}
func runID(path, suffix string) string {
	if !strings.HasPrefix(path, runsPrefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	id := path[len(runsPrefix) : len(path)-len(suffix)]
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}

// noCacheUnlessFinished keeps clients from caching run state that can still change
func noCacheUnlessFinished(w http.ResponseWriter, status string) {
	if status == model.StatusPending || status == model.StatusRunning {
		w.Header().Set("Cache-Control", "no-cache")
	}
}

// lookupRun loads a run, answering 400/404/500 itself when it cannot
func lookupRun(w http.ResponseWriter, id string) (*model.RunRecord, bool) {
	if id == "" {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return nil, false
	}
	run, err := store.GetRun(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

// CreateRun creates a new fetch-aggregate run
// @Summary Create a new run
// @Description Create and start a fetch-aggregate run with the provided spec
// @Tags runs
// @Accept json
// @Produce json
// @Param run body model.RunSpec true "Run spec"
// @Success 202 {object} map[string]interface{} "Run accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [post]
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var spec model.RunSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	if err := spec.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if spec.Source != nil {
		if err := h.runner.CheckSource(*spec.Source); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	id := uuid.New().String()
	if err := store.SaveRun(id, spec); err != nil {
		log.Error().Err(err).Str("run_id", id).Msg("Failed to save run")
		http.Error(w, "Failed to save run", http.StatusInternalServerError)
		return
	}

	// Registered before responding so cancel and delete see it; the run outlives the request
	done := h.runner.Start(context.Background(), id, spec)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := <-done; err != nil {
			log.Warn().Err(err).Str("run_id", id).Msg("Run ended with error")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    "Run created successfully",
		"run_id":     id,
		"status":     model.StatusPending,
		"created_at": time.Now().UTC(),
	})
}

// ListRuns retrieves all runs
// @Summary List all runs
// @Description Get a list of all runs with their current status
// @Tags runs
// @Produce json
// @Success 200 {array} model.RunRecord "List of runs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := store.ListRuns()
	if err != nil {
		http.Error(w, "Failed to fetch runs", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, runs)
}

// GetRun retrieves a specific run
// @Summary Get run
// @Description Retrieve the spec, status and counts of a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run details"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := lookupRun(w, runID(r.URL.Path, ""))
	if !ok {
		return
	}

	resp := map[string]interface{}{"run": run}
	if tracker, ok := h.runner.Registry().Get(run.ID); ok {
		resp["progress"] = tracker.Snapshot()
	}
	if run.Spec.Export != nil && run.Spec.Export.File != "" && run.Status == model.StatusCompleted {
		resp["download_url"] = h.runner.Output().GetDownloadURL(run.ID, run.Spec.Export.File)
	}

	noCacheUnlessFinished(w, run.Status)
	writeJSON(w, http.StatusOK, resp)
}

// GetRunSeries retrieves the label-sorted series of a run
// @Summary Get run series
// @Description Retrieve the label-sorted series of a run with its summary
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run series"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/series [get]
func (h *RunHandler) GetRunSeries(w http.ResponseWriter, r *http.Request) {
	run, ok := lookupRun(w, runID(r.URL.Path, "/series"))
	if !ok {
		return
	}

	series, err := store.GetRunSeries(run.ID)
	if err != nil {
		http.Error(w, "Failed to retrieve series", http.StatusInternalServerError)
		return
	}

	noCacheUnlessFinished(w, run.Status)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  run.ID,
		"status":  run.Status,
		"series":  series,
		"count":   len(series),
		"dropped": run.Dropped,
		"summary": pipeline.Summarize(series),
	})
}

// GetRunFailures retrieves the dropped items of a run
// @Summary Get run failures
// @Description Retrieve the items of a run that produced no sample
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run failures"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/failures [get]
func (h *RunHandler) GetRunFailures(w http.ResponseWriter, r *http.Request) {
	run, ok := lookupRun(w, runID(r.URL.Path, "/failures"))
	if !ok {
		return
	}

	failures, err := store.GetRunFailures(run.ID)
	if err != nil {
		http.Error(w, "Failed to retrieve failures", http.StatusInternalServerError)
		return
	}

	noCacheUnlessFinished(w, run.Status)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":   run.ID,
		"failures": failures,
		"count":    len(failures),
		"by_kind":  pipeline.FailureCounts(failures),
	})
}

// GET /api/v1/runs/{id}/progress
func (h *RunHandler) GetRunProgress(w http.ResponseWriter, r *http.Request) {
	id := runID(r.URL.Path, "/progress")
	w.Header().Set("Cache-Control", "no-cache")
	if tracker, ok := h.runner.Registry().Get(id); ok {
		writeJSON(w, http.StatusOK, tracker.Snapshot())
		return
	}

	run, ok := lookupRun(w, id)
	if !ok {
		return
	}
	completed := 0
	if run.Status != model.StatusPending {
		completed = run.Submitted
	}
	writeJSON(w, http.StatusOK, pipeline.RunProgress{
		RunID:     run.ID,
		Status:    run.Status,
		Completed: completed,
		Total:     run.Submitted,
		StartTime: run.CreatedAt,
		Elapsed:   run.UpdatedAt.Sub(run.CreatedAt),
	})
}

// POST /api/v1/runs/{id}/cancel
func (h *RunHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := runID(r.URL.Path, "/cancel")
	if tracker, ok := h.runner.Registry().Get(id); ok {
		tracker.Cancel()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Run cancellation requested",
			"run_id":  id,
		})
		return
	}

	run, ok := lookupRun(w, id)
	if !ok {
		return
	}
	http.Error(w, fmt.Sprintf("Run is already %s and cannot be cancelled", run.Status), http.StatusConflict)
}

// DELETE /api/v1/runs/{id}
func (h *RunHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id := runID(r.URL.Path, "")
	if _, running := h.runner.Registry().Get(id); running {
		http.Error(w, "Run is in progress, cancel it first", http.StatusConflict)
		return
	}
	if _, ok := lookupRun(w, id); !ok {
		return
	}

	runDir := filepath.Join(h.runner.Output().BaseOutputDir, id)
	if err := os.RemoveAll(runDir); err != nil {
		log.Warn().Err(err).Str("dir", runDir).Msg("Failed to delete run directory")
	}
	if err := store.DeleteRun(id); err != nil {
		http.Error(w, "Failed to delete run", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Run and all artifacts deleted successfully",
		"run_id":  id,
	})
}

// GET /api/v1/runs/{id}/files/{name}
func (h *RunHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) != 6 {
		http.Error(w, "Invalid URL format", http.StatusBadRequest)
		return
	}
	id, fileName := pathParts[3], filepath.Base(pathParts[5])

	output := h.runner.Output()
	filePath := filepath.Join(output.BaseOutputDir, filepath.Base(id), fileName)
	if _, err := os.Stat(filePath); err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	w.Header().Set("Content-Type", output.ContentType(fileName))
	http.ServeFile(w, r, filePath)
}

// GetMetadata proxies the tiling service metadata endpoint
// @Summary Get raster metadata
// @Description Proxy the tiling service metadata endpoint for one raster
// @Tags metadata
// @Produce json
// @Param url query string true "Raster URL"
// @Param pmin query number false "Lower percentile"
// @Param pmax query number false "Upper percentile"
// @Success 200 {object} tiler.Metadata "Raster metadata"
// @Failure 400 {object} map[string]interface{} "Missing url"
// @Failure 502 {object} map[string]interface{} "Tiling service error"
// @Router /metadata [get]
func (h *RunHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cogURL := q.Get("url")
	if cogURL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	pmin, err := parsePercentile(q.Get("pmin"), 2)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pmax, err := parsePercentile(q.Get("pmax"), 98)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	md, err := h.tiler.Metadata(r.Context(), cogURL, pmin, pmax)
	if err != nil {
		var statusErr *tiler.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			http.Error(w, "Raster not found", http.StatusNotFound)
			return
		}
		log.Warn().Err(err).Str("url", cogURL).Msg("Metadata request failed")
		http.Error(w, "Tiling service error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func parsePercentile(raw string, def float64) (float64, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 100 {
		return 0, fmt.Errorf("invalid percentile %q", raw)
	}
	return v, nil
}
