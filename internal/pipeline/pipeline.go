package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-cog-pipeline/internal/config"
	"go-cog-pipeline/internal/model"
	"go-cog-pipeline/internal/store"
	"go-cog-pipeline/internal/tiler"
	"go-cog-pipeline/pkg/metric"
	"go-cog-pipeline/pkg/utils"

	"github.com/rs/zerolog/log"
)

// Runner executes run specs against a tiling service. Tiler clients and crop caches are
// shared across runs per endpoint.
type Runner struct {
	cfg      *config.Config
	registry *Registry
	output   *utils.OutputManager
	sources  SourceAccess

	mu       sync.Mutex
	fetchers map[string]Fetcher
	closers  []func()
}

// NewRunner creates a runner using cfg defaults for anything a spec leaves unset
func NewRunner(cfg *config.Config, registry *Registry) *Runner {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Runner{
		cfg:      cfg,
		registry: registry,
		output:   utils.NewOutputManager(cfg.OutputDir),
		sources:  SourceAccess{Root: cfg.SourceDir},
		fetchers: make(map[string]Fetcher),
	}
}

// AllowLocalSources lets item sources name any local file. Call before the first run.
func (r *Runner) AllowLocalSources() {
	r.sources.AnyPath = true
}

// CheckSource reports whether src may be read by this runner
func (r *Runner) CheckSource(src model.ItemSource) error {
	_, err := r.sources.Resolve(src.URL)
	return err
}

// Registry returns the trackers of in-progress runs
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Output returns the manager of exported run files
func (r *Runner) Output() *utils.OutputManager {
	return r.output
}

// Close releases the crop caches
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.closers {
		c()
	}
	r.closers = nil
	r.fetchers = make(map[string]Fetcher)
}

// fetcher returns the shared fetcher for endpoint, optionally wrapped in the crop cache
func (r *Runner) fetcher(endpoint string, cached bool) (Fetcher, error) {
	if endpoint == "" {
		endpoint = r.cfg.TitilerEndpoint
	}
	key := endpoint
	if cached {
		key += "#cached"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fetchers[key]; ok {
		return f, nil
	}

	opts := []tiler.Option{tiler.WithTimeout(r.cfg.RequestTimeout)}
	if r.cfg.RateLimit > 0 {
		opts = append(opts, tiler.WithRateLimit(r.cfg.RateLimit, max(1, int(r.cfg.RateLimit))))
	}
	client, err := tiler.NewClient(endpoint, opts...)
	if err != nil {
		return nil, err
	}

	var f Fetcher = client
	if cached && r.cfg.CacheSize > 0 {
		cache, err := tiler.NewCachedFetcher(client, r.cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, cache.Close)
		f = cache
	}
	r.fetchers[key] = f
	return f, nil
}

// Execute resolves the items, window and fetcher of spec and runs FetchAndAggregate.
// It touches neither the store nor the export targets.
func (r *Runner) Execute(ctx context.Context, spec model.RunSpec, progress ProgressFunc) (*model.Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	items := spec.Items
	if len(items) == 0 && spec.Source != nil {
		loaded, err := LoadItems(ctx, *spec.Source, r.sources)
		if errors.Is(err, ErrLocalSourceDenied) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if err != nil {
			return nil, err
		}
		items = loaded
	}

	window, err := model.WindowFromSlice(spec.BBox)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	fetcher, err := r.fetcher(spec.Endpoint, spec.Cache)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	concurrency := spec.MaxConcurrency
	if concurrency == 0 {
		concurrency = r.cfg.MaxConcurrency
	}

	return FetchAndAggregate(ctx, items, window, Options{
		MaxConcurrency: concurrency,
		Crop:           spec.Crop,
		ItemTimeout:    utils.ParseDuration(spec.RequestTimeout, r.cfg.RequestTimeout),
		Fetcher:        fetcher,
		Progress:       progress,
	})
}

// ------------------- Pipeline Runner -------------------

// Start registers runID and executes it in the background. The run can be cancelled through the
// registry as soon as Start returns. The returned channel yields the run error once and is closed.
func (r *Runner) Start(ctx context.Context, runID string, spec model.RunSpec) <-chan error {
	tracker, ctx := r.track(ctx, runID)
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := r.run(ctx, tracker, spec)
		done <- err
	}()
	return done
}

// Run executes a stored run: pending -> running -> completed | failed | cancelled.
// The series and failures are persisted even when the run is cut short.
func (r *Runner) Run(ctx context.Context, runID string, spec model.RunSpec) (*model.Result, error) {
	tracker, ctx := r.track(ctx, runID)
	return r.run(ctx, tracker, spec)
}

func (r *Runner) track(ctx context.Context, runID string) (*RunTracker, context.Context) {
	tracker, ctx := NewRunTracker(ctx, runID)
	tracker.SetStatus(model.StatusPending)
	r.registry.Add(tracker)
	return tracker, ctx
}

func (r *Runner) run(ctx context.Context, tracker *RunTracker, spec model.RunSpec) (result *model.Result, err error) {
	runID := tracker.runID
	start := time.Now()
	logger := log.With().Str("run_id", runID).Logger()
	logger.Info().Str("endpoint", spec.Endpoint).Msg("Starting run")
	defer r.registry.Remove(runID)

	ctx, cancel := context.WithTimeout(ctx, utils.ParseDuration(spec.JobTimeout, r.cfg.JobTimeout))
	defer cancel()

	tracker.SetStatus(model.StatusRunning)
	if err := store.UpdateRunStatus(runID, model.StatusRunning); err != nil {
		logger.Error().Err(err).Msg("Failed to update run status")
	}

	// Defer function to handle status updates on completion/error
	defer func() {
		status := model.StatusCompleted
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			status = model.StatusCancelled
			if serr := store.UpdateRunStatus(runID, status); serr != nil {
				logger.Error().Err(serr).Msg("Failed to update run status")
			}
		default:
			status = model.StatusFailed
			if serr := store.SaveRunError(runID, err); serr != nil {
				logger.Error().Err(serr).Msg("Failed to save run error")
			}
		}
		tracker.SetStatus(status)
		metric.Timing(metric.PipelineRunLatency, time.Since(start), []string{metric.Tag(metric.TagOutcome, status)})
	}()

	result, err = r.Execute(ctx, spec, tracker.Progress)
	if result != nil {
		if serr := store.SaveRunResult(runID, result); serr != nil {
			logger.Error().Err(serr).Msg("Failed to save run result")
			if err == nil {
				err = serr
			}
		}
		metric.Count(metric.PipelineItemCount, int64(len(result.Samples)), []string{metric.Tag(metric.TagOutcome, "ok")})
		metric.Count(metric.PipelineItemCount, int64(result.Dropped()), []string{metric.Tag(metric.TagOutcome, "dropped")})
	}
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Run did not complete")
		return result, err
	}

	if spec.Export != nil && spec.Export.File != "" {
		path, perr := r.output.GetOutputFilePath(runID, spec.Export.File)
		if perr != nil {
			return result, perr
		}
		if _, err = ExportSeries(path, runID, result); err != nil {
			return result, err
		}
	}

	if err = store.UpdateRunStatus(runID, model.StatusCompleted); err != nil {
		return result, err
	}
	logger.Info().Int("submitted", result.Submitted).Int("succeeded", len(result.Samples)).
		Int("dropped", result.Dropped()).Dur("elapsed", time.Since(start)).Msg("Run completed")
	return result, nil
}
