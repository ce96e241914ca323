package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-cog-pipeline/internal/model"
	"go-cog-pipeline/internal/raster"
	"go-cog-pipeline/internal/tiler"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultItemTimeout bounds a single fetch when Options.ItemTimeout is zero
const DefaultItemTimeout = 30 * time.Second

// Fetcher returns the raw crop payload for one request
type Fetcher interface {
	Fetch(ctx context.Context, req model.FetchRequest) ([]byte, error)
}

// FetcherFunc adapts a plain function to Fetcher
type FetcherFunc func(ctx context.Context, req model.FetchRequest) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, req model.FetchRequest) ([]byte, error) {
	return f(ctx, req)
}

// ProgressFunc is called after each item completes, success or failure.
// completed grows by one per call, up to total.
type ProgressFunc func(completed, total int)

// Options configures one FetchAndAggregate call
type Options struct {
	MaxConcurrency int               // worker pool size, must be >= 1
	Crop           model.CropOptions // band, max size, format; zero fields take defaults
	ItemTimeout    time.Duration     // per fetch, DefaultItemTimeout when zero
	Fetcher        Fetcher
	Progress       ProgressFunc    // optional
	Logger         *zerolog.Logger // optional, global logger when nil
}

// itemResult is what a worker hands back to the collector
type itemResult struct {
	sample  *model.StatSample
	failure *model.ItemFailure
}

// FetchAndAggregate crops every item over window through a pool of at most opts.MaxConcurrency
// workers and returns one sample per successful item. Per-item failures are recorded in
// Result.Failures and never fail the batch; only invalid input does, before any request is made.
// When ctx is cancelled the partial result is returned with ctx.Err(); in-flight requests are abandoned.
func FetchAndAggregate(ctx context.Context, items []model.WorkItem, window model.Window, opts Options) (*model.Result, error) {
	if err := validateInput(items, window, opts); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = &log.Logger
	}
	crop := opts.Crop.WithDefaults()
	itemTimeout := opts.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = DefaultItemTimeout
	}

	numWorkers := min(opts.MaxConcurrency, len(items))
	jobs := make(chan model.FetchRequest)
	results := make(chan itemResult, numWorkers)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(workerID int) {
			defer wg.Done()
			for req := range jobs {
				if ctx.Err() != nil {
					return
				}
				res := processItem(ctx, req, opts.Fetcher, itemTimeout)
				if res.failure != nil {
					logger.Debug().Int("worker", workerID).Str("item", req.Item.ID).
						Str("kind", res.failure.Kind).Msg(res.failure.Message)
				}
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	go func() {
		defer close(jobs)
		for _, item := range items {
			req := model.FetchRequest{Item: item, Window: window, Options: crop}
			select {
			case jobs <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	// close results only after all workers finish
	go func() {
		wg.Wait()
		close(results)
	}()

	result := &model.Result{
		Samples:   make([]model.StatSample, 0, len(items)),
		Submitted: len(items),
	}
	completed := 0
	for {
		select {
		case res, ok := <-results:
			if !ok {
				// workers also stop on cancel, so a closed channel is not proof of completion
				if err := ctx.Err(); err != nil && completed < len(items) {
					logger.Warn().Int("completed", completed).Int("submitted", result.Submitted).
						Msg("Fetch-aggregate cancelled, abandoning outstanding requests")
					return result, err
				}
				logger.Info().Int("submitted", result.Submitted).Int("succeeded", len(result.Samples)).
					Int("dropped", result.Dropped()).Msg("Fetch-aggregate completed")
				return result, nil
			}
			completed++
			if res.sample != nil {
				result.Samples = append(result.Samples, *res.sample)
			} else if res.failure != nil {
				result.Failures = append(result.Failures, *res.failure)
			}
			if opts.Progress != nil {
				opts.Progress(completed, len(items))
			}
		case <-ctx.Done():
			logger.Warn().Int("completed", completed).Int("submitted", result.Submitted).
				Msg("Fetch-aggregate cancelled, abandoning outstanding requests")
			return result, ctx.Err()
		}
	}
}

// processItem fetches, decodes and reduces one item. It never returns an error; failures are data.
func processItem(ctx context.Context, req model.FetchRequest, fetcher Fetcher, timeout time.Duration) itemResult {
	fail := func(kind string, err error) itemResult {
		return itemResult{failure: &model.ItemFailure{
			ItemID:  req.Item.ID,
			Label:   req.Item.Label,
			Kind:    kind,
			Message: err.Error(),
		}}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	payload, err := fetcher.Fetch(fetchCtx, req)
	cancel()
	if err != nil {
		var statusErr *tiler.StatusError
		if errors.As(err, &statusErr) {
			return fail(model.FailureStatus, err)
		}
		return fail(model.FailureTransport, err)
	}

	arr, err := raster.Decode(payload)
	if err != nil {
		return fail(model.FailureDecode, fmt.Errorf("failed to decode crop: %w", err))
	}
	value, err := raster.MaskedMax(arr)
	if err != nil {
		return fail(model.FailureEmpty, err)
	}

	return itemResult{sample: &model.StatSample{
		Value:  value,
		Label:  req.Item.Label,
		ItemID: req.Item.ID,
	}}
}
