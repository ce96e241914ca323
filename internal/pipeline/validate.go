package pipeline

import (
	"errors"
	"fmt"

	"go-cog-pipeline/internal/model"
)

// ErrInvalidInput wraps every precondition failure of FetchAndAggregate
var ErrInvalidInput = errors.New("invalid input")

// validateInput rejects a batch before any work is scheduled.
func validateInput(items []model.WorkItem, window model.Window, opts Options) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}
	if err := window.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if opts.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max concurrency must be at least 1, got %d", ErrInvalidInput, opts.MaxConcurrency)
	}
	if opts.Fetcher == nil {
		return fmt.Errorf("%w: fetcher is required", ErrInvalidInput)
	}
	if opts.Crop.Band < 0 || opts.Crop.MaxSize < 0 {
		return fmt.Errorf("%w: band and max size must not be negative", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		if item.ID == "" {
			return fmt.Errorf("%w: item %d has an empty id", ErrInvalidInput, i)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: duplicate item id %s", ErrInvalidInput, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}
