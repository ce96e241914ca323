package model

import (
	"fmt"
	"time"
)

// ItemSource describes where the work item list comes from when items are not inlined
type ItemSource struct {
	Type         string `json:"type" yaml:"type"`                                       // csv, json
	URL          string `json:"url" yaml:"url"`                                         // file path or http(s) URL
	LabelPattern string `json:"label_pattern,omitempty" yaml:"label_pattern,omitempty"` // regexp deriving labels from IDs
}

// RunSpec is the struct for POST /api/v1/runs and the CLI run file
type RunSpec struct {
	Endpoint       string      `json:"endpoint" yaml:"endpoint"`                 // TiTiler base URL, config default when empty
	Items          []WorkItem  `json:"items,omitempty" yaml:"items,omitempty"`   // explicit id -> label mapping
	Source         *ItemSource `json:"source,omitempty" yaml:"source,omitempty"` // alternative to Items
	BBox           []float64   `json:"bbox" yaml:"bbox"`                         // minx, miny, maxx, maxy
	Crop           CropOptions `json:"crop" yaml:"crop"`                         // band, max size, format
	MaxConcurrency int         `json:"max_concurrency" yaml:"max_concurrency"`   // worker pool size
	RequestTimeout string      `json:"request_timeout" yaml:"request_timeout"`   // per-request, e.g. "30s"
	JobTimeout     string      `json:"job_timeout" yaml:"job_timeout"`           // whole run, e.g. "10m"
	Export         *Export     `json:"export,omitempty" yaml:"export,omitempty"` // output rules
	Cache          bool        `json:"cache" yaml:"cache"`                       // cache crop payloads in memory
}

// Export defines export targets
type Export struct {
	File string `json:"file" yaml:"file"` // e.g. series.csv or series.json
}

// Validate checks s can produce a run. Item enumeration from a source is checked later,
// an empty endpoint falls back to the configured tiling service.
func (s RunSpec) Validate() error {
	if len(s.Items) == 0 && s.Source == nil {
		return fmt.Errorf("at least one item or an item source is required")
	}
	window, err := WindowFromSlice(s.BBox)
	if err != nil {
		return err
	}
	if err := window.Validate(); err != nil {
		return err
	}
	if s.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", s.MaxConcurrency)
	}
	if err := validateDuration("request_timeout", s.RequestTimeout); err != nil {
		return err
	}
	return validateDuration("job_timeout", s.JobTimeout)
}

// validateDuration accepts an empty value (config default) or a positive Go duration
func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}

// Run statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunRecord is a persisted run as returned by the store
type RunRecord struct {
	ID        string    `json:"id"`
	Spec      RunSpec   `json:"spec"`
	Status    string    `json:"status"`
	Submitted int       `json:"submitted"`
	Succeeded int       `json:"succeeded"`
	Dropped   int       `json:"dropped"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
