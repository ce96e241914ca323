package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// WorkItem is one remote raster to crop, e.g. a COG object path plus the date it represents
type WorkItem struct {
	ID    string `json:"id" yaml:"id"`       // source raster identifier passed as ?url=
	Label string `json:"label" yaml:"label"` // series key, e.g. "2019-01-01"
}

// Window is the fixed spatial window cropped from every item
type Window struct {
	orb.Bound
}

// NewWindow builds a window from minx, miny, maxx, maxy
func NewWindow(minX, minY, maxX, maxY float64) Window {
	return Window{Bound: orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{maxX, maxY},
	}}
}

// WindowFromSlice builds a window from a four-number [minx, miny, maxx, maxy] slice
func WindowFromSlice(bbox []float64) (Window, error) {
	if len(bbox) != 4 {
		return Window{}, fmt.Errorf("bbox must have 4 numbers, got %d", len(bbox))
	}
	return NewWindow(bbox[0], bbox[1], bbox[2], bbox[3]), nil
}

// Slice returns the window as [minx, miny, maxx, maxy]
func (w Window) Slice() []float64 {
	return []float64{w.Min.X(), w.Min.Y(), w.Max.X(), w.Max.Y()}
}

// Validate checks the window is finite and not inverted. Degenerate (zero-area) windows are allowed.
func (w Window) Validate() error {
	for _, v := range w.Slice() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bbox contains a non-finite value: %v", w.Slice())
		}
	}
	if w.Min.X() > w.Max.X() {
		return fmt.Errorf("bbox minx %v greater than maxx %v", w.Min.X(), w.Max.X())
	}
	if w.Min.Y() > w.Max.Y() {
		return fmt.Errorf("bbox miny %v greater than maxy %v", w.Min.Y(), w.Max.Y())
	}
	return nil
}

// CropOptions are the fixed output constraints sent with every crop request
type CropOptions struct {
	Band    int    `json:"band" yaml:"band"`         // 1-based band index (bidx)
	MaxSize int    `json:"max_size" yaml:"max_size"` // max output raster dimension in pixels
	Format  string `json:"format" yaml:"format"`     // crop output format, "npy"
}

const (
	DefaultBand    = 1
	DefaultMaxSize = 128
	DefaultFormat  = "npy"
)

// WithDefaults fills zero fields with the defaults used by the crop endpoint callers
func (o CropOptions) WithDefaults() CropOptions {
	if o.Band == 0 {
		o.Band = DefaultBand
	}
	if o.MaxSize == 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	return o
}

// FetchRequest is the per-item crop request
type FetchRequest struct {
	Item    WorkItem
	Window  Window
	Options CropOptions
}

// StatSample is the statistic computed for one successfully processed item
type StatSample struct {
	Value  float64 `json:"value"`
	Label  string  `json:"label"`
	ItemID string  `json:"item_id"`
}

// Failure kinds recorded for dropped items
const (
	FailureTransport = "transport"
	FailureStatus    = "status"
	FailureDecode    = "decode"
	FailureEmpty     = "empty"
)

// ItemFailure records why an item contributed no sample
type ItemFailure struct {
	ItemID  string `json:"item_id"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the outcome of one fetch-and-aggregate call. Samples are in completion order.
type Result struct {
	Samples   []StatSample  `json:"samples"`
	Failures  []ItemFailure `json:"failures"`
	Submitted int           `json:"submitted"`
}

// Dropped returns how many submitted items produced no sample, including abandoned ones
func (r *Result) Dropped() int {
	return r.Submitted - len(r.Samples)
}

// Series returns a copy of the samples sorted by label, ties broken by item ID
func (r *Result) Series() []StatSample {
	return SortSeries(r.Samples)
}

// SortSeries returns a label-sorted copy of samples
func SortSeries(samples []StatSample) []StatSample {
	out := make([]StatSample, len(samples))
	copy(out, samples)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}
