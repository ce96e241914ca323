package pipeline

import (
	"math"

	"go-cog-pipeline/internal/model"
)

// SeriesSummary describes a label-sorted series as a whole
type SeriesSummary struct {
	Count      int     `json:"count"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Avg        float64 `json:"avg"`
	FirstLabel string  `json:"first_label,omitempty"`
	LastLabel  string  `json:"last_label,omitempty"`
	PeakLabel  string  `json:"peak_label,omitempty"` // label of the highest value, earliest on ties
}

// Summarize computes count/min/max/avg over series, which must already be sorted by label
func Summarize(series []model.StatSample) SeriesSummary {
	if len(series) == 0 {
		return SeriesSummary{}
	}

	summary := SeriesSummary{
		Count:      len(series),
		Min:        math.Inf(1),
		Max:        math.Inf(-1),
		FirstLabel: series[0].Label,
		LastLabel:  series[len(series)-1].Label,
	}
	var sum float64
	for _, s := range series {
		sum += s.Value
		if s.Value < summary.Min {
			summary.Min = s.Value
		}
		if s.Value > summary.Max {
			summary.Max = s.Value
			summary.PeakLabel = s.Label
		}
	}
	summary.Avg = sum / float64(len(series))
	return summary
}

// FailureCounts groups dropped items by failure kind
func FailureCounts(failures []model.ItemFailure) map[string]int {
	counts := make(map[string]int)
	for _, f := range failures {
		counts[f.Kind]++
	}
	return counts
}
