package raster

import (
	"errors"
	"math"
)

// ErrNoValidSamples is returned when every pixel is masked out or NaN
var ErrNoValidSamples = errors.New("no valid samples")

// MaskedMax returns the maximum over all data bands at pixels whose mask value is non-zero.
// Without a mask band every pixel is valid. NaN values are skipped.
func MaskedMax(a *Array) (float64, error) {
	dataBands := a.Bands
	var mask []float64
	if a.HasMask {
		dataBands--
		mask = a.Band(a.Bands - 1)
	}

	max := math.Inf(-1)
	found := false
	for b := 0; b < dataBands; b++ {
		for i, v := range a.Band(b) {
			if mask != nil && mask[i] == 0 {
				continue
			}
			if math.IsNaN(v) {
				continue
			}
			if !found || v > max {
				max = v
				found = true
			}
		}
	}
	if !found {
		return 0, ErrNoValidSamples
	}
	return max, nil
}
