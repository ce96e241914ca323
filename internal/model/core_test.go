package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, NewWindow(-61.5, 16.1, -61.2, 16.5).Validate())
	assert.NoError(t, NewWindow(1, 1, 1, 1).Validate())

	assert.Error(t, NewWindow(2, 0, 1, 1).Validate())
	assert.Error(t, NewWindow(0, 2, 1, 1).Validate())
	assert.Error(t, NewWindow(0, 0, math.Inf(1), 1).Validate())
	assert.Error(t, NewWindow(math.NaN(), 0, 1, 1).Validate())
}

func TestWindowFromSlice(t *testing.T) {
	w, err := WindowFromSlice([]float64{-61.5, 16.1, -61.2, 16.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{-61.5, 16.1, -61.2, 16.5}, w.Slice())
	assert.Equal(t, -61.5, w.Left())
	assert.Equal(t, 16.5, w.Top())

	_, err = WindowFromSlice([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestCropOptionsWithDefaults(t *testing.T) {
	assert.Equal(t, CropOptions{Band: 1, MaxSize: 128, Format: "npy"}, CropOptions{}.WithDefaults())
	assert.Equal(t, CropOptions{Band: 3, MaxSize: 256, Format: "npy"}, CropOptions{Band: 3, MaxSize: 256}.WithDefaults())
}

func TestResultSeries(t *testing.T) {
	r := &Result{
		Submitted: 4,
		Samples: []StatSample{
			{Label: "2019-01-02", ItemID: "b", Value: 1},
			{Label: "2019-01-01", ItemID: "z", Value: 2},
			{Label: "2019-01-01", ItemID: "a", Value: 3},
		},
	}

	series := r.Series()
	assert.Equal(t, []StatSample{
		{Label: "2019-01-01", ItemID: "a", Value: 3},
		{Label: "2019-01-01", ItemID: "z", Value: 2},
		{Label: "2019-01-02", ItemID: "b", Value: 1},
	}, series)
	// completion order is left untouched
	assert.Equal(t, "b", r.Samples[0].ItemID)
	assert.Equal(t, 1, r.Dropped())
}

func TestRunSpecValidate(t *testing.T) {
	valid := RunSpec{
		Items: []WorkItem{{ID: "s3://a.tif", Label: "2019-01-01"}},
		BBox:  []float64{0, 0, 1, 1},
	}
	assert.NoError(t, valid.Validate())

	withSource := RunSpec{Source: &ItemSource{Type: "csv", URL: "items.csv"}, BBox: []float64{0, 0, 1, 1}}
	assert.NoError(t, withSource.Validate())

	noItems := valid
	noItems.Items = nil
	assert.Error(t, noItems.Validate())

	badBBox := valid
	badBBox.BBox = []float64{1, 1, 0, 0}
	assert.Error(t, badBBox.Validate())

	negative := valid
	negative.MaxConcurrency = -1
	assert.Error(t, negative.Validate())

	timeouts := valid
	timeouts.RequestTimeout, timeouts.JobTimeout = "30s", "10m"
	assert.NoError(t, timeouts.Validate())

	for _, bad := range []string{"1hr", "-5s", "0s", "soon"} {
		spec := valid
		spec.RequestTimeout = bad
		assert.Error(t, spec.Validate(), "request_timeout %q", bad)

		spec = valid
		spec.JobTimeout = bad
		assert.Error(t, spec.Validate(), "job_timeout %q", bad)
	}
}
