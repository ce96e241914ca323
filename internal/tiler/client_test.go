package tiler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go-cog-pipeline/internal/model"
	"go-cog-pipeline/internal/raster/rastertest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	m.Run()
}

func testRequest(id string) model.FetchRequest {
	return model.FetchRequest{
		Item:    model.WorkItem{ID: id, Label: "2019-01-01"},
		Window:  model.NewWindow(-61.5, 16.1, -61.2, 16.5),
		Options: model.CropOptions{},
	}
}

func TestCropPath(t *testing.T) {
	path := CropPath(testRequest("s3://bucket/2019/01/01/cog.tif"))

	assert.Equal(t,
		"/cog/crop/-61.5,16.1,-61.2,16.5.npy?bidx=1&max_size=128&url=s3%3A%2F%2Fbucket%2F2019%2F01%2F01%2Fcog.tif",
		path)
}

func TestFetch(t *testing.T) {
	payload := rastertest.Tile(1, 2, []float32{1, 2}, []float32{255, 255})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cog/crop/-61.5,16.1,-61.2,16.5.npy", r.URL.Path)
		assert.Equal(t, "s3://bucket/a.tif", r.URL.Query().Get("url"))
		assert.Equal(t, "1", r.URL.Query().Get("bidx"))
		assert.Equal(t, "128", r.URL.Query().Get("max_size"))
		w.Header().Set("Content-Type", "application/x-binary")
		w.Write(payload)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	body, err := c.Fetch(context.Background(), testRequest("s3://bucket/a.tif"))
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Tile is outside bounds"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), testRequest("s3://bucket/a.tif"))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "outside bounds")
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Fetch(context.Background(), testRequest("s3://bucket/a.tif"))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewClientRejectsBadEndpoint(t *testing.T) {
	_, err := NewClient("ftp://example.com")
	assert.Error(t, err)

	_, err = NewClient("://nope")
	assert.Error(t, err)
}

func TestMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cog/metadata", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("pmin"))
		assert.Equal(t, "98", r.URL.Query().Get("pmax"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"bounds": [-61.6, 16.0, -61.1, 16.6],
			"statistics": {"1": {"pc": [3, 97], "min": 0, "max": 255, "std": 12.5, "histogram": [[1, 2], [0, 128, 255]]}},
			"dtype": "uint8",
			"nodata_type": "Mask"
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	md, err := c.Metadata(context.Background(), "s3://bucket/a.tif", 2, 98)
	require.NoError(t, err)
	assert.Equal(t, "uint8", md.Dtype)
	assert.Equal(t, "Mask", md.NodataType)
	require.Contains(t, md.Statistics, "1")
	assert.Equal(t, []float64{3, 97}, md.Statistics["1"].Percentiles)
	assert.Len(t, md.Bounds, 4)
}

func TestRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithRateLimit(20, 1))
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), testRequest("s3://bucket/a.tif"))
		require.NoError(t, err)
	}
	// burst of one, so the 2nd and 3rd calls wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
