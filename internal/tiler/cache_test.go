package tiler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go-cog-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls   int32
	payload []byte
	err     error
}

func (f *countingFetcher) Fetch(ctx context.Context, req model.FetchRequest) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func TestCachedFetcherHit(t *testing.T) {
	next := &countingFetcher{payload: []byte("npy-bytes-npy-bytes-npy-bytes")}
	c, err := NewCachedFetcher(next, 1<<20)
	require.NoError(t, err)
	defer c.Close()

	req := testRequest("s3://bucket/a.tif")
	first, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, next.payload, first)
	assert.Equal(t, next.payload, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&next.calls))
}

func TestCachedFetcherKeysByRequest(t *testing.T) {
	next := &countingFetcher{payload: []byte("payload")}
	c, err := NewCachedFetcher(next, 1<<20)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Fetch(context.Background(), testRequest("s3://bucket/a.tif"))
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), testRequest("s3://bucket/b.tif"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
}

func TestCachedFetcherDoesNotCacheErrors(t *testing.T) {
	next := &countingFetcher{err: errors.New("connection reset")}
	c, err := NewCachedFetcher(next, 1<<20)
	require.NoError(t, err)
	defer c.Close()

	req := testRequest("s3://bucket/a.tif")
	_, err = c.Fetch(context.Background(), req)
	assert.Error(t, err)
	_, err = c.Fetch(context.Background(), req)
	assert.Error(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&next.calls))
}

func TestNewCachedFetcherRejectsZeroSize(t *testing.T) {
	_, err := NewCachedFetcher(&countingFetcher{}, 0)
	assert.Error(t, err)
}
