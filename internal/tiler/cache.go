package tiler

import (
	"context"
	"fmt"

	"go-cog-pipeline/internal/model"

	"github.com/dgraph-io/ristretto"
	"github.com/klauspost/compress/zstd"
)

// Fetcher is anything that returns the crop payload for a request
type Fetcher interface {
	Fetch(ctx context.Context, req model.FetchRequest) ([]byte, error)
}

// CachedFetcher keeps zstd-compressed crop payloads in memory, keyed by crop path.
// Only successful payloads are cached.
type CachedFetcher struct {
	next    Fetcher
	cache   *ristretto.Cache
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCachedFetcher wraps next with a cache holding at most maxBytes of compressed payloads
func NewCachedFetcher(next Fetcher, maxBytes int64) (*CachedFetcher, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxBytes)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		// ten counters per expected item, assuming ~1KiB compressed crops
		NumCounters:        max(1000, maxBytes/100),
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create crop cache: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &CachedFetcher{next: next, cache: cache, encoder: enc, decoder: dec}, nil
}

// Fetch serves the payload from cache or delegates to the wrapped fetcher
func (c *CachedFetcher) Fetch(ctx context.Context, req model.FetchRequest) ([]byte, error) {
	key := CropPath(req)
	if v, ok := c.cache.Get(key); ok {
		if payload, err := c.decoder.DecodeAll(v.([]byte), nil); err == nil {
			return payload, nil
		}
		c.cache.Del(key)
	}

	payload, err := c.next.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	compressed := c.encoder.EncodeAll(payload, nil)
	if c.cache.Set(key, compressed, int64(len(compressed))) {
		c.cache.Wait()
	}
	return payload, nil
}

// Close releases the cache and codec resources
func (c *CachedFetcher) Close() {
	c.cache.Close()
	c.encoder.Close()
	c.decoder.Close()
}
