package metric

import (
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
)

type recordingClient struct {
	*statsd.NoOpClient
	mu     sync.Mutex
	counts map[string]int64
	tags   map[string][]string
}

func newRecordingClient() *recordingClient {
	return &recordingClient{
		NoOpClient: &statsd.NoOpClient{},
		counts:     make(map[string]int64),
		tags:       make(map[string][]string),
	}
}

func (c *recordingClient) Incr(name string, tags []string, rate float64) error {
	return c.Count(name, 1, tags, rate)
}

func (c *recordingClient) Count(name string, value int64, tags []string, rate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name] += value
	c.tags[name] = tags
	return nil
}

func (c *recordingClient) Timing(name string, value time.Duration, tags []string, rate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[name] = tags
	return nil
}

func useClient(t *testing.T, c statsd.ClientInterface) {
	t.Helper()
	mu.Lock()
	prev := client
	client = c
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		client = prev
		mu.Unlock()
	})
}

func TestObserveRequests(t *testing.T) {
	rec := newRecordingClient()
	useClient(t, rec)

	ObserveExternalRequest("/cog/crop", 200, 10*time.Millisecond)
	ObserveExternalRequest("/cog/crop", 404, 10*time.Millisecond)
	ObserveAPIRequest("/api/v1/runs", "POST", 202, time.Millisecond)
	Count(PipelineItemCount, 7, []string{Tag(TagOutcome, "ok")})

	assert.Equal(t, int64(2), rec.counts[ExternalApiRequestCount])
	assert.Equal(t, []string{"path:/cog/crop", "status_code:404"}, rec.tags[ExternalApiRequestLatency])
	assert.Equal(t, []string{"path:/api/v1/runs", "method:POST", "status_code:202"}, rec.tags[ApiRequestCount])
	assert.Equal(t, int64(7), rec.counts[PipelineItemCount])
}

func TestInitWithoutAddressKeepsNoOp(t *testing.T) {
	useClient(t, &statsd.NoOpClient{})
	Init("", "cog-pipeline")
	_, ok := current().(*statsd.NoOpClient)
	assert.True(t, ok)

	// no agent configured, calls are dropped
	Incr(ApiRequestCount, nil)
	Timing(PipelineRunLatency, time.Second, nil)
}
