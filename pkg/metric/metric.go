package metric

import (
	"strconv"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

const (
	ExternalApiRequestCount   = "external_api_request_count"
	ExternalApiRequestLatency = "external_api_request_latency"
	ApiRequestCount           = "api_request_count"
	ApiRequestLatency         = "api_request_latency"
	PipelineItemCount         = "pipeline_item_count"
	PipelineRunLatency        = "pipeline_run_latency"

	TagPath       = "path"
	TagMethod     = "method"
	TagStatusCode = "status_code"
	TagOutcome    = "outcome"
	TagService    = "service"
)

var (
	// it is safe to use one client from multiple goroutines simultaneously
	client statsd.ClientInterface = &statsd.NoOpClient{}
	mu     sync.RWMutex
)

// Init points the package at a statsd agent. An empty address keeps the no-op client.
func Init(addr, appName string) {
	if addr == "" {
		log.Debug().Msg("Metrics disabled, no statsd address configured")
		return
	}
	c, err := statsd.New(addr, statsd.WithTags([]string{TagService + ":" + appName}))
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("StatsD client initialization failed, metrics disabled")
		return
	}
	mu.Lock()
	client = c
	mu.Unlock()
	log.Info().Str("addr", addr).Msg("Metrics client initialized")
}

func current() statsd.ClientInterface {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

// Tag formats a statsd key:value tag
func Tag(key, value string) string {
	return key + ":" + value
}

func Incr(name string, tags []string) {
	_ = current().Incr(name, tags, 1)
}

func Count(name string, value int64, tags []string) {
	_ = current().Count(name, value, tags, 1)
}

func Timing(name string, value time.Duration, tags []string) {
	_ = current().Timing(name, value, tags, 1)
}

// ObserveExternalRequest records one call to the tiling service
func ObserveExternalRequest(path string, statusCode int, latency time.Duration) {
	tags := []string{Tag(TagPath, path), Tag(TagStatusCode, strconv.Itoa(statusCode))}
	Incr(ExternalApiRequestCount, tags)
	Timing(ExternalApiRequestLatency, latency, tags)
}

// ObserveAPIRequest records one request served by our own HTTP API
func ObserveAPIRequest(path, method string, statusCode int, latency time.Duration) {
	tags := []string{Tag(TagPath, path), Tag(TagMethod, method), Tag(TagStatusCode, strconv.Itoa(statusCode))}
	Incr(ApiRequestCount, tags)
	Timing(ApiRequestLatency, latency, tags)
}
