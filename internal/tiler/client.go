package tiler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-cog-pipeline/internal/model"
	"go-cog-pipeline/pkg/metric"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a failed response is kept in a StatusError
const maxErrorBody = 512

// StatusError is returned when the tiling service answers with a non-2xx status
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tiler returned %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client calls a TiTiler deployment
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every individual request. Non-positive durations keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps requests per second across all callers of the client. Zero disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a client for the tiling service at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tiler endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid tiler endpoint %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CropPath returns the crop endpoint path and query for a request, relative to the base URL
func CropPath(req model.FetchRequest) string {
	opts := req.Options.WithDefaults()
	coords := make([]string, 0, 4)
	for _, v := range req.Window.Slice() {
		coords = append(coords, strconv.FormatFloat(v, 'f', -1, 64))
	}

	q := url.Values{}
	q.Set("url", req.Item.ID)
	q.Set("bidx", strconv.Itoa(opts.Band))
	q.Set("max_size", strconv.Itoa(opts.MaxSize))

	return fmt.Sprintf("/cog/crop/%s.%s?%s", strings.Join(coords, ","), opts.Format, q.Encode())
}

// Fetch requests the crop of one item and returns the raw payload
func (c *Client) Fetch(ctx context.Context, req model.FetchRequest) ([]byte, error) {
	return c.get(ctx, "/cog/crop", c.baseURL+CropPath(req))
}

// BandStatistics is the per-band entry of the metadata response
type BandStatistics struct {
	Percentiles []float64   `json:"pc"`
	Min         float64     `json:"min"`
	Max         float64     `json:"max"`
	Std         float64     `json:"std"`
	Histogram   [][]float64 `json:"histogram"`
}

// Metadata is the subset of /cog/metadata used for display
type Metadata struct {
	Bounds       []float64                 `json:"bounds"`
	Statistics   map[string]BandStatistics `json:"statistics"`
	BandMetadata json.RawMessage           `json:"band_metadata,omitempty"`
	BandDescr    json.RawMessage           `json:"band_descriptions,omitempty"`
	Dtype        string                    `json:"dtype"`
	NodataType   string                    `json:"nodata_type"`
	Colorinterp  []string                  `json:"colorinterp,omitempty"`
	Overviews    []int                     `json:"overviews,omitempty"`
}

// Metadata fetches band statistics for a COG, clipped to the pmin/pmax percentiles
func (c *Client) Metadata(ctx context.Context, cogURL string, pmin, pmax float64) (*Metadata, error) {
	q := url.Values{}
	q.Set("url", cogURL)
	q.Set("pmin", strconv.FormatFloat(pmin, 'f', -1, 64))
	q.Set("pmax", strconv.FormatFloat(pmax, 'f', -1, 64))

	body, err := c.get(ctx, "/cog/metadata", c.baseURL+"/cog/metadata?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var md Metadata
	if err := json.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &md, nil
}

func (c *Client) get(ctx context.Context, route, target string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metric.ObserveExternalRequest(route, 0, time.Since(start))
		return nil, fmt.Errorf("failed to GET %s: %w", route, err)
	}
	defer resp.Body.Close()
	metric.ObserveExternalRequest(route, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: target, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s body: %w", route, err)
	}
	log.Debug().Str("route", route).Int("bytes", len(body)).Dur("took", time.Since(start)).Msg("tiler request done")
	return body, nil
}
