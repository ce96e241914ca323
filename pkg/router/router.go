package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go-cog-pipeline/pkg/metric"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

type Router struct {
	mux          *http.ServeMux
	routes       map[string]HandlerFunc // key = METHOD:PATH
	paths        map[string]bool        // track registered paths
	order        []string               // wildcard paths in registration order
	corsOrigins  []string
	cacheControl string
}

// Option configures a Router
type Option func(*Router)

// WithCORS allows cross-origin requests from origins; "*" allows any
func WithCORS(origins []string) Option {
	return func(r *Router) { r.corsOrigins = origins }
}

// WithCacheControl sets the Cache-Control header on GET responses that don't set their own
func WithCacheControl(value string) Option {
	return func(r *Router) { r.cacheControl = value }
}

func New(opts ...Option) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		routes: make(map[string]HandlerFunc),
		paths:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}

	// Catch-all handler for unknown paths
	r.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK, req: req, cacheControl: r.cacheControl}

		route := r.serve(lrw, req)

		duration := time.Since(start)
		metric.ObserveAPIRequest(route, req.Method, lrw.statusCode, duration)
		log.Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", lrw.statusCode).
			Dur("duration", duration).
			Msg("request")
	})

	return r
}

// serve dispatches req and returns the matched route pattern, used as the metric path tag
func (r *Router) serve(w http.ResponseWriter, req *http.Request) string {
	if r.applyCORS(w, req) {
		return "preflight"
	}

	key := req.Method + ":" + req.URL.Path
	if h, ok := r.routes[key]; ok {
		h(w, req)
		return req.URL.Path
	}

	// More specific wildcard routes are registered first
	for _, routePath := range r.order {
		if !matchWildcardRoute(req.URL.Path, routePath) {
			continue
		}
		if h, ok := r.routes[req.Method+":"+routePath]; ok {
			h(w, req)
			return routePath
		}
	}

	if r.paths[req.URL.Path] {
		// Path exists but method not allowed
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return "unknown"
	}
	for _, routePath := range r.order {
		if matchWildcardRoute(req.URL.Path, routePath) {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return "unknown"
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
	return "unknown"
}

// applyCORS sets the CORS headers and reports whether req was a preflight that is now answered
func (r *Router) applyCORS(w http.ResponseWriter, req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" || len(r.corsOrigins) == 0 {
		return false
	}

	allowed := ""
	for _, o := range r.corsOrigins {
		if o == "*" {
			allowed = "*"
			break
		}
		if o == origin {
			allowed = origin
			break
		}
	}
	if allowed == "" {
		return false
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", allowed)
	if allowed != "*" {
		h.Add("Vary", "Origin")
	}

	if req.Method != http.MethodOptions || req.Header.Get("Access-Control-Request-Method") == "" {
		return false
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	if reqHeaders := req.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
		h.Set("Access-Control-Allow-Headers", reqHeaders)
	}
	h.Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
	return true
}

// matchWildcardRoute checks if a request path matches a wildcard route pattern.
// A "*" segment matches one segment; a trailing "*" matches the rest of the path.
func matchWildcardRoute(requestPath, routePattern string) bool {
	requestSegments := strings.Split(strings.Trim(requestPath, "/"), "/")
	routeSegments := strings.Split(strings.Trim(routePattern, "/"), "/")

	last := len(routeSegments) - 1
	trailing := routeSegments[last] == "*"
	if trailing {
		if len(requestSegments) < len(routeSegments) {
			return false
		}
	} else if len(requestSegments) != len(routeSegments) {
		return false
	}

	for i, routeSegment := range routeSegments {
		if routeSegment == "*" {
			if requestSegments[i] == "" {
				return false
			}
			continue
		}
		if requestSegments[i] != routeSegment {
			return false
		}
	}
	return true
}

// --- Register paths ---
func (r *Router) register(method, path string, handler HandlerFunc) {
	key := method + ":" + path
	r.routes[key] = handler
	if strings.Contains(path, "*") && !r.paths[path] {
		r.order = append(r.order, path)
	}
	r.paths[path] = true
}

func (r *Router) GET(path string, handler HandlerFunc)    { r.register(http.MethodGet, path, handler) }
func (r *Router) POST(path string, handler HandlerFunc)   { r.register(http.MethodPost, path, handler) }
func (r *Router) DELETE(path string, handler HandlerFunc) { r.register(http.MethodDelete, path, handler) }

// Getter methods for testing
func (r *Router) Routes() map[string]HandlerFunc {
	return r.routes
}

func (r *Router) Paths() map[string]bool {
	return r.paths
}

// Handler returns the router with gzip compression applied
func (r *Router) Handler() http.Handler {
	return gzhttp.GzipHandler(r.mux)
}

// Server wraps the router in an http.Server listening on addr
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// --- Start server ---

// Start serves until ctx is done, then shuts down gracefully
func (r *Router) Start(ctx context.Context, addr string) error {
	srv := r.Server(addr)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// --- Logging response writer to capture status codes ---
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	wroteHeader  bool
	req          *http.Request
	cacheControl string
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if lrw.wroteHeader {
		return
	}
	lrw.wroteHeader = true
	lrw.statusCode = code

	h := lrw.ResponseWriter.Header()
	if lrw.cacheControl != "" && h.Get("Cache-Control") == "" &&
		(lrw.req.Method == http.MethodGet || lrw.req.Method == http.MethodHead) && code < 500 {
		h.Set("Cache-Control", lrw.cacheControl)
	}
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if !lrw.wroteHeader {
		lrw.WriteHeader(http.StatusOK)
	}
	return lrw.ResponseWriter.Write(b)
}
