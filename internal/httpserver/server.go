package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/health"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// compressible lists the response types worth gzipping: bundles and JSON.
var compressible = []string{
	"text/css",
	"application/javascript",
	"text/javascript",
	"application/json",
}

// NewHandler wraps the router in the request pipeline. main owns the
// *http.Server so it can shut down gracefully.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	r := router(opts)

	mw := httpmw.Stack{httpmw.SecurityHeaders}.
		If(opts.UseRecoverMW, httpmw.Recover(opts.Logger, opts.OnPanic)).
		Append(
			httpmw.RequestID(httpmw.RequestIDHeader),
			// resolved before the limiter and the logger read it
			httpmw.ClientIPWithOptions(opts.ClientIPOpts),
			opts.RateLimitMW,
			tracing,
		).
		If(opts.ContentInfo != nil, httpmw.ContentHeaders(opts.ContentInfo)).
		Append(
			httpmw.TraceResponseHeaders(httpmw.TraceIDHeader, httpmw.SpanIDHeader),
			opts.MetricsMW,
			// innermost so the logger sees trace and request IDs
			httpmw.WithLogger(opts.Logger),
		)
	return mw.Then(r)
}

func router(opts Options) *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		middleware.Compress(5, compressible...),
		httpmw.AnnotateHTTPRoute,
		httpmw.AccessLog(),
		httpmw.MaxBody(1024), // every route is GET/HEAD
	)

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}
	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}

	// the bundle handler owns its subtree, method checks included
	if opts.Bundles != nil {
		prefix := strings.TrimSuffix(opts.BundlePrefix, "/")
		if prefix == "" {
			prefix = "/bundles"
		}
		r.With(httpmw.Scope("bundlehttp")).Handle(prefix+"/*", opts.Bundles)
	}

	if opts.Fallback != nil {
		r.NotFound(opts.Fallback.ServeHTTP)
		r.MethodNotAllowed(opts.Fallback.ServeHTTP)
	}
	return r
}

// shouldTrace skips probes, browser housekeeping and source maps. Bundle
// requests are the workload and are left to the sampler.
func shouldTrace(r *http.Request) bool {
	switch p := r.URL.Path; p {
	case "/favicon.ico", "/robots.txt", "/-/healthy", "/-/ready":
		return false
	default:
		return strings.ToLower(path.Ext(p)) != ".map"
	}
}

func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithFilter(shouldTrace),
		// AnnotateHTTPRoute renames the span once chi has matched
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
}

// Start the public HTTP server on opts.Port (8080 when unset).
// Returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	srv := NewServer(fmt.Sprintf(":%d", port), NewHandler(opts))
	stop, err := Listener{Name: "http server", Network: "tcp4", Drain: 5 * time.Second}.Serve(ctx, opts.Logger, srv)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}
	return stop, nil
}
