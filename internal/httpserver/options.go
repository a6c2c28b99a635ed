package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/health"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	Health       health.Probe
	Readiness    health.Probe
	ContentInfo  httpmw.ContentInfo // For X-Content-Release and X-Content-Hash headers

	// APIRoutes registers JSON endpoints on the root router
	APIRoutes func(chi.Router)

	// Bundles serves everything under BundlePrefix
	BundlePrefix string
	Bundles      http.Handler

	// Fallback answers unmatched routes and methods, chi defaults when nil
	Fallback http.Handler
}
