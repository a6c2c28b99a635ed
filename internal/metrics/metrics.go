package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/version"
)

// ServerMetrics owns a private registry. Labels are bounded: routes not
// paths, bundle names not variance keys.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// request metrics read directly by Middleware
	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec

	process processMetrics
	content contentMetrics
	bundles bundleMetrics
}

// processMetrics covers the server itself rather than any one request.
type processMetrics struct {
	buildInfo         *prometheus.GaugeVec
	panics            prometheus.Counter
	rateLimitDenied   prometheus.Counter
	rateLimitCapacity prometheus.Counter
	profilingActive   prometheus.Gauge
}

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// minified bundles are rarely under 1KiB or over a few MiB
	sizeBuckets = prometheus.ExponentialBuckets(256, 4, 10)
)

// New returns metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		reg: reg,
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: latencyBuckets,
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: sizeBuckets,
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "5xx responses by method and route",
		}, []string{"method", "route"}),
		process: processMetrics{
			buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "build_info",
				Help: "Build metadata, value is always 1",
			}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
			panics: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "http_panic_total",
				Help: "Recovered handler panics",
			}),
			rateLimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "http_requests_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			}),
			rateLimitCapacity: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "http_requests_rate_limited_capacity_total",
				Help: "Times the rate limiter ran out of client slots",
			}),
			profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "profiling_active",
				Help: "1 while continuous profiling is running",
			}),
		},
		content: newContentMetrics(),
		bundles: newBundleMetrics(),
	}

	reg.MustRegister(m.inflight, m.reqTotal, m.reqDur, m.respBytes, m.errorsTotal)
	m.process.register(reg)
	m.content.register(reg)
	m.bundles.register(reg)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

func (p processMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(p.buildInfo, p.panics, p.rateLimitDenied, p.rateLimitCapacity, p.profilingActive)
}

// Handler serves the registry, OpenMetrics when the scraper asks for it.
func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) IncHttpPanic()         { m.process.panics.Inc() }
func (m *ServerMetrics) IncRateLimitDenied()   { m.process.rateLimitDenied.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.process.rateLimitCapacity.Inc() }

func (m *ServerMetrics) SetProfilingActive(active bool) {
	m.process.profilingActive.Set(boolGauge(active))
}

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.process.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
