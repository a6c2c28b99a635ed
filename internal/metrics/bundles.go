package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type bundleMetrics struct {
	cacheRequests  *prometheus.CounterVec
	buildDuration  *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec
	varianceErrors *prometheus.CounterVec
}

func newBundleMetrics() bundleMetrics {
	return bundleMetrics{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundle_cache_requests_total",
			Help: "Bundle artifact lookups by outcome (hit_l1, hit_l2, built, shared)",
		}, []string{"outcome"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bundle_build_duration_seconds",
			Help:    "Time to combine, filter and minify one bundle variant",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"bundle", "result"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundle_cache_store_errors_total",
			Help: "Shared cache store failures by operation",
		}, []string{"op"}),
		varianceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bundle_variance_errors_total",
			Help: "Requests whose cache variance could not be derived, by bundle",
		}, []string{"bundle"}),
	}
}

func (b bundleMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(b.cacheRequests, b.buildDuration, b.storeErrors, b.varianceErrors)
}

// CacheRequest counts one artifact lookup.
func (m *ServerMetrics) CacheRequest(outcome string) {
	m.bundles.cacheRequests.WithLabelValues(outcome).Inc()
}

// BuildDuration observes one bundle build, labeled ok or error.
func (m *ServerMetrics) BuildDuration(bundle string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.bundles.buildDuration.WithLabelValues(bundle, result).Observe(d.Seconds())
}

func (m *ServerMetrics) StoreError(op string) {
	m.bundles.storeErrors.WithLabelValues(op).Inc()
}

func (m *ServerMetrics) IncVarianceError(bundle string) {
	m.bundles.varianceErrors.WithLabelValues(bundle).Inc()
}
