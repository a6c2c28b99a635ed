package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// contentMetrics tracks which release is live and how the watcher that
// swaps releases is doing.
type contentMetrics struct {
	source      *prometheus.GaugeVec
	release     *prometheus.GaugeVec
	loadedAt    prometheus.Gauge
	polls       prometheus.Counter
	swaps       prometheus.Counter
	errors      *prometheus.CounterVec
	loadSeconds prometheus.Histogram
	lastSuccess prometheus.Gauge
	stale       prometheus.Gauge
}

func newContentMetrics() contentMetrics {
	return contentMetrics{
		source: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_source_info",
			Help: "Where the active content came from, value is always 1",
		}, []string{"source"}),
		release: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_release_info",
			Help: "Active content release, value is always 1",
		}, []string{"sha256", "version"}),
		loadedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_loaded_timestamp_seconds",
			Help: "Unix time the active release was loaded",
		}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_watcher_polls_total",
			Help: "Watcher poll cycles",
		}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_watcher_swaps_total",
			Help: "Releases swapped in by the watcher",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_watcher_errors_total",
			Help: "Watcher errors by type",
		}, []string{"type"}),
		loadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "content_release_load_duration_seconds",
			Help:    "Time to fetch, verify, extract and compile a release",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_watcher_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll",
		}),
		stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_watcher_stale",
			Help: "1 while the watcher has not succeeded within its staleness window",
		}),
	}
}

func (c contentMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(c.source, c.release, c.loadedAt, c.polls, c.swaps, c.errors, c.loadSeconds, c.lastSuccess, c.stale)
}

// SetContentSource and SetContentRelease replace the previous label set so
// only the active release is reported.
func (m *ServerMetrics) SetContentSource(source string) {
	m.content.source.Reset()
	m.content.source.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetContentRelease(sha256, version string) {
	m.content.release.Reset()
	m.content.release.WithLabelValues(sha256, version).Set(1)
}

func (m *ServerMetrics) SetContentLoadedTimestamp(t time.Time) {
	m.content.loadedAt.Set(float64(t.Unix()))
}

func (m *ServerMetrics) IncWatcherPolls() { m.content.polls.Inc() }
func (m *ServerMetrics) IncWatcherSwaps() { m.content.swaps.Inc() }
func (m *ServerMetrics) IncWatcherError(errType string) {
	m.content.errors.WithLabelValues(errType).Inc()
}
func (m *ServerMetrics) ObserveReleaseLoadDuration(sec float64) { m.content.loadSeconds.Observe(sec) }
func (m *ServerMetrics) SetWatcherLastSuccess(unixSec float64)  { m.content.lastSuccess.Set(unixSec) }
func (m *ServerMetrics) SetWatcherStale(stale bool)             { m.content.stale.Set(boolGauge(stale)) }
