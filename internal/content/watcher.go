package content

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultStaleThreshold = 30 * time.Minute

	// maxBackoff caps the poll delay while SSM keeps failing.
	maxBackoff = 5 * time.Minute
	// backoffJitter spreads retries from instances that failed together.
	backoffJitter = 0.2
)

// pollResult is the outcome of one poll cycle.
type pollResult int

const (
	pollNoChange pollResult = iota
	pollSwapped
	pollSSMError // the only result that triggers backoff
	pollLoadError
	pollValidationError
)

func (r pollResult) String() string {
	switch r {
	case pollNoChange:
		return "no_change"
	case pollSwapped:
		return "swapped"
	case pollSSMError:
		return "ssm"
	case pollLoadError:
		return "load"
	case pollValidationError:
		return "validation"
	}
	return "unknown"
}

// BundleFetcher is what the Watcher needs from a Loader.
type BundleFetcher interface {
	FetchCurrentBundleHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Snapshot, error)
}

// WatcherMetrics is implemented by the metrics package.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(errType string)
	ObserveReleaseLoadDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

type nopWatcherMetrics struct{}

func (nopWatcherMetrics) IncWatcherPolls()                   {}
func (nopWatcherMetrics) IncWatcherSwaps()                   {}
func (nopWatcherMetrics) IncWatcherError(string)             {}
func (nopWatcherMetrics) ObserveReleaseLoadDuration(float64) {}
func (nopWatcherMetrics) SetWatcherLastSuccess(float64)      {}
func (nopWatcherMetrics) SetWatcherStale(bool)               {}

type WatcherOptions struct {
	Logger       log.Logger
	Loader       BundleFetcher
	Manager      *Manager
	PollInterval time.Duration

	// Prepare checks and compiles a new release before it is swapped in.
	Prepare PrepareOptions

	// OnSwap runs on the poll goroutine after each swap, typically to purge
	// bundle caches. A panic in it is logged and does not undo the swap.
	OnSwap func(snap *Snapshot)

	Metrics WatcherMetrics

	// StaleThreshold is how long SSM may fail before the content is reported
	// stale. Zero means DefaultStaleThreshold.
	StaleThreshold time.Duration
}

// Watcher polls SSM for the active release hash and swaps new releases into
// the Manager. Releases live in memory, so an old snapshot and its catalog
// are freed once the last request holding them returns.
type Watcher struct {
	loader   BundleFetcher
	manager  *Manager
	logger   log.Logger
	interval time.Duration
	prepare  PrepareOptions
	onSwap   func(snap *Snapshot)
	metrics  WatcherMetrics
	backoff  *backoff.ExponentialBackOff

	currentHash     string
	consecutiveErrs int

	staleThreshold time.Duration
	lastSuccessAt  time.Time
	stale          bool

	polls, swaps int64
}

func NewWatcher(opts WatcherOptions) *Watcher {
	w := &Watcher{
		loader:         opts.Loader,
		manager:        opts.Manager,
		logger:         opts.Logger,
		interval:       opts.PollInterval,
		prepare:        opts.Prepare,
		onSwap:         opts.OnSwap,
		metrics:        opts.Metrics,
		staleThreshold: opts.StaleThreshold,
		lastSuccessAt:  time.Now(),
	}
	if w.logger == nil {
		w.logger = log.Nop()
	}
	if w.metrics == nil {
		w.metrics = nopWatcherMetrics{}
	}
	if w.interval <= 0 {
		w.interval = DefaultPollInterval
	}
	if w.staleThreshold <= 0 {
		w.staleThreshold = DefaultStaleThreshold
	}
	w.backoff = newBackoff(w.interval)

	// whatever was loaded at startup is current, so the first poll does not
	// download it again
	if snap, ok := opts.Manager.Get(); ok {
		w.currentHash = snap.Meta.SHA256
	}
	return w
}

// newBackoff doubles from twice the poll interval up to maxBackoff.
func newBackoff(interval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * interval
	b.Multiplier = 2
	b.MaxInterval = maxBackoff
	b.RandomizationFactor = backoffJitter
	b.Reset()
	return b
}

// Run polls until ctx is done and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "content watcher starting",
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content watcher stopping", "reason", ctx.Err(), "polls", w.polls, "swaps", w.swaps)
			return ctx.Err()
		case <-timer.C:
			result := w.checkOnce(ctx)
			timer.Reset(w.nextDelay(ctx, result))
			w.trackStaleness(ctx, result)
		}
	}
}

// nextDelay backs off while SSM fails and returns to the poll interval on
// the first cycle that reaches it again.
func (w *Watcher) nextDelay(ctx context.Context, result pollResult) time.Duration {
	if result == pollSSMError {
		w.consecutiveErrs++
		d := w.backoff.NextBackOff()
		w.logger.Warn(ctx, "content watcher backing off", "consecutive_errors", w.consecutiveErrs, "next_poll_in", d.String())
		return d
	}
	if w.consecutiveErrs > 0 {
		w.logger.Info(ctx, "content watcher recovered", "had_consecutive_errors", w.consecutiveErrs)
		w.consecutiveErrs = 0
		w.backoff.Reset()
	}
	return w.interval
}

// trackStaleness logs once on entering and once on leaving the stale state.
func (w *Watcher) trackStaleness(ctx context.Context, result pollResult) {
	if result != pollSSMError {
		if w.stale {
			w.logger.Info(ctx, "content watcher staleness recovered")
			w.stale = false
			w.metrics.SetWatcherStale(false)
		}
		return
	}
	if since := time.Since(w.lastSuccessAt); since > w.staleThreshold && !w.stale {
		w.logger.Error(ctx, xerrors.Newf("last successful SSM poll was %s ago", since.Truncate(time.Second)),
			"content is stale, unable to verify freshness")
		w.stale = true
		w.metrics.SetWatcherStale(true)
	}
}

// checkOnce runs one poll, compare and swap cycle.
func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.polls++
	w.metrics.IncWatcherPolls()

	hash, err := w.loader.FetchCurrentBundleHash(ctx)
	if err != nil {
		return w.failed(ctx, pollSSMError, err, "content watcher SSM poll failed")
	}
	w.lastSuccessAt = time.Now()
	w.metrics.SetWatcherLastSuccess(float64(w.lastSuccessAt.Unix()))

	if cryptoutil.HashEqual(hash, w.currentHash) {
		return pollNoChange
	}
	L := w.logger.With("new_hash", truncHash(hash), "current_hash", truncHash(w.currentHash))
	L.Info(ctx, "content watcher found a new release")

	start := time.Now()
	snap, err := w.loader.LoadHash(ctx, hash)
	w.metrics.ObserveReleaseLoadDuration(time.Since(start).Seconds())
	if err != nil {
		return w.failed(ctx, pollLoadError, err, "content watcher failed to load release", "hash", truncHash(hash))
	}
	if err := Prepare(snap, w.prepare); err != nil {
		return w.failed(ctx, pollValidationError, err, "new release failed validation, keeping current content", "hash", truncHash(hash))
	}

	prev := w.manager.Set(*snap)
	w.currentHash = hash
	w.swaps++
	w.metrics.IncWatcherSwaps()
	var prevVersion string
	if prev != nil {
		prevVersion = prev.Meta.Version
	}
	L.Info(ctx, "content release swapped", "version", snap.Meta.Version, "previous_version", prevVersion,
		"bundles", snap.Catalog.Len(), "total_swaps", w.swaps)

	if w.onSwap != nil {
		active, _ := w.manager.Get()
		w.runOnSwap(ctx, active)
	}
	return pollSwapped
}

func (w *Watcher) failed(ctx context.Context, r pollResult, err error, msg string, kv ...any) pollResult {
	w.logger.Error(ctx, err, msg, kv...)
	w.metrics.IncWatcherError(r.String())
	return r
}

func (w *Watcher) runOnSwap(ctx context.Context, snap *Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, xerrors.Newf("OnSwap panic: %v", r), "content watcher OnSwap panicked, continuing",
				"hash", truncHash(snap.Meta.SHA256))
		}
	}()
	w.onSwap(snap)
}

// truncHash shortens a hash for logs.
func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
