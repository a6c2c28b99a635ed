package bundlecache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// DefaultSize is the L1 entry limit when none is configured.
const DefaultSize = 512

// Outcome reports how GetOrBuild satisfied a request.
type Outcome string

const (
	OutcomeHitL1  Outcome = "hit_l1"
	OutcomeHitL2  Outcome = "hit_l2"
	OutcomeBuilt  Outcome = "built"
	OutcomeShared Outcome = "shared"
)

// Store is an optional shared second level, typically Redis.
// A miss is (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) (*Artifact, bool, error)
	Set(ctx context.Context, key string, a *Artifact) error
}

// Metrics receives cache events. Implementations must be safe for concurrent use.
type Metrics interface {
	CacheRequest(outcome string)
	BuildDuration(bundle string, d time.Duration, err error)
	StoreError(op string)
}

type nopMetrics struct{}

func (nopMetrics) CacheRequest(string)                        {}
func (nopMetrics) BuildDuration(string, time.Duration, error) {}
func (nopMetrics) StoreError(string)                          {}

// BuildFunc produces the artifact for a key on a miss.
type BuildFunc func(ctx context.Context) (*Artifact, error)

type Options struct {
	// Size is the L1 entry limit, DefaultSize when <= 0
	Size    int
	Store   Store
	Metrics Metrics
	Logger  log.Logger
}

// Cache is a two level bundle cache with per-key population collapse.
type Cache struct {
	l1      *lru.Cache[string, *Artifact]
	store   Store
	metrics Metrics
	logger  log.Logger
	group   singleflight.Group
}

func New(opts Options) (*Cache, error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	l1, err := lru.New[string, *Artifact](size)
	if err != nil {
		return nil, xerrors.Wrap(err, "create l1 cache")
	}
	c := &Cache{
		l1:      l1,
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	if c.logger == nil {
		c.logger = log.Nop()
	}
	return c, nil
}

type result struct {
	a       *Artifact
	outcome Outcome
}

// GetOrBuild returns the cached artifact for key, building it at most once
// across concurrent callers. Build errors are returned and never cached.
// L2 failures are logged and treated as misses.
func (c *Cache) GetOrBuild(ctx context.Context, key Key, build BuildFunc) (*Artifact, Outcome, error) {
	k := key.String()
	if a, ok := c.l1.Get(k); ok {
		c.metrics.CacheRequest(string(OutcomeHitL1))
		return a, OutcomeHitL1, nil
	}

	leader := false
	v, err, _ := c.group.Do(k, func() (any, error) {
		leader = true
		return c.fill(ctx, key, k, build)
	})
	if err != nil {
		return nil, "", err
	}

	r := v.(result)
	if !leader {
		r.outcome = OutcomeShared
	}
	c.metrics.CacheRequest(string(r.outcome))
	return r.a, r.outcome, nil
}

func (c *Cache) fill(ctx context.Context, key Key, k string, build BuildFunc) (result, error) {
	// another flight may have finished between the L1 miss and now
	if a, ok := c.l1.Get(k); ok {
		return result{a, OutcomeHitL1}, nil
	}

	// waiters share this flight, so one caller going away must not fail it
	ctx = context.WithoutCancel(ctx)

	if c.store != nil {
		a, ok, err := c.store.Get(ctx, k)
		switch {
		case err != nil:
			c.metrics.StoreError("get")
			log.FromContextOr(ctx, c.logger).Warn(ctx, "bundle cache store get failed", "key", k, "error", err)
		case ok && a != nil:
			c.l1.Add(k, a)
			return result{a, OutcomeHitL2}, nil
		}
	}

	start := time.Now()
	a, err := build(ctx)
	c.metrics.BuildDuration(key.Bundle, time.Since(start), err)
	if err != nil {
		return result{}, err
	}
	if a == nil {
		return result{}, xerrors.Newf("build for %s returned no artifact", k)
	}
	c.l1.Add(k, a)

	if c.store != nil {
		if err := c.store.Set(ctx, k, a); err != nil {
			c.metrics.StoreError("set")
			log.FromContextOr(ctx, c.logger).Warn(ctx, "bundle cache store set failed", "key", k, "error", err)
		}
	}
	return result{a, OutcomeBuilt}, nil
}

// Purge drops every L1 entry. L2 entries for old versions become unreachable
// because versions are part of the key.
func (c *Cache) Purge() { c.l1.Purge() }

// Len is the number of L1 entries.
func (c *Cache) Len() int { return c.l1.Len() }
