package ratelimit

import (
	"context"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/httpmw"
)

// Defaults used when the matching option is not given.
const (
	DefaultPerSecond   = 10
	DefaultBurst       = 30
	DefaultTTL         = 5 * time.Minute
	DefaultMaxVisitors = 100_000
	DefaultIPv6Prefix  = 64
)

// visitor is one client's bucket.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// warned is set on the first denial and cleared with the entry
	warned bool
}

// IPLimiter holds a token bucket per client and evicts idle clients in the
// background.
type IPLimiter struct {
	mu         sync.Mutex
	visitors   map[string]*visitor
	atCapacity bool

	perSecond   rate.Limit
	burst       int
	ttl         time.Duration
	maxVisitors int
	v6Bits      int
	exempt      func(*http.Request) bool
	now         func() time.Time

	onFirstDenied func(key string)
	onDenied      func(key string)
	onCapacity    func()
}

type Option func(*IPLimiter)

// WithRate sets the refill rate and bucket size: WithRate(10, 50) allows a
// burst of 50 requests, then 10 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(l *IPLimiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL sets how long an idle client keeps its bucket.
func WithTTL(d time.Duration) Option {
	return func(l *IPLimiter) { l.ttl = d }
}

// WithMaxVisitors bounds the number of tracked clients, 0 disables the bound.
// While full, unknown clients are rejected and known ones keep their bucket.
func WithMaxVisitors(n int) Option {
	return func(l *IPLimiter) { l.maxVisitors = n }
}

// WithIPv6Prefix groups IPv6 clients by prefix, since a single host usually
// controls a whole /64. 128 keys on the full address.
func WithIPv6Prefix(bits int) Option {
	return func(l *IPLimiter) { l.v6Bits = bits }
}

// WithExempt skips limiting for requests fn matches, such as load balancer
// health checks.
func WithExempt(fn func(*http.Request) bool) Option {
	return func(l *IPLimiter) { l.exempt = fn }
}

// WithOnFirstDenied is called once per client the first time it is denied,
// and again only after its entry has been evicted. Meant for logging.
func WithOnFirstDenied(fn func(key string)) Option {
	return func(l *IPLimiter) { l.onFirstDenied = fn }
}

// WithOnDenied is called on every denied request. Meant for counters.
func WithOnDenied(fn func(key string)) Option {
	return func(l *IPLimiter) { l.onDenied = fn }
}

// WithOnCapacity is called when the visitor map fills up, and again only
// after a sweep has freed room.
func WithOnCapacity(fn func()) Option {
	return func(l *IPLimiter) { l.onCapacity = fn }
}

func withClock(now func() time.Time) Option {
	return func(l *IPLimiter) { l.now = now }
}

// New builds a limiter and starts its sweeper, which stops with ctx.
func New(ctx context.Context, opts ...Option) *IPLimiter {
	l := &IPLimiter{
		visitors:    make(map[string]*visitor),
		perSecond:   DefaultPerSecond,
		burst:       DefaultBurst,
		ttl:         DefaultTTL,
		maxVisitors: DefaultMaxVisitors,
		v6Bits:      DefaultIPv6Prefix,
		now:         time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	go l.run(ctx)
	return l
}

// key maps a client address onto its bucket key. Unparseable input is used
// verbatim so it still gets a bucket.
func (l *IPLimiter) key(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	addr = addr.Unmap()
	if addr.Is6() && l.v6Bits > 0 && l.v6Bits < 128 {
		if p, err := addr.WithZone("").Prefix(l.v6Bits); err == nil {
			return p.String()
		}
	}
	return addr.String()
}

// allow reports whether the client keyed by key may proceed. Hooks run
// after the lock is released.
func (l *IPLimiter) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	v, known := l.visitors[key]
	if !known && l.maxVisitors > 0 && len(l.visitors) >= l.maxVisitors {
		firstFull := !l.atCapacity
		l.atCapacity = true
		l.mu.Unlock()

		if firstFull && l.onCapacity != nil {
			l.onCapacity()
		}
		l.denied(key, false)
		return false
	}
	if !known {
		v = &visitor{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	ok := v.limiter.AllowN(now, 1)
	first := !ok && !v.warned
	if first {
		v.warned = true
	}
	l.mu.Unlock()

	if !ok {
		l.denied(key, first)
	}
	return ok
}

func (l *IPLimiter) denied(key string, first bool) {
	if first && l.onFirstDenied != nil {
		l.onFirstDenied(key)
	}
	if l.onDenied != nil {
		l.onDenied(key)
	}
}

// sweep evicts clients idle longer than the ttl and reopens the map once
// there is room.
func (l *IPLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}
	if l.maxVisitors <= 0 || len(l.visitors) < l.maxVisitors {
		l.atCapacity = false
	}
}

// run sweeps every ttl/2 so entries outlive the ttl by at most half of it.
func (l *IPLimiter) run(ctx context.Context) {
	t := time.NewTicker(l.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.sweep(l.now())
		}
	}
}

// Len returns the number of tracked clients.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Middleware answers 429 once the client's bucket is empty. The client is
// the address resolved by httpmw.ClientIP.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.exempt != nil && l.exempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !l.allow(l.key(httpmw.ClientIPFromContext(r.Context()))) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			// no remaining budget or refill time, nothing to tune an attack against
			_, _ = w.Write([]byte(`{"error":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
