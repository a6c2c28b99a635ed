package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
)

type App struct {
	LogJSON              bool
	LogConsole           bool
	LogLevel             string
	HTTPPort             int
	AdminPort            int
	ShutdownDrain        time.Duration
	EnablePprof          bool
	EnablePyroscope      bool
	EnableTracing        bool
	EnableContentUpdates bool
	PyroServer           string
	PyroTenantID         string
	OTLPEndpoint         string
	TraceSample          float64
	StacktraceLevel      string
	IncludeErrorLinks    bool
	MaxErrorLinks        int

	// content source: S3 releases when updates are enabled, else ContentDir, else the embedded seed
	ContentDir           string
	ContentSSMParam      string
	ContentS3Bucket      string
	ContentS3Prefix      string
	ContentSigningKeyARN string
	ContentPollInterval  time.Duration

	// bundle serving
	BundlePrefix    string
	AssetPrefix     string
	MaxResourceSize int64
	MaxBundleSize   int64
	CacheSize       int
	RedisAddr       string
	RedisNamespace  string
	RedisTTL        time.Duration

	RateLimitRPS         float64
	RateLimitBurst       int
	RateLimitMaxVisitors int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.BoolVar(&c.LogConsole, "log-console", false, "Human readable console logs, overrides log-json")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.DurationVar(&c.ShutdownDrain, "shutdown-drain", 60*time.Second, "how long readiness fails before listeners close on shutdown")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.EnableContentUpdates, "enable-content-updates", false, "Enable loading and refreshing content releases from S3/SSM")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.StringVar(&c.ContentDir, "content-dir", "", "serve content from this local directory instead of the embedded seed")
	fs.StringVar(&c.ContentSSMParam, "content-ssm-param", "", "ssm parameter name holding the active content release hash")
	fs.StringVar(&c.ContentS3Bucket, "content-s3-bucket", "", "s3 bucket holding content release archives")
	fs.StringVar(&c.ContentS3Prefix, "content-s3-prefix", "releases", "s3 prefix (key) of content release archives")
	fs.StringVar(&c.ContentSigningKeyARN, "content-signing-key-arn", "", "KMS key ARN for content release signature verification")
	fs.DurationVar(&c.ContentPollInterval, "content-poll-interval", 30*time.Second, "how often to check ssm for a new content release")
	fs.StringVar(&c.BundlePrefix, "bundle-prefix", "/bundles", "URL path prefix bundles are served under")
	fs.StringVar(&c.AssetPrefix, "asset-prefix", "", "prefix for relative url() references rewritten by the css-urls filter")
	fs.Int64Var(&c.MaxResourceSize, "max-resource-size", 2<<20, "max bytes of a single bundle resource")
	fs.Int64Var(&c.MaxBundleSize, "max-bundle-size", 8<<20, "max bytes of a combined bundle")
	fs.IntVar(&c.CacheSize, "cache-size", 1024, "in-process bundle cache entries")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis host:port for the shared bundle cache, empty disables it")
	fs.StringVar(&c.RedisNamespace, "redis-namespace", "bundler", "key prefix for the shared bundle cache")
	fs.DurationVar(&c.RedisTTL, "redis-ttl", 24*time.Hour, "lifetime of shared bundle cache entries")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-ip request refill rate on the bundle listener")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 60, "per-ip request burst on the bundle listener")
	fs.IntVar(&c.RateLimitMaxVisitors, "rate-limit-max-visitors", 100000, "max ips tracked by the rate limiter, 0 is unlimited")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// problems collects validation failures so every bad field is reported at once.
type problems []error

func (p *problems) addf(format string, args ...any) { *p = append(*p, fmt.Errorf(format, args...)) }

func (p *problems) port(name string, v int) {
	if v < 1 || v > 65535 {
		p.addf("invalid %s %d (must be 1..65535)", name, v)
	}
}

func (p *problems) hostPort(name, v string) {
	if _, _, err := net.SplitHostPort(v); err != nil {
		p.addf("%s must be host:port (got %q): %v", name, v, err)
	}
}

func (p *problems) required(when string, fields map[string]string) {
	for name, v := range fields {
		if v == "" {
			p.addf("%s is required when %s", name, when)
		}
	}
}

// Validate checks every field and returns all problems joined, or nil.
func Validate(c App) error {
	var p problems
	p.server(c)
	p.observability(c)
	p.content(c)
	p.bundles(c)
	if len(p) == 0 {
		return nil
	}
	return errors.Join(p...)
}

func (p *problems) server(c App) {
	p.port("HTTP_PORT", c.HTTPPort)
	p.port("ADMIN_PORT", c.AdminPort)
	if c.AdminPort == c.HTTPPort {
		p.addf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		p.addf("RATE_LIMIT_RPS must be > 0 and RATE_LIMIT_BURST >= 1 (got %.2f, %d)", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.ShutdownDrain < 0 || c.ShutdownDrain > 5*time.Minute {
		p.addf("SHUTDOWN_DRAIN must be 0..5m (got %s)", c.ShutdownDrain)
	}
	if c.RateLimitMaxVisitors < 0 {
		p.addf("RATE_LIMIT_MAX_VISITORS must be >= 0 (got %d)", c.RateLimitMaxVisitors)
	}
}

func (p *problems) observability(c App) {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		p.addf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			p.addf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err)
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		p.addf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		p.addf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}

	if c.EnablePyroscope {
		p.required("ENABLE_PYROSCOPE=true", map[string]string{"PYRO_SERVER": c.PyroServer, "PYRO_TENANT": c.PyroTenantID})
		if c.PyroServer != "" {
			if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
				p.addf("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
			}
		}
	}
	// the grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		p.required("ENABLE_TRACING=true", map[string]string{"OTLP_ENDPOINT": c.OTLPEndpoint})
		if c.OTLPEndpoint != "" {
			p.hostPort("OTLP_ENDPOINT", c.OTLPEndpoint)
		}
	}
}

func (p *problems) content(c App) {
	if !c.EnableContentUpdates {
		return
	}
	// releases pulled from S3 are only served when signed, so the key is required too
	p.required("ENABLE_CONTENT_UPDATES=true", map[string]string{
		"CONTENT_SSM_PARAM":       c.ContentSSMParam,
		"CONTENT_S3_BUCKET":       c.ContentS3Bucket,
		"CONTENT_S3_PREFIX":       c.ContentS3Prefix,
		"CONTENT_SIGNING_KEY_ARN": c.ContentSigningKeyARN,
	})
	if c.ContentPollInterval < 5*time.Second {
		p.addf("CONTENT_POLL_INTERVAL must be at least 5s (got %s)", c.ContentPollInterval)
	}
	if c.ContentDir != "" {
		p.addf("CONTENT_DIR and ENABLE_CONTENT_UPDATES are mutually exclusive")
	}
}

func (p *problems) bundles(c App) {
	switch {
	case !strings.HasPrefix(c.BundlePrefix, "/"):
		p.addf("BUNDLE_PREFIX must start with / (got %q)", c.BundlePrefix)
	case c.BundlePrefix == "/" || strings.HasSuffix(c.BundlePrefix, "/"):
		p.addf("BUNDLE_PREFIX must not end with / (got %q)", c.BundlePrefix)
	case c.BundlePrefix == "/api" || strings.HasPrefix(c.BundlePrefix, "/api/"):
		p.addf("BUNDLE_PREFIX must not shadow /api (got %q)", c.BundlePrefix)
	}
	if c.MaxResourceSize < 1 || c.MaxBundleSize < c.MaxResourceSize {
		p.addf("MAX_BUNDLE_SIZE (%d) must be >= MAX_RESOURCE_SIZE (%d) > 0", c.MaxBundleSize, c.MaxResourceSize)
	}
	if c.CacheSize < 1 {
		p.addf("CACHE_SIZE must be >= 1 (got %d)", c.CacheSize)
	}
	if c.RedisAddr != "" {
		p.hostPort("REDIS_ADDR", c.RedisAddr)
		if c.RedisTTL < time.Minute {
			p.addf("REDIS_TTL must be at least 1m (got %s)", c.RedisTTL)
		}
	}
}
