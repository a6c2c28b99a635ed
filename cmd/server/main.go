package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundleapi"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundlecache"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundlehttp"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/catalog"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/combiner"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/content"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/health"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/pipeline"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/urlgen"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/webassets"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/prof"
	v "github.com/keithlinneman/linnemanlabs-bundler/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix BUNDLER_ and validate
	cfg.FillFromEnv(flag.CommandLine, "BUNDLER_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		BuildId:           vi.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		ConsoleFormat:     conf.LogConsole,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"shutdown_drain", conf.ShutdownDrain.String(),
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_content_updates", conf.EnableContentUpdates,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"trace_sample", conf.TraceSample,
		"content_dir", conf.ContentDir,
		"content_ssm_param", conf.ContentSSMParam,
		"content_s3_bucket", conf.ContentS3Bucket,
		"content_s3_prefix", conf.ContentS3Prefix,
		"content_poll_interval", conf.ContentPollInterval.String(),
		"bundle_prefix", conf.BundlePrefix,
		"cache_size", conf.CacheSize,
		"redis_addr", conf.RedisAddr,
	)

	// Setup metrics first so profiling and content loading can report into it
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// every content source goes through the same checks and catalog compile
	stages := pipeline.DefaultStages(conf.AssetPrefix)
	prepareOpts := content.PrepareOptions{
		MinFiles: 2, // manifest plus at least one resource
		Compile: func(fsys fs.FS) (*catalog.Catalog, error) {
			return catalog.Compile(fsys, catalog.Options{Stages: stages})
		},
	}

	// setup content manager that will manage what content we serve
	contentMgr := content.NewManager()

	var contentLoader *content.Loader
	if conf.EnableContentUpdates {
		contentLoader, err = newReleaseLoader(ctx, L, conf)
		if err != nil {
			L.Error(ctx, err, "failed to create content loader")
			os.Exit(1)
		}
		// releases published to S3 must carry release.json
		prepareOpts.RequireRelease = true
	}

	snap, err := initialSnapshot(ctx, conf, contentLoader, prepareOpts)
	if err != nil && contentLoader != nil {
		// fall back to the seed so the listener can come up, the watcher keeps trying
		L.Error(ctx, err, "failed to load content release, falling back to seed")
		seedOpts := prepareOpts
		seedOpts.RequireRelease = false
		snap, err = seedSnapshot(seedOpts)
	}
	if err != nil {
		L.Error(ctx, err, "failed to load initial content")
		os.Exit(1)
	}
	contentMgr.Set(*snap)
	L.Info(ctx, "loaded initial content",
		"source", snap.Meta.Source,
		"content_version", snap.Meta.Version,
		"content_hash", snap.Meta.SHA256,
		"bundles", snap.Catalog.Len(),
	)
	recordContent(m, contentMgr)

	// setup bundle cache, L1 in process and optionally L2 in redis
	var store bundlecache.Store
	if conf.RedisAddr != "" {
		rdb, err := bundlecache.DialRedis(ctx, conf.RedisAddr)
		if err != nil {
			// bundles are rebuilt on demand, a missing L2 only costs CPU
			L.Error(ctx, err, "redis unavailable, continuing without shared bundle cache", "redis_addr", conf.RedisAddr)
		} else {
			rs, err := bundlecache.NewRedisStore(bundlecache.RedisOptions{
				Client:      rdb,
				Namespace:   conf.RedisNamespace,
				TTL:         conf.RedisTTL,
				CloseClient: true,
			})
			if err != nil {
				L.Error(ctx, err, "failed to create redis bundle store")
				os.Exit(1)
			}
			defer func() {
				if err := rs.Close(); err != nil {
					L.Error(context.Background(), err, "redis close")
				}
			}()
			store = rs
		}
	}
	cache, err := bundlecache.New(bundlecache.Options{
		Size:    conf.CacheSize,
		Store:   store,
		Metrics: m,
		Logger:  L.With("component", "bundlecache"),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create bundle cache")
		os.Exit(1)
	}

	if contentLoader != nil {
		// setup content watcher to poll for new releases, validate and swap into manager
		watcher := content.NewWatcher(content.WatcherOptions{
			Logger:       L,
			Loader:       contentLoader,
			Manager:      contentMgr,
			PollInterval: conf.ContentPollInterval,
			Prepare:      prepareOpts,
			Metrics:      m,
			OnSwap: func(*content.Snapshot) {
				// L2 keys carry the bundle version, only L1 needs flushing
				cache.Purge()
				recordContent(m, contentMgr)
			},
		})
		// Run the watcher in a separate goroutine
		go func() { _ = watcher.Run(ctx) }()
	}

	urls := urlgen.New(conf.BundlePrefix)

	bundleHandler, err := bundlehttp.New(bundlehttp.Options{
		Logger:  L.With("component", "bundlehttp"),
		Content: contentMgr,
		URLs:    urls,
		Cache:   cache,
		Builder: combiner.New(combiner.Options{
			MaxResourceSize: conf.MaxResourceSize,
			MaxBundleSize:   conf.MaxBundleSize,
		}),
		Metrics: m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create bundle handler")
		os.Exit(1)
	}

	// setup bundle discovery API
	bundleAPI := bundleapi.NewAPI(contentMgr, urls, L.With("component", "bundleapi"))

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// setup readiness checks, both shutdown gate and content readiness must pass.
	// checks that we have a compiled catalog to serve
	readiness := health.All(
		health.Named("shutdown", gate.Probe()),
		health.Named("content", health.CheckFunc(func(context.Context) error {
			return contentMgr.ReadyErr()
		})),
	)

	// Setup rate limiter middleware for the public listener
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
		ratelimit.WithMaxVisitors(conf.RateLimitMaxVisitors),
		// load balancer probes share a few source addresses
		ratelimit.WithExempt(func(r *http.Request) bool {
			return r.URL.Path == "/-/healthy" || r.URL.Path == "/-/ready"
		}),
		ratelimit.WithOnDenied(func(string) {
			m.IncRateLimitDenied()
		}),
		// logged once per client until its bucket is evicted
		ratelimit.WithOnFirstDenied(func(client string) {
			L.Warn(ctx, "rate limit triggered", "client", client)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new clients until some are evicted")
		}),
	)

	// start public http server
	appHTTPStop, err := httpserver.Start(
		ctx,
		httpserver.Options{
			Port:         conf.HTTPPort,
			Health:       health.Fixed(true, ""),
			Readiness:    readiness,
			APIRoutes:    bundleAPI.RegisterRoutes,
			BundlePrefix: conf.BundlePrefix,
			Bundles:      bundleHandler,
			UseRecoverMW: true,
			OnPanic:      m.IncHttpPanic,
			MetricsMW:    m.Middleware,
			RateLimitMW:  limiter.Middleware,
			Logger:       L,
			ContentInfo:  contentMgr, // Pass content manager for headers
		},
	)
	if err != nil {
		L.Error(ctx, err, "failed to start http listener port")
		os.Exit(1)
	}
	defer func() { _ = appHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks, pprof and cache admin
	// sg restricts inbound to internal monitoring infrastructure
	// we reject connections from public ips and requests with x-forwarded set in middleware
	// to prevent accidental exposure if sg is misconfigured or load balancer ever sends traffic there
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Cache:        cache,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := sdNotify("READY=1"); err != nil {
		// systemd kills the unit after its start timeout if this never lands
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	// readiness fails from here so load balancers stop routing to us
	gate.Set("shutdown signal received")
	_ = sdNotify("STOPPING=1")
	drain(L, conf.ShutdownDrain)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := appHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// newReleaseLoader builds the S3/SSM release loader, verifying release
// signatures with KMS when a signing key is configured.
func newReleaseLoader(ctx context.Context, L log.Logger, conf cfg.App) (*content.Loader, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}

	var verifier content.SignatureVerifier
	if conf.ContentSigningKeyARN != "" {
		verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), conf.ContentSigningKeyARN)
	}

	return content.NewLoader(ctx, content.LoaderOptions{
		Logger:    L,
		SSMParam:  conf.ContentSSMParam,
		S3Bucket:  conf.ContentS3Bucket,
		S3Prefix:  conf.ContentS3Prefix,
		S3Client:  s3.NewFromConfig(awsCfg),
		SSMClient: ssm.NewFromConfig(awsCfg),
		Verifier:  verifier,
	})
}

// initialSnapshot loads the startup content from the configured source and prepares it.
func initialSnapshot(ctx context.Context, conf cfg.App, loader *content.Loader, opts content.PrepareOptions) (*content.Snapshot, error) {
	var (
		snap *content.Snapshot
		err  error
	)
	switch {
	case loader != nil:
		snap, err = loader.Load(ctx)
	case conf.ContentDir != "":
		snap, err = content.LoadDir(conf.ContentDir)
	default:
		return seedSnapshot(opts)
	}
	if err != nil {
		return nil, err
	}
	if err := content.Prepare(snap, opts); err != nil {
		return nil, err
	}
	return snap, nil
}

func seedSnapshot(opts content.PrepareOptions) (*content.Snapshot, error) {
	seedFS, ok := webassets.SeedFS()
	if !ok {
		return nil, xerrors.New("embedded seed content has no bundle manifest")
	}
	snap, err := content.SeedSnapshot(seedFS)
	if err != nil {
		return nil, err
	}
	if err := content.Prepare(snap, opts); err != nil {
		return nil, xerrors.Wrap(err, "prepare seed content")
	}
	return snap, nil
}

func recordContent(m *metrics.ServerMetrics, mgr *content.Manager) {
	m.SetContentSource(string(mgr.Source()))
	m.SetContentRelease(mgr.ContentHash(), mgr.ContentVersion())
	if t := mgr.LoadedAt(); !t.IsZero() {
		m.SetContentLoadedTimestamp(t)
	}
}
