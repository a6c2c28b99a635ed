// Package prof runs the pyroscope continuous profiling agent.
package prof

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

type Options struct {
	Enabled              bool
	AppName              string
	ServerAddress        string
	TenantID             string
	Tags                 map[string]string
	ProfileMutexFraction int
	BlockProfileRate     int

	// OnActive is called with true once the agent starts and false when it stops
	OnActive func(active bool)
}

// bundle builds are allocation heavy, so every alloc and inuse profile is collected
var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

// agentLogger routes the agent's own messages into our logger. Info is
// demoted to debug since the agent reports every upload.
type agentLogger struct {
	ctx context.Context
	L   log.Logger
}

func (a agentLogger) Infof(f string, args ...any)  { a.L.Debug(a.ctx, fmt.Sprintf(f, args...)) }
func (a agentLogger) Debugf(f string, args ...any) { a.L.Debug(a.ctx, fmt.Sprintf(f, args...)) }
func (a agentLogger) Errorf(f string, args ...any) {
	a.L.Warn(a.ctx, "pyroscope agent", "detail", fmt.Sprintf(f, args...))
}

// config validates opts and builds the agent config.
func config(ctx context.Context, L log.Logger, opts Options) (pyroscope.Config, error) {
	u, err := url.Parse(opts.ServerAddress)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return pyroscope.Config{}, xerrors.Newf("invalid server address (%q)", opts.ServerAddress)
	}
	if opts.AppName == "" {
		return pyroscope.Config{}, xerrors.New("app name is required")
	}
	return pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes:    profileTypes,
		Logger:          agentLogger{ctx: context.WithoutCancel(ctx), L: L.With("component", "pyroscope")},
	}, nil
}

// Start returns a stop func that is always non-nil and safe to call more than once.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	noop := func() {}

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return noop, nil
	}

	cfg, err := config(ctx, L, opts)
	if err != nil {
		return noop, err
	}

	if opts.ProfileMutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.ProfileMutexFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	profiler, err := pyroscope.Start(cfg)
	if err != nil {
		return noop, xerrors.Wrap(err, "pyroscope start")
	}

	L.Info(ctx, "pyroscope started", "server_address", opts.ServerAddress, "app_name", opts.AppName)
	if opts.OnActive != nil {
		opts.OnActive(true)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			bg := context.WithoutCancel(ctx)
			if err := profiler.Stop(); err != nil {
				L.Warn(bg, "pyroscope stop", "error", err)
			}
			if opts.OnActive != nil {
				opts.OnActive(false)
			}
			L.Info(bg, "pyroscope stopped")
		})
	}, nil
}
