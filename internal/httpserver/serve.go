package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Listener binds srv.Addr and serves it in the background.
type Listener struct {
	Name    string // log prefix, e.g. "http server"
	Network string // "tcp" when empty
	// Drain caps graceful shutdown on top of the caller's context. Zero
	// leaves the caller's deadline alone.
	Drain time.Duration
}

// Serve binds the listener and returns stop(ctx). stop runs Shutdown once;
// every call returns that result, or the error Serve failed with if the
// server died on its own.
func (l Listener) Serve(ctx context.Context, L log.Logger, srv *http.Server) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	network := l.Network
	if network == "" {
		network = "tcp"
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, network, srv.Addr)
	if err != nil {
		return nil, err
	}

	served := make(chan error, 1)
	go func() {
		L.Info(ctx, l.Name+" listening", "addr", ln.Addr().String())
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			L.Error(ctx, err, l.Name+" error")
		}
		served <- err
		close(served)
	}()

	var (
		once    sync.Once
		stopErr error
	)
	return func(sctx context.Context) error {
		once.Do(func() {
			L.Info(sctx, l.Name+" shutting down")
			if l.Drain > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(sctx, l.Drain)
				defer cancel()
			}
			if err := srv.Shutdown(sctx); err != nil {
				stopErr = xerrors.Wrapf(err, "%s shutdown", l.Name)
				return
			}
			stopErr = <-served
		})
		return stopErr
	}, nil
}
