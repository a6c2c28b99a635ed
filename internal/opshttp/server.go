package opshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/health"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// NewHandler builds the admin mux: /healthz, /readyz, /metrics, optional
// cache controls and pprof. Only loopback and private networks may reach it.
func NewHandler(L log.Logger, opts *Options) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", health.HealthzHandler(opts.Health))
	mux.Handle("GET /readyz", health.ReadyzHandler(opts.Readiness))

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	if opts.Cache != nil {
		mux.HandleFunc("GET /cache", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]int{"entries": opts.Cache.Len()})
		})
		mux.HandleFunc("POST /cache/purge", func(w http.ResponseWriter, r *http.Request) {
			n := opts.Cache.Len()
			opts.Cache.Purge()
			L.Info(r.Context(), "bundle cache purged from ops listener", "entries", n)
			writeJSON(w, map[string]int{"purged": n})
		})
	}

	// pprof (or shadow with 404s)
	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	var h http.Handler = requireNonPublicNetwork(L, mux)
	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic)(h)
	}
	return h
}

// RegisterPprof mounts the net/http/pprof handlers under /debug/pprof/.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

// Start the admin HTTP server on opts.Port (9000 when unset).
// Returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 9000
	}
	addr := fmt.Sprintf(":%d", port)

	srv := httpserver.NewServer(addr, NewHandler(L, opts))
	// profiles run longer than the public write timeout
	if opts.EnablePprof {
		srv.WriteTimeout = 0
	}
	stop, err := httpserver.Listener{Name: "ops http server"}.Serve(ctx, L, srv)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not listen for admin port on addr=%v", addr)
	}
	return stop, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(v)
}
