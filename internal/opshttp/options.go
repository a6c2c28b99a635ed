package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/health"
)

// BundleCache is the slice of the bundle cache the ops listener can inspect and flush.
type BundleCache interface {
	Len() int
	Purge()
}

type Options struct {
	Port         int
	Metrics      http.Handler
	EnablePprof  bool
	Health       health.Probe
	Readiness    health.Probe
	Cache        BundleCache // optional, enables /cache and POST /cache/purge
	UseRecoverMW bool
	OnPanic      func() // Optional callback for recovered panics, e.g. to increment a prometheus counter
}
