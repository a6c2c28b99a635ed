package health

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// ErrDraining is returned by the ShutdownGate probe once the gate is set.
var ErrDraining = errors.New("draining")

// Probe is evaluated on every health request. A nil error means healthy.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := errors.New(reason)
	return func(context.Context) error { return err }
}

// Named prefixes failures of p with name, so a 503 body says which check
// failed ("content: no active snapshot").
func Named(name string, p Probe) CheckFunc {
	return func(ctx context.Context) error {
		if p == nil {
			return nil
		}
		return xerrors.Wrap(p.Check(ctx), name)
	}
}

// All passes when every probe passes and returns the first failure.
// Nil probes are skipped.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any passes when at least one probe passes. Otherwise every failure is
// returned joined. With no non-nil probes it fails.
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var errs []error
		for _, p := range ps {
			if p == nil {
				continue
			}
			err := p.Check(ctx)
			if err == nil {
				return nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return errors.New("no probes configured")
		}
		return xerrors.Join(errs...)
	}
}

// ShutdownGate fails readiness while the server drains. The zero value is
// open.
type ShutdownGate struct {
	reason atomic.Pointer[string]
}

// Set closes the gate. reason is reported alongside ErrDraining.
func (g *ShutdownGate) Set(reason string) { g.reason.Store(&reason) }

// Clear reopens the gate.
func (g *ShutdownGate) Clear() { g.reason.Store(nil) }

// Draining reports whether the gate is closed.
func (g *ShutdownGate) Draining() bool { return g.reason.Load() != nil }

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		r := g.reason.Load()
		if r == nil {
			return nil
		}
		if *r == "" {
			return ErrDraining
		}
		return xerrors.Wrap(ErrDraining, *r)
	}
}
