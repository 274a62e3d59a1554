package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/keithlinneman/siteedge/internal/xerrors"
)

// Probe is evaluated at request time: nil means OK, an error carries the reason.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed returns a probe that always passes, or always fails with reason.
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

// Named prefixes a failing probe's reason with name ("content: no active snapshot").
func Named(name string, p Probe) CheckFunc {
	return func(ctx context.Context) error {
		if p == nil {
			return nil
		}
		return xerrors.Wrap(p.Check(ctx), name)
	}
}

// All passes only if every probe passes. Every probe runs and all failures are joined.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var errs []error
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Any passes if at least one probe passes; otherwise it returns the last failure.
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		var last error
		for _, p := range ps {
			if p == nil {
				continue
			}
			err := p.Check(ctx)
			if err == nil {
				return nil
			}
			last = err
		}
		if last == nil {
			return errors.New("no probes configured")
		}
		return last
	}
}

// ShutdownGate flips readiness to false during drain.
type ShutdownGate struct {
	draining atomic.Bool
	mu       sync.Mutex
	reason   string
}

// Set closes the gate with reason ("draining" when empty).
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.mu.Lock()
	g.reason = reason
	g.mu.Unlock()
	g.draining.Store(true)
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() {
	g.draining.Store(false)
}

// Draining reports whether Set has been called since the last Clear.
func (g *ShutdownGate) Draining() bool { return g.draining.Load() }

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if !g.draining.Load() {
			return nil
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		return errors.New(g.reason)
	}
}
