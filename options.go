package particles

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/particles/backend"
)

// Option configures a Simulation during creation.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	sim, err := particles.New(ctx, cfg,
//	    particles.WithWindow(win),
//	    particles.WithRegisterer(reg),
//	)
type Option func(*options)

// options holds optional configuration for Simulation creation.
type options struct {
	window     backend.NativeWindow
	session    *backend.Session
	registerer prometheus.Registerer
	tracer     trace.Tracer
	now        func() time.Time
}

// WithWindow sets the window the simulation presents to. Without a
// window only backends that need none (sim) can open.
func WithWindow(w backend.NativeWindow) Option {
	return func(o *options) {
		o.window = w
	}
}

// WithSession runs the simulation on an already opened session instead
// of opening one from the configuration. The simulation takes ownership
// and releases the device on Close.
//
// Example:
//
//	dev := sim.New(sim.WithLatency(3), sim.WithKernel(kernel))
//	s, err := particles.New(ctx, cfg, particles.WithSession(&backend.Session{
//	    Backend: backend.BackendSim,
//	    Device:  dev,
//	    Surface: dev.NewSurface(),
//	}))
func WithSession(s *backend.Session) Option {
	return func(o *options) {
		o.session = s
	}
}

// WithRegisterer exports the scheduler metrics to reg. Without it no
// metrics are recorded.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTracer sets the tracer for frame spans. The default is the tracer
// of the global OpenTelemetry provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithClock replaces the clock used for the frames-per-second meter.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
