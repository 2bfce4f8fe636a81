package particles

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/particles/backend"
	_ "github.com/gogpu/particles/backend/sim" // headless runs
	"github.com/gogpu/particles/config"
	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/arena"
	"github.com/gogpu/particles/internal/commands"
	"github.com/gogpu/particles/internal/frame"
	"github.com/gogpu/particles/internal/logging"
	"github.com/gogpu/particles/internal/metrics"
	"github.com/gogpu/particles/internal/stager"
	"github.com/gogpu/particles/internal/swapchain"
	"github.com/gogpu/particles/particle"
	"github.com/gogpu/particles/shader"
)

// ErrClosed is returned by a Simulation after Close.
var ErrClosed = frame.ErrClosed

// Simulation is a particle field simulated on one GPU queue and drawn on
// another, one frame per redraw.
//
// A Simulation is not safe for concurrent use. All methods must be called
// from the goroutine that drives the window.
type Simulation struct {
	session *backend.Session
	layout  particle.Layout
	count   int
	arena   *arena.Arena
	orch    *frame.Orchestrator
	closed  bool
}

// New opens a device for cfg, uploads the initial particle field, records
// the command buffers and builds the swapchain.
//
// A headless configuration always runs on the sim backend. A zero window
// size then falls back to the default size.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	layout, err := cfg.Simulation.ParticleLayout()
	if err != nil {
		return nil, err
	}
	prefs, err := cfg.Swapchain.Preferences()
	if err != nil {
		return nil, err
	}
	progs, err := shader.Load(layout)
	if err != nil {
		return nil, fmt.Errorf("particles: %w", err)
	}

	extent := cfg.Window.Extent()
	if extent.IsZero() && cfg.Window.Headless {
		extent = config.Default().Window.Extent()
	}

	session := o.session
	if session == nil {
		name := cfg.Device.Backend
		if cfg.Window.Headless {
			name = backend.BackendSim
		}
		session, err = backend.Open(ctx, name, backend.Target{
			Window:          o.window,
			Extent:          extent,
			HighPerformance: cfg.Device.HighPerformance,
			Layout:          layout,
			WorkgroupSize:   progs.ComputeContract.WorkgroupSize[0],
		})
		if err != nil {
			return nil, fmt.Errorf("particles: %w", err)
		}
	}

	var rec metrics.Recorder = metrics.Nop{}
	if o.registerer != nil {
		rec = metrics.NewPrometheus(o.registerer)
	}

	s, err := build(ctx, cfg, session, progs, prefs, extent, rec, &o)
	if err != nil {
		session.Device.Release()
		return nil, err
	}

	logging.Logger().Info("particles: simulation ready",
		"backend", session.Backend, "particles", s.count, "layout", layout, "extent", extent)
	return s, nil
}

// build creates everything on top of the session. On error every
// resource it created is released; the device is left to the caller.
func build(ctx context.Context, cfg config.Config, session *backend.Session, progs *shader.Programs,
	prefs swapchain.Preferences, extent gpucore.Extent, rec metrics.Recorder, o *options) (*Simulation, error) {
	dev := session.Device
	st := stager.New(dev, stager.WithRecorder(rec))

	field := particle.Field(cfg.Simulation.Field())
	a, err := arena.New(ctx, dev, st, progs.Layout, field, arena.WithVerifyLag(cfg.Debug.VerifyLag))
	if err != nil {
		return nil, fmt.Errorf("particles: %w", err)
	}
	if cfg.Debug.VerifyTransfer {
		if err := a.Verify(ctx, field); err != nil {
			a.Release()
			return nil, fmt.Errorf("particles: %w", err)
		}
	}
	if n := cfg.Debug.EchoRecords; n > 0 && len(field) > 0 {
		if err := a.Echo(ctx, n); err != nil {
			a.Release()
			return nil, fmt.Errorf("particles: %w", err)
		}
	}

	b, err := commands.New(ctx, dev, st, progs, a)
	if err != nil {
		a.Release()
		return nil, fmt.Errorf("particles: %w", err)
	}
	swap := swapchain.New(dev, session.Surface, b, prefs, rec)

	fopts := []frame.Option{frame.WithRecorder(rec)}
	if o.tracer != nil {
		fopts = append(fopts, frame.WithTracer(o.tracer))
	}
	if o.now != nil {
		fopts = append(fopts, frame.WithClock(o.now))
	}
	orch, err := frame.New(frame.Resources{
		Device:    dev,
		Surface:   session.Surface,
		Arena:     a,
		Builder:   b,
		Swapchain: swap,
	}, extent, fopts...)
	if err != nil {
		swap.Release()
		b.Release()
		a.Release()
		return nil, fmt.Errorf("particles: %w", err)
	}
	if err := orch.Build(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("particles: %w", err), orch.Close(ctx))
	}

	return &Simulation{
		session: session,
		layout:  progs.Layout,
		count:   len(field),
		arena:   a,
		orch:    orch,
	}, nil
}

// Backend returns the name of the backend the simulation runs on.
func (s *Simulation) Backend() string { return s.session.Backend }

// Layout returns the particle record layout.
func (s *Simulation) Layout() particle.Layout { return s.layout }

// Len returns the number of particles.
func (s *Simulation) Len() int { return s.count }

// State returns the scheduling state.
func (s *Simulation) State() State { return s.orch.State() }

// Stats returns the scheduling counters.
func (s *Simulation) Stats() Stats { return s.orch.Stats() }

// Device returns the device the simulation runs on.
func (s *Simulation) Device() gpucore.Device { return s.session.Device }

// Handle processes one event. A CloseRequested event closes the
// simulation, including the device.
func (s *Simulation) Handle(ctx context.Context, ev Event) error {
	if _, ok := ev.(CloseRequested); ok {
		return s.Close(ctx)
	}
	return s.orch.Handle(ctx, ev)
}

// Redraw renders one frame and advances the simulation one tick.
func (s *Simulation) Redraw(ctx context.Context) error {
	return s.Handle(ctx, RedrawRequested{})
}

// Resize reports a new window size.
func (s *Simulation) Resize(ctx context.Context, width, height uint32) error {
	return s.Handle(ctx, Resized{Width: width, Height: height})
}

// Reconfigure applies new swapchain settings at the next redraw.
func (s *Simulation) Reconfigure(ctx context.Context, sc config.Swapchain) error {
	prefs, err := sc.Preferences()
	if err != nil {
		return err
	}
	return s.Handle(ctx, Reconfigure{Swapchain: prefs})
}

// Run handles events until the channel is closed, a close is requested,
// ctx is done or an error occurs. The simulation is closed on return.
func (s *Simulation) Run(ctx context.Context, events <-chan Event) error {
	err := s.orch.Run(ctx, events)
	return errors.Join(err, s.Close(context.WithoutCancel(ctx)))
}

// Particles downloads the current particle field. It waits for all
// submitted work.
func (s *Simulation) Particles(ctx context.Context) ([]particle.Particle, error) {
	if s.closed || s.orch.State() == StateClosed {
		return nil, ErrClosed
	}
	return s.arena.Particles(ctx)
}

// Close waits for all in-flight GPU work, releases every resource and
// the device. Close is idempotent.
func (s *Simulation) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.orch.Close(ctx)
	s.session.Device.Release()
	return err
}
