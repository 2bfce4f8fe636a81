// Package arena owns the particle buffer shared by the compute and render
// programs.
//
// The buffer is device-only and never swapped: compute dispatches update
// it in place and render passes read it. Which state a render pass sees
// is decided by submission order alone. The arena counts submitted
// dispatches (the last writer tick) and submitted renders so that the
// one-frame lag can be checked on every submission when enabled.
package arena

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/logging"
	"github.com/gogpu/particles/internal/stager"
	"github.com/gogpu/particles/particle"
)

// ErrLagViolation is returned when a render or dispatch would break the
// one-frame lag between the compute and render queues.
var ErrLagViolation = errors.New("arena: one-frame lag violated")

// Option configures an Arena.
type Option func(*Arena)

// WithVerifyLag enables the lag check in BeginRender and BeginDispatch.
func WithVerifyLag(enabled bool) Option {
	return func(a *Arena) {
		a.verify = enabled
	}
}

// Arena is the particle buffer with its writer and reader ticks.
type Arena struct {
	st     *stager.Stager
	dev    gpucore.Device
	buf    gpucore.BufferID
	layout particle.Layout
	count  int
	size   uint64
	verify bool

	writes uint64
	reads  uint64
}

// New uploads ps in layout l into a fresh device-only buffer usable as
// storage by both programs.
func New(ctx context.Context, dev gpucore.Device, st *stager.Stager, l particle.Layout, ps []particle.Particle, opts ...Option) (*Arena, error) {
	data, err := particle.Encode(l, ps)
	if err != nil {
		return nil, fmt.Errorf("arena: %w", err)
	}
	if size := uint64(len(data)); size > dev.Capabilities().MaxStorageBufferBindingSize {
		return nil, fmt.Errorf("arena: %d particles need %d bytes, device binds at most %d",
			len(ps), size, dev.Capabilities().MaxStorageBufferBindingSize)
	}
	buf, err := st.Upload(ctx, "particles", gpucore.BufferUsageStorage|gpucore.BufferUsageCopySrc, data, l.Stride())
	if err != nil {
		return nil, fmt.Errorf("arena: %w", err)
	}
	a := &Arena{
		st:     st,
		dev:    dev,
		buf:    buf,
		layout: l,
		count:  len(ps),
		size:   max(uint64(len(data)), l.Stride()),
	}
	for _, opt := range opts {
		opt(a)
	}
	logging.Logger().Info("arena: particle buffer ready",
		"particles", a.count, "layout", l, "bytes", len(data), "verify_lag", a.verify)
	return a, nil
}

// Buffer returns the shared buffer.
func (a *Arena) Buffer() gpucore.BufferID { return a.buf }

// Layout returns the record layout of the buffer.
func (a *Arena) Layout() particle.Layout { return a.layout }

// Count returns the number of particles.
func (a *Arena) Count() int { return a.count }

// BindingSize returns the size to declare as the minimum binding size.
// It is at least one record, even for an empty buffer.
func (a *Arena) BindingSize() uint64 { return a.size }

// LastWriter returns the number of dispatches submitted so far. The
// render submitted next reads the state produced by dispatch LastWriter.
func (a *Arena) LastWriter() uint64 { return a.writes }

// Renders returns the number of render submissions so far.
func (a *Arena) Renders() uint64 { return a.reads }

// BeginRender accounts for a render submission. Render k must follow
// exactly k-1 dispatches.
func (a *Arena) BeginRender() error {
	if a.verify && a.writes != a.reads {
		return fmt.Errorf("%w: render %d after %d dispatches", ErrLagViolation, a.reads+1, a.writes)
	}
	a.reads++
	return nil
}

// BeginDispatch accounts for a dispatch submission. Dispatch k must
// follow render k.
func (a *Arena) BeginDispatch() error {
	if a.verify && a.writes+1 != a.reads {
		return fmt.Errorf("%w: dispatch %d after %d renders", ErrLagViolation, a.writes+1, a.reads)
	}
	a.writes++
	return nil
}

// Verify downloads the buffer and compares it with the encoding of ps.
// It blocks until all submitted work completed.
func (a *Arena) Verify(ctx context.Context, ps []particle.Particle) error {
	want, err := particle.Encode(a.layout, ps)
	if err != nil {
		return fmt.Errorf("arena: %w", err)
	}
	return a.st.Verify(ctx, a.buf, want)
}

// Particles downloads and decodes the buffer.
// It blocks until all submitted work completed.
func (a *Arena) Particles(ctx context.Context) ([]particle.Particle, error) {
	data, err := a.st.Download(ctx, a.buf, uint64(a.count)*a.layout.Stride())
	if err != nil {
		return nil, err
	}
	return particle.Decode(a.layout, data)
}

// Echo logs the first n records of the buffer at debug level.
func (a *Arena) Echo(ctx context.Context, n int) error {
	ps, err := a.Particles(ctx)
	if err != nil {
		return err
	}
	log := logging.Logger()
	for i, p := range ps[:min(n, len(ps))] {
		log.Debug("arena: record", "index", i, "id", p.ID, "position", p.Position,
			"target", p.Target, "mass", p.Mass, "force", p.Force, "stable", p.IsStable())
	}
	return nil
}

// Release destroys the buffer. All work using it must have completed.
func (a *Arena) Release() {
	if a.buf != gpucore.InvalidID {
		a.dev.DestroyBuffer(a.buf)
		a.buf = gpucore.InvalidID
	}
}
