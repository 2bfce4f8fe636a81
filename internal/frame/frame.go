// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/arena"
	"github.com/gogpu/particles/internal/commands"
	"github.com/gogpu/particles/internal/logging"
	"github.com/gogpu/particles/internal/metrics"
	"github.com/gogpu/particles/internal/swapchain"
	"github.com/gogpu/particles/internal/tracker"
)

// ErrClosed is returned by Handle after the orchestrator has closed.
var ErrClosed = errors.New("frame: orchestrator closed")

// tracerName is the instrumentation scope of the spans emitted here.
const tracerName = "github.com/gogpu/particles/internal/frame"

// Pass outcomes, reported as the frame.outcome span attribute.
const (
	outcomePresented     = "presented"
	outcomeStalePresent  = "stale_present"
	outcomeStaleAcquire  = "stale_acquire"
	outcomeTransientSize = "transient_extent"
	outcomeFatal         = "fatal"
)

// Span attribute keys.
const (
	attrPass              = "frame.pass"
	attrImage             = "frame.image"
	attrOutcome           = "frame.outcome"
	attrExtent            = "frame.extent"
	attrSwapchainGen      = "frame.swapchain_generation"
	attrPendingCompute    = "frame.pending_compute"
	attrImageWaited       = "frame.image_waited"
	attrPreviousImage     = "frame.previous_image"
	attrComputeDependency = "frame.compute_dependency"
)

// Resources are the components an Orchestrator drives. The orchestrator
// takes ownership of everything but the device: closing it releases the
// swapchain, builder and arena.
type Resources struct {
	Device    gpucore.Device
	Surface   gpucore.Surface
	Arena     *arena.Arena
	Builder   *commands.Builder
	Swapchain *swapchain.Manager
}

// Stats counts orchestrator activity.
type Stats struct {
	// Passes is the number of rendering passes started.
	Passes uint64

	// Frames is the number of render submissions.
	Frames uint64

	// Dropped is the number of passes abandoned before submission.
	Dropped uint64

	// StalePresents is the number of render submissions whose present
	// reported an out-of-date or suboptimal swapchain.
	StalePresents uint64

	// Rebuilds is the number of successful swapchain rebuilds.
	Rebuilds uint64

	// ComputeTicks is the number of compute dispatches submitted.
	ComputeTicks uint64

	// ImageWaits is the number of passes that blocked on an image fence.
	ImageWaits uint64

	// ComputeWaits is the number of passes that blocked on the pending
	// compute future.
	ComputeWaits uint64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the metrics recorder. The default discards.
func WithRecorder(rec metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if rec != nil {
			o.rec = rec
		}
	}
}

// WithTracer sets the tracer used for pass and rebuild spans. The
// default is the global tracer provider's.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock sets the time source of the frame rate meter.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator is the frame scheduler state machine.
//
// It owns all loop-local state: the fence tracker, the previous image
// cursor, the rebuild flag and the pending compute future. Events are
// processed one at a time on the caller's goroutine; an Orchestrator is
// not safe for concurrent use.
//
// Each rendering pass submits the render work of frame k joined after the
// compute dispatch of frame k-1, then waits for dispatch k-1 and submits
// dispatch k after the render of frame k. Render k therefore always reads
// the particle state produced by dispatch k-1.
type Orchestrator struct {
	dev     gpucore.Device
	surface gpucore.Surface
	arena   *arena.Arena
	builder *commands.Builder
	swap    *swapchain.Manager
	fences  *tracker.Tracker

	rec    metrics.Recorder
	tracer trace.Tracer
	now    func() time.Time
	fps    fpsMeter

	state        State
	extent       gpucore.Extent
	needsRebuild bool
	compute      gpucore.Future
	stats        Stats
}

// New creates an orchestrator for a window of the given extent. The
// swapchain is built by Build or by the first redraw.
func New(res Resources, extent gpucore.Extent, opts ...Option) (*Orchestrator, error) {
	switch {
	case res.Device == nil:
		return nil, errors.New("frame: nil device")
	case res.Surface == nil:
		return nil, errors.New("frame: nil surface")
	case res.Arena == nil || res.Builder == nil || res.Swapchain == nil:
		return nil, errors.New("frame: missing arena, builder or swapchain")
	}
	o := &Orchestrator{
		dev:          res.Device,
		surface:      res.Surface,
		arena:        res.Arena,
		builder:      res.Builder,
		swap:         res.Swapchain,
		rec:          metrics.Nop{},
		now:          time.Now,
		extent:       extent,
		needsRebuild: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	o.fences = tracker.New(o.dev, 0, o.rec)
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// Stats returns the activity counters.
func (o *Orchestrator) Stats() Stats { return o.stats }

// Extent returns the last window extent reported.
func (o *Orchestrator) Extent() gpucore.Extent { return o.extent }

// NeedsRebuild reports whether the next pass rebuilds the swapchain.
func (o *Orchestrator) NeedsRebuild() bool { return o.needsRebuild }

// PendingCompute returns the future of the last compute dispatch, Now if
// none is outstanding.
func (o *Orchestrator) PendingCompute() gpucore.Future { return o.compute }

// Tracker returns the per-image fence tracker.
func (o *Orchestrator) Tracker() *tracker.Tracker { return o.fences }

// Build builds the swapchain now instead of on the first redraw. A
// transiently unsupported extent is not an error; the build is retried
// on the next redraw.
func (o *Orchestrator) Build(ctx context.Context) error {
	if o.state == StateClosed {
		return ErrClosed
	}
	err := o.rebuild(ctx)
	switch {
	case errors.Is(err, gpucore.ErrTransientExtent):
		logging.Logger().Warn("frame: initial swapchain deferred", "extent", o.extent, "err", err)
		return nil
	case err != nil:
		return err
	}
	o.needsRebuild = false
	return nil
}

// Handle processes one event. Errors are fatal: the caller should stop
// feeding events and Close.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) error {
	if o.state == StateClosed {
		return ErrClosed
	}
	switch e := ev.(type) {
	case CloseRequested:
		return o.Close(ctx)
	case Resized:
		o.extent = gpucore.Extent{Width: e.Width, Height: e.Height}
		o.needsRebuild = true
		logging.Logger().Debug("frame: resize", "extent", o.extent)
	case CursorMoved:
	case RedrawRequested:
		o.state = StateRendering
		err := o.render(ctx)
		o.state = StateAwaitingEvent
		return err
	case Reconfigure:
		o.swap.SetPreferences(e.Swapchain)
		o.needsRebuild = true
		logging.Logger().Info("frame: swapchain preferences changed",
			"present_modes", e.Swapchain.PresentModes, "image_count", e.Swapchain.ImageCount)
	default:
		return fmt.Errorf("frame: unknown event %T", ev)
	}
	return nil
}

// Run handles events until a close request, a fatal error or the end of
// ctx. A closed channel counts as a close request. The orchestrator is
// always closed when Run returns.
func (o *Orchestrator) Run(ctx context.Context, events <-chan Event) error {
	for o.state != StateClosed {
		var ev Event
		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), o.Close(context.WithoutCancel(ctx)))
		case e, ok := <-events:
			if !ok {
				e = CloseRequested{}
			}
			ev = e
		}
		if err := o.Handle(ctx, ev); err != nil {
			if o.state == StateClosed {
				return err
			}
			return errors.Join(err, o.Close(context.WithoutCancel(ctx)))
		}
	}
	return nil
}

// rebuild rebuilds the swapchain for the current extent and resets the
// tracker to the new image count.
func (o *Orchestrator) rebuild(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "frame.rebuild",
		trace.WithAttributes(attribute.String(attrExtent, o.extent.String())))
	defer span.End()

	if err := o.swap.Rebuild(ctx, o.extent); err != nil {
		if !errors.Is(err, gpucore.ErrTransientExtent) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rebuild failed")
		}
		return err
	}
	o.fences.Reset(o.swap.Images())
	o.fps.reset()
	o.stats.Rebuilds++
	span.SetAttributes(attribute.Int(attrSwapchainGen, o.swap.Generation()))
	return nil
}

// render runs one rendering pass.
func (o *Orchestrator) render(ctx context.Context) (err error) {
	o.stats.Passes++
	ctx, span := o.tracer.Start(ctx, "frame.render",
		trace.WithAttributes(attribute.Int64(attrPass, int64(o.stats.Passes))))
	defer func() {
		if err != nil {
			span.SetAttributes(attribute.String(attrOutcome, outcomeFatal))
			span.RecordError(err)
			span.SetStatus(codes.Error, "rendering pass failed")
		}
		span.End()
	}()
	log := logging.Logger()

	// 1. Swapchain rebuild.
	if o.needsRebuild {
		o.needsRebuild = false
		if err := o.rebuild(ctx); err != nil {
			if errors.Is(err, gpucore.ErrTransientExtent) {
				o.needsRebuild = true
				o.drop(span, metrics.DropTransientExtent, outcomeTransientSize)
				log.Warn("frame: extent temporarily unsupported, retrying next pass", "extent", o.extent)
				return nil
			}
			return fmt.Errorf("frame: rebuild: %w", err)
		}
	}

	// 2. Acquire.
	img, err := o.surface.Acquire(ctx)
	if err != nil {
		if gpucore.IsStale(err) {
			o.needsRebuild = true
			o.drop(span, metrics.DropStaleAcquire, outcomeStaleAcquire)
			log.Warn("frame: stale swapchain on acquire", "err", err)
			return nil
		}
		return fmt.Errorf("frame: acquire: %w", err)
	}
	if img.Suboptimal {
		o.needsRebuild = true
	}
	span.SetAttributes(attribute.Int64(attrImage, int64(img.Index)))

	// 3. Wait until the image's command buffer and framebuffer are free.
	waited, err := o.fences.Wait(ctx, img.Index)
	if err != nil {
		return fmt.Errorf("frame: %w", err)
	}
	if waited {
		o.stats.ImageWaits++
	}

	// 4. Join after the previous pass, the image and the previous tick.
	prev := o.fences.PreviousFuture()
	deps := gpucore.Join(prev, img.Ready, o.compute)
	span.SetAttributes(
		attribute.Bool(attrImageWaited, waited),
		attribute.Int(attrPreviousImage, o.fences.Previous()),
		attribute.String(attrComputeDependency, o.compute.String()),
	)

	// 5. Render, present, fence.
	if err := o.arena.BeginRender(); err != nil {
		return fmt.Errorf("frame: %w", err)
	}
	rendered, err := o.dev.Queue(gpucore.QueueGraphics).Submit(&gpucore.SubmitInfo{
		Commands: []gpucore.CommandBufferID{o.swap.Commands(img.Index)},
		WaitFor:  deps,
		Present:  &gpucore.PresentInfo{Surface: o.surface, Image: img.Index},
	})
	outcome := outcomePresented
	switch {
	case gpucore.IsStale(err):
		o.needsRebuild = true
		o.fences.Record(img.Index, gpucore.Now())
		o.stats.StalePresents++
		outcome = outcomeStalePresent
		log.Warn("frame: stale swapchain on present", "image", img.Index, "err", err)
	case err != nil:
		return fmt.Errorf("frame: render submit: %w", err)
	default:
		o.fences.Record(img.Index, rendered)
	}
	o.stats.Frames++
	o.rec.FrameRendered()

	// 6. Cursor.
	o.fences.Advance(img.Index)

	// 7. Consume the previous tick.
	if !o.compute.IsNow() {
		start := time.Now()
		if err := o.dev.Wait(ctx, o.compute); err != nil {
			return fmt.Errorf("frame: wait for compute %v: %w", o.compute, err)
		}
		o.rec.FenceWait(metrics.WaitCompute, time.Since(start))
		o.stats.ComputeWaits++
		o.compute = gpucore.Now()
	}

	// 8. Next tick, ordered after this pass's render.
	if err := o.arena.BeginDispatch(); err != nil {
		return fmt.Errorf("frame: %w", err)
	}
	dispatched, err := o.dev.Queue(gpucore.QueueCompute).Submit(&gpucore.SubmitInfo{
		Commands: []gpucore.CommandBufferID{o.builder.ComputeCommands()},
		WaitFor:  gpucore.Join(rendered),
	})
	if err != nil {
		return fmt.Errorf("frame: compute submit: %w", err)
	}
	o.compute = dispatched
	o.stats.ComputeTicks++
	o.rec.ComputeTick()

	span.SetAttributes(
		attribute.String(attrOutcome, outcome),
		attribute.String(attrPendingCompute, dispatched.String()),
	)
	log.Debug("frame: pass", "pass", o.stats.Passes, "image", img.Index,
		"render", rendered, "compute", dispatched, "image_waited", waited)

	if fps, ok := o.fps.tick(o.now()); ok {
		o.rec.FramesPerSecond(fps)
		if o.fps.frames%fpsWindow == 0 {
			log.Debug("frame: rate", "fps", fps)
		}
	}
	return nil
}

func (o *Orchestrator) drop(span trace.Span, reason, outcome string) {
	o.stats.Dropped++
	o.rec.FrameDropped(reason)
	span.SetAttributes(attribute.String(attrOutcome, outcome))
}

// Close drains every outstanding fence and the pending compute future,
// then releases the swapchain, builder and arena. In-flight GPU work is
// never interrupted. Close is idempotent; the device itself is left to
// its owner.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.state == StateClosed {
		return nil
	}
	o.state = StateClosing
	start := time.Now()

	var errs []error
	if !o.compute.IsNow() {
		if err := o.dev.Wait(ctx, o.compute); err != nil {
			errs = append(errs, fmt.Errorf("frame: drain compute %v: %w", o.compute, err))
		}
		o.compute = gpucore.Now()
	}
	if err := o.fences.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("frame: drain images: %w", err))
	}
	if err := o.dev.WaitIdle(); err != nil {
		errs = append(errs, fmt.Errorf("frame: wait idle: %w", err))
	}
	o.rec.FenceWait(metrics.WaitDrain, time.Since(start))

	o.swap.Release()
	o.builder.Release()
	o.arena.Release()
	o.fences.Reset(0)
	o.state = StateClosed

	logging.Logger().Info("frame: closed",
		"passes", o.stats.Passes, "frames", o.stats.Frames, "dropped", o.stats.Dropped,
		"rebuilds", o.stats.Rebuilds, "compute_ticks", o.stats.ComputeTicks)
	return errors.Join(errs...)
}
