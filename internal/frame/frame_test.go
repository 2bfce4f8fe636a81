// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gogpu/particles/backend/sim"
	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/arena"
	"github.com/gogpu/particles/internal/commands"
	"github.com/gogpu/particles/internal/metrics"
	"github.com/gogpu/particles/internal/stager"
	"github.com/gogpu/particles/internal/swapchain"
	"github.com/gogpu/particles/particle"
	"github.com/gogpu/particles/shader"
)

var testExtent = gpucore.Extent{Width: 800, Height: 600}

// countingRecorder is a metrics.Recorder that counts.
type countingRecorder struct {
	frames   int
	ticks    int
	dropped  map[string]int
	rebuilds map[string]int
	waits    map[string]int
	fps      float64
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		dropped:  make(map[string]int),
		rebuilds: make(map[string]int),
		waits:    make(map[string]int),
	}
}

func (r *countingRecorder) FrameRendered()                         { r.frames++ }
func (r *countingRecorder) FrameDropped(reason string)             { r.dropped[reason]++ }
func (r *countingRecorder) Rebuild(outcome string)                 { r.rebuilds[outcome]++ }
func (r *countingRecorder) FenceWait(kind string, _ time.Duration) { r.waits[kind]++ }
func (r *countingRecorder) ComputeTick()                           { r.ticks++ }
func (r *countingRecorder) FramesPerSecond(fps float64)            { r.fps = fps }

var _ metrics.Recorder = (*countingRecorder)(nil)

type setup struct {
	particles int
	extent    gpucore.Extent
	prefs     *swapchain.Preferences
	device    []sim.Option
	surface   []sim.SurfaceOption
	options   []Option
}

type fixture struct {
	d       *sim.Device
	s       *sim.Surface
	m       *swapchain.Manager
	o       *Orchestrator
	rec     *countingRecorder
	initial []particle.Particle
	draws   []sim.DrawRecord
}

func newFixture(t *testing.T, cfg setup) *fixture {
	t.Helper()
	ctx := context.Background()
	if cfg.particles == 0 {
		cfg.particles = 64
	}
	if cfg.extent == (gpucore.Extent{}) {
		cfg.extent = testExtent
	}
	prefs := swapchain.DefaultPreferences()
	if cfg.prefs != nil {
		prefs = *cfg.prefs
	}

	progs, err := shader.Load(particle.LayoutLegacy)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{rec: newCountingRecorder()}
	devOpts := []sim.Option{
		sim.WithKernel(sim.ParticleKernel(particle.LayoutLegacy, progs.ComputeContract.WorkgroupSize[0])),
		sim.WithDrawObserver(func(r sim.DrawRecord) { f.draws = append(f.draws, r) }),
	}
	f.d = sim.New(append(devOpts, cfg.device...)...)
	f.s = f.d.NewSurface(cfg.surface...)

	st := stager.New(f.d, stager.WithRecorder(f.rec))
	f.initial = particle.Field(particle.FieldConfig{Count: cfg.particles, Seed: 7, GasEvery: 5})
	a, err := arena.New(ctx, f.d, st, particle.LayoutLegacy, f.initial, arena.WithVerifyLag(true))
	if err != nil {
		t.Fatal(err)
	}
	b, err := commands.New(ctx, f.d, st, progs, a)
	if err != nil {
		t.Fatal(err)
	}
	f.m = swapchain.New(f.d, f.s, b, prefs, f.rec)
	opts := append([]Option{WithRecorder(f.rec)}, cfg.options...)
	f.o, err = New(Resources{Device: f.d, Surface: f.s, Arena: a, Builder: b, Swapchain: f.m}, cfg.extent, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) handle(t *testing.T, evs ...Event) {
	t.Helper()
	for _, ev := range evs {
		if err := f.o.Handle(context.Background(), ev); err != nil {
			t.Fatalf("Handle(%v) error = %v", ev, err)
		}
	}
}

func (f *fixture) redraw(t *testing.T, n int) {
	t.Helper()
	for range n {
		f.handle(t, RedrawRequested{})
	}
}

// close closes the orchestrator, releases the device and checks that
// nothing leaked or raced.
func (f *fixture) close(t *testing.T) {
	t.Helper()
	f.handle(t, CloseRequested{})
	f.d.Release()
	for _, v := range f.d.Violations() {
		t.Errorf("violation: %s", v)
	}
	if live := f.d.Live(); live != 0 {
		t.Errorf("Live() = %d after close, want 0", live)
	}
}

// checkLag verifies that every executed draw read the buffer after
// exactly k-1 dispatches, k counting draws from 1.
func (f *fixture) checkLag(t *testing.T) {
	t.Helper()
	for i, d := range f.draws {
		if d.Dispatches != uint64(i) {
			t.Errorf("draw %d read the buffer after %d dispatches, want %d", i+1, d.Dispatches, i)
		}
	}
}

func TestScenario100Ticks(t *testing.T) {
	f := newFixture(t, setup{particles: 1024})
	const ticks = 100

	var prevCompute gpucore.Future
	for k := 1; k <= ticks; k++ {
		before, waits := f.o.Stats(), f.d.Stats().HostWaits
		f.redraw(t, 1)
		after := f.o.Stats()

		if got := f.d.Stats().HostWaits - waits; got > 2 {
			t.Errorf("tick %d: %d host waits, want at most one image and one compute wait", k, got)
		}
		if after.ImageWaits-before.ImageWaits > 1 {
			t.Errorf("tick %d: waited on %d image fences", k, after.ImageWaits-before.ImageWaits)
		}
		if k > 1 && after.ComputeWaits != before.ComputeWaits+1 {
			t.Errorf("tick %d: pending compute %v was not consumed", k, prevCompute)
		}
		pc := f.o.PendingCompute()
		if pc.IsNow() || pc == prevCompute {
			t.Errorf("tick %d: PendingCompute() = %v, want a new dispatch", k, pc)
		}
		prevCompute = pc
	}

	st := f.o.Stats()
	if st.Frames != ticks || st.ComputeTicks != ticks || st.ComputeWaits != ticks-1 {
		t.Errorf("Stats() = %+v, want %d frames and ticks, %d compute waits", st, ticks, ticks-1)
	}
	if st.Rebuilds != 1 || st.Dropped != 0 {
		t.Errorf("Stats() = %+v, want 1 rebuild and no drops", st)
	}
	if f.rec.frames != ticks || f.rec.ticks != ticks || f.rec.waits[metrics.WaitCompute] != ticks-1 {
		t.Errorf("recorded %d frames, %d ticks, %d compute waits", f.rec.frames, f.rec.ticks, f.rec.waits[metrics.WaitCompute])
	}

	f.close(t)
	if len(f.draws) != ticks {
		t.Fatalf("%d draws executed, want %d", len(f.draws), ticks)
	}
	f.checkLag(t)
	if f.rec.waits[metrics.WaitDrain] != 1 {
		t.Errorf("drain recorded %d times, want 1", f.rec.waits[metrics.WaitDrain])
	}
}

func TestLagExactness(t *testing.T) {
	for _, order := range []sim.Order{sim.OrderSubmit, sim.OrderComputeFirst, sim.OrderGraphicsFirst} {
		for _, latency := range []int{0, 1, 2, 5} {
			t.Run(fmt.Sprintf("%v/latency%d", order, latency), func(t *testing.T) {
				f := newFixture(t, setup{device: []sim.Option{sim.WithOrder(order), sim.WithLatency(latency)}})
				f.redraw(t, 30)
				f.close(t)
				if len(f.draws) != 30 {
					t.Fatalf("%d draws executed, want 30", len(f.draws))
				}
				f.checkLag(t)
			})
		}
	}
}

func TestRenderReadsPreviousTick(t *testing.T) {
	f := newFixture(t, setup{particles: 256, device: []sim.Option{sim.WithLatency(3), sim.WithOrder(sim.OrderComputeFirst)}})
	f.redraw(t, 12)
	f.close(t)

	model := append([]particle.Particle(nil), f.initial...)
	for k, d := range f.draws {
		want, err := particle.Encode(particle.LayoutLegacy, model)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(d.Particles[:len(want)], want) {
			t.Fatalf("draw %d did not read the state after %d ticks", k+1, k)
		}
		for i := range model {
			sim.Step(&model[i])
		}
	}
}

func TestResizeIdempotence(t *testing.T) {
	f := newFixture(t, setup{})
	f.redraw(t, 3)
	configs := len(f.s.Configurations())
	rebuilds := f.o.Stats().Rebuilds

	final := gpucore.Extent{Width: 640, Height: 480}
	f.handle(t,
		Resized{Width: 1000, Height: 700},
		Resized{Width: 900, Height: 650},
		CursorMoved{X: 10, Y: 20},
		Resized{Width: 640, Height: 480},
		Resized{Width: 640, Height: 480},
	)
	if got := len(f.s.Configurations()); got != configs {
		t.Errorf("resize events reconfigured the surface %d times before the redraw", got-configs)
	}
	f.redraw(t, 3)

	if got := f.o.Stats().Rebuilds - rebuilds; got != 1 {
		t.Errorf("%d rebuilds after resizes, want 1", got)
	}
	cs := f.s.Configurations()
	if got := len(cs) - configs; got != 1 {
		t.Errorf("surface configured %d times, want 1", got)
	}
	if e := cs[len(cs)-1].Extent; e != final {
		t.Errorf("configured extent = %v, want %v", e, final)
	}
	f.close(t)
	for _, d := range f.draws[3:] {
		if d.Viewport != final || d.Window != [2]float32{640, 480} {
			t.Errorf("draw viewport %v window %v, want %v", d.Viewport, d.Window, final)
		}
	}
	f.checkLag(t)
}

func TestFenceSlotCardinality(t *testing.T) {
	f := newFixture(t, setup{surface: []sim.SurfaceOption{sim.WithImageCount(2, 5)}})
	check := func(step string) {
		t.Helper()
		n := f.m.Images()
		if f.o.Tracker().Len() != n || f.m.CommandCount() != n {
			t.Errorf("%s: %d fences, %d command buffers, %d images", step, f.o.Tracker().Len(), f.m.CommandCount(), n)
		}
	}

	f.redraw(t, 4)
	check("initial")
	f.handle(t, Resized{Width: 320, Height: 200})
	f.redraw(t, 4)
	check("first resize")
	f.handle(t, Resized{Width: 1920, Height: 1080})
	f.redraw(t, 4)
	check("second resize")

	p := swapchain.DefaultPreferences()
	p.ImageCount = 5
	f.handle(t, Reconfigure{Swapchain: p})
	f.redraw(t, 6)
	check("reconfigure")
	if f.m.Images() != 5 {
		t.Errorf("Images() = %d after reconfigure, want 5", f.m.Images())
	}
	f.close(t)
	f.checkLag(t)
}

func TestRandomAcquireOrder(t *testing.T) {
	for _, seed := range []uint64{1, 2, 3, 42} {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			f := newFixture(t, setup{
				surface: []sim.SurfaceOption{sim.WithImageCount(2, 4), sim.WithAcquireSeed(seed)},
				device:  []sim.Option{sim.WithLatency(4)},
			})
			f.redraw(t, 50)
			f.close(t)
			f.checkLag(t)
		})
	}
}

func TestTransientExtent(t *testing.T) {
	f := newFixture(t, setup{})
	if err := f.o.Build(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.redraw(t, 2)

	f.handle(t, Resized{Width: 0, Height: 600})
	f.redraw(t, 3)
	st := f.o.Stats()
	if st.Frames != 2 || st.Dropped != 3 {
		t.Errorf("Stats() = %+v, want 2 frames and 3 drops", st)
	}
	if !f.o.NeedsRebuild() {
		t.Error("NeedsRebuild() = false while the extent is unsupported")
	}
	if f.rec.dropped[metrics.DropTransientExtent] != 3 {
		t.Errorf("transient drops recorded = %d, want 3", f.rec.dropped[metrics.DropTransientExtent])
	}

	f.handle(t, Resized{Width: 400, Height: 300})
	f.redraw(t, 2)
	if st := f.o.Stats(); st.Frames != 4 || st.Rebuilds != 2 {
		t.Errorf("Stats() = %+v, want 4 frames and 2 rebuilds", st)
	}
	f.close(t)
	f.checkLag(t)
}

func TestDeferredInitialBuild(t *testing.T) {
	f := newFixture(t, setup{extent: gpucore.Extent{Width: 0, Height: 0}})
	if err := f.o.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v, want nil for a zero extent", err)
	}
	if !f.o.NeedsRebuild() {
		t.Fatal("NeedsRebuild() = false after a deferred build")
	}
	f.redraw(t, 1)
	f.handle(t, Resized{Width: 32, Height: 32})
	f.redraw(t, 1)
	if st := f.o.Stats(); st.Frames != 1 || st.Dropped != 1 {
		t.Errorf("Stats() = %+v, want 1 frame and 1 drop", st)
	}
	f.close(t)
}

func TestStaleAcquire(t *testing.T) {
	f := newFixture(t, setup{})
	f.redraw(t, 5)
	f.s.Invalidate()
	f.redraw(t, 1)
	if st := f.o.Stats(); st.Frames != 5 || st.Dropped != 1 || !f.o.NeedsRebuild() {
		t.Errorf("Stats() = %+v, NeedsRebuild() = %v; want the pass dropped and a rebuild pending", st, f.o.NeedsRebuild())
	}
	if f.rec.dropped[metrics.DropStaleAcquire] != 1 {
		t.Errorf("stale acquire drops = %d, want 1", f.rec.dropped[metrics.DropStaleAcquire])
	}
	f.redraw(t, 5)
	if st := f.o.Stats(); st.Frames != 10 || st.Rebuilds != 2 {
		t.Errorf("Stats() = %+v, want 10 frames and 2 rebuilds", st)
	}
	f.close(t)
	f.checkLag(t)
}

func TestSuboptimalPresent(t *testing.T) {
	f := newFixture(t, setup{})
	f.redraw(t, 4)
	f.s.SetSuboptimal(true)
	f.redraw(t, 1)
	st := f.o.Stats()
	if st.Frames != 5 || st.StalePresents != 1 || !f.o.NeedsRebuild() {
		t.Errorf("Stats() = %+v, NeedsRebuild() = %v; want the frame presented and a rebuild pending", st, f.o.NeedsRebuild())
	}
	if f.o.Tracker().Previous() < 0 {
		t.Error("previous image not advanced after a stale present")
	}
	f.redraw(t, 4)
	if st := f.o.Stats(); st.StalePresents != 1 || st.Rebuilds != 2 || st.Frames != 9 {
		t.Errorf("Stats() = %+v, want one stale present, 2 rebuilds and 9 frames", st)
	}
	f.close(t)
	f.checkLag(t)
}

func TestCloseDrains(t *testing.T) {
	f := newFixture(t, setup{device: []sim.Option{sim.WithLatency(8)}})
	f.redraw(t, 7)
	if f.o.PendingCompute().IsNow() {
		t.Fatal("no pending compute before close")
	}
	if err := f.o.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if f.o.State() != StateClosed {
		t.Errorf("State() = %v, want Closed", f.o.State())
	}
	if !f.o.PendingCompute().IsNow() || f.d.Pending() != 0 {
		t.Errorf("PendingCompute() = %v, device pending = %d after close", f.o.PendingCompute(), f.d.Pending())
	}
	if err := f.o.Handle(context.Background(), RedrawRequested{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Handle after close error = %v, want ErrClosed", err)
	}
	if err := f.o.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	f.d.Release()
	for _, v := range f.d.Violations() {
		t.Errorf("violation: %s", v)
	}
	if live := f.d.Live(); live != 0 {
		t.Errorf("Live() = %d, want 0", live)
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t, setup{})
	events := make(chan Event, 32)
	for range 10 {
		events <- RedrawRequested{}
	}
	events <- Resized{Width: 200, Height: 100}
	for range 5 {
		events <- RedrawRequested{}
	}
	close(events)

	if err := f.o.Run(context.Background(), events); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.o.State() != StateClosed {
		t.Errorf("State() = %v, want Closed", f.o.State())
	}
	if st := f.o.Stats(); st.Frames != 15 || st.Rebuilds != 2 {
		t.Errorf("Stats() = %+v, want 15 frames and 2 rebuilds", st)
	}
	f.d.Release()
	if v := f.d.Violations(); len(v) != 0 {
		t.Errorf("Violations() = %v", v)
	}
	f.checkLag(t)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, setup{})
	f.redraw(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.o.Run(ctx, make(chan Event))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if f.o.State() != StateClosed {
		t.Errorf("State() = %v, want Closed", f.o.State())
	}
	f.d.Release()
	if live := f.d.Live(); live != 0 {
		t.Errorf("Live() = %d, want 0", live)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Resources{}, testExtent); err == nil {
		t.Error("New(empty) error = nil")
	}
}

func TestUnknownEvent(t *testing.T) {
	f := newFixture(t, setup{})
	if err := f.o.Handle(context.Background(), nil); err == nil {
		t.Error("Handle(nil) error = nil")
	}
	f.close(t)
}

func TestSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	f := newFixture(t, setup{options: []Option{WithTracer(tp.Tracer("test"))}})
	f.redraw(t, 3)
	f.s.Invalidate()
	f.redraw(t, 1)
	f.close(t)

	var renders, rebuilds int
	var outcomes []string
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "frame.render":
			renders++
			outcomes = append(outcomes, attr(s.Attributes(), attrOutcome))
		case "frame.rebuild":
			rebuilds++
		}
	}
	if renders != 4 || rebuilds != 1 {
		t.Errorf("%d render and %d rebuild spans, want 4 and 1", renders, rebuilds)
	}
	want := []string{outcomePresented, outcomePresented, outcomePresented, outcomeStaleAcquire}
	if fmt.Sprint(outcomes) != fmt.Sprint(want) {
		t.Errorf("outcomes = %v, want %v", outcomes, want)
	}
}

func attr(kvs []attribute.KeyValue, key string) string {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestFramesPerSecond(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(20 * time.Millisecond)
		return now
	}
	f := newFixture(t, setup{options: []Option{WithClock(clock)}})
	f.redraw(t, 30)
	if math.Abs(f.rec.fps-50) > 1e-6 {
		t.Errorf("FramesPerSecond = %v, want 50", f.rec.fps)
	}
	f.close(t)
}

func TestFPSMeter(t *testing.T) {
	var m fpsMeter
	t0 := time.Unix(100, 0)
	if _, ok := m.tick(t0); ok {
		t.Error("tick() ok on the first frame")
	}
	fps, ok := m.tick(t0.Add(10 * time.Millisecond))
	if !ok || math.Abs(fps-100) > 1e-6 {
		t.Errorf("tick() = %v, %v; want 100, true", fps, ok)
	}
	// A slow stretch ages out of the window.
	at := t0.Add(10 * time.Millisecond)
	at = at.Add(time.Second)
	m.tick(at)
	for range fpsWindow {
		at = at.Add(25 * time.Millisecond)
		fps, _ = m.tick(at)
	}
	if math.Abs(fps-40) > 1e-6 {
		t.Errorf("tick() after a full window = %v, want 40", fps)
	}
	m.reset()
	if _, ok := m.tick(at); ok {
		t.Error("tick() ok right after reset")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateAwaitingEvent, "AwaitingEvent"},
		{StateRendering, "Rendering"},
		{StateClosing, "Closing"},
		{StateClosed, "Closed"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", uint8(tt.s), got, tt.want)
		}
	}
}
