// Package tracker keeps one completion fence per swap image.
//
// A slot holds the future of the latest render submission for its image,
// or nothing. Before an image's command buffer and framebuffer are reused
// the orchestrator waits on its slot. The tracker also remembers which
// image the previous pass used so that the next submission can be joined
// after it. It is not safe for concurrent use.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/logging"
	"github.com/gogpu/particles/internal/metrics"
)

// Tracker holds per-image fences and the previous image cursor.
type Tracker struct {
	dev    gpucore.Device
	rec    metrics.Recorder
	fences []gpucore.Future
	prev   int
}

// New creates a tracker with n empty slots. A nil rec discards metrics.
func New(dev gpucore.Device, n int, rec metrics.Recorder) *Tracker {
	if rec == nil {
		rec = metrics.Nop{}
	}
	t := &Tracker{dev: dev, rec: rec}
	t.Reset(n)
	return t
}

// Reset resizes the tracker to n empty slots and forgets the previous
// image. Call it after every swapchain rebuild, once all work drained.
func (t *Tracker) Reset(n int) {
	t.fences = make([]gpucore.Future, n)
	t.prev = -1
}

// Len returns the number of slots.
func (t *Tracker) Len() int { return len(t.fences) }

// Fence returns the future stored for image, Now if the slot is empty.
func (t *Tracker) Fence(image uint32) gpucore.Future {
	if int(image) >= len(t.fences) {
		return gpucore.Now()
	}
	return t.fences[image]
}

// Wait blocks until the fence in image's slot, if any, has completed and
// empties the slot. It reports whether it had to wait.
func (t *Tracker) Wait(ctx context.Context, image uint32) (bool, error) {
	if int(image) >= len(t.fences) {
		return false, fmt.Errorf("tracker: image %d out of range (%d slots)", image, len(t.fences))
	}
	f := t.fences[image]
	if f.IsNow() {
		return false, nil
	}
	start := time.Now()
	if err := t.dev.Wait(ctx, f); err != nil {
		return true, fmt.Errorf("tracker: wait for image %d (%v): %w", image, f, err)
	}
	d := time.Since(start)
	t.rec.FenceWait(metrics.WaitImage, d)
	logging.Logger().Debug("tracker: image fence signalled", "image", image, "future", f, "wait", d)
	t.fences[image] = gpucore.Now()
	return true, nil
}

// Record stores f as the latest submission for image. Now empties the
// slot; it is recorded when the submission reported a stale swapchain.
func (t *Tracker) Record(image uint32, f gpucore.Future) {
	if int(image) < len(t.fences) {
		t.fences[image] = f
	}
}

// Advance makes image the previous image for the next pass.
func (t *Tracker) Advance(image uint32) {
	t.prev = int(image)
}

// Previous returns the image used by the previous pass, or -1.
func (t *Tracker) Previous() int { return t.prev }

// PreviousFuture returns the fence of the image the previous pass used,
// Now if there was none.
func (t *Tracker) PreviousFuture() gpucore.Future {
	if t.prev < 0 || t.prev >= len(t.fences) {
		return gpucore.Now()
	}
	return t.fences[t.prev]
}

// Pending returns every stored fence.
func (t *Tracker) Pending() []gpucore.Future {
	return gpucore.Join(t.fences...)
}

// Drain waits for every stored fence and empties all slots.
func (t *Tracker) Drain(ctx context.Context) error {
	for i := range t.fences {
		if _, err := t.Wait(ctx, uint32(i)); err != nil {
			return err
		}
	}
	return nil
}
