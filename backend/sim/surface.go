// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/logging"
)

// SurfaceOption configures a Surface.
type SurfaceOption func(*Surface)

// WithImageCount bounds the swapchain length. max 0 means unbounded.
func WithImageCount(minImages, maxImages uint32) SurfaceOption {
	return func(s *Surface) {
		s.caps.MinImageCount = minImages
		s.caps.MaxImageCount = maxImages
	}
}

// WithPresentModes sets the supported present modes. Fifo is always added.
func WithPresentModes(modes ...gpucore.PresentMode) SurfaceOption {
	return func(s *Surface) {
		s.caps.PresentModes = append([]gpucore.PresentMode{gpucore.PresentModeFifo}, modes...)
	}
}

// WithMaxExtent bounds the configurable extent.
func WithMaxExtent(e gpucore.Extent) SurfaceOption {
	return func(s *Surface) {
		s.caps.MaxExtent = e
	}
}

// WithAcquireSeed makes Acquire hand out free images in a pseudo-random
// order instead of round robin.
func WithAcquireSeed(seed uint64) SurfaceOption {
	return func(s *Surface) {
		s.rng = rand.New(rand.NewPCG(seed, seed+1))
	}
}

// Surface is an in-memory presentable surface of a simulated device.
type Surface struct {
	d    *Device
	caps gpucore.SurfaceCapabilities
	rng  *rand.Rand

	cfg         gpucore.SurfaceConfig
	configured  bool
	gen         uint64
	views       []gpucore.TextureViewID
	acquired    []bool
	lastPresent []gpucore.Future
	next        uint32

	outOfDate  bool
	suboptimal bool
	history    []gpucore.SurfaceConfig
}

var _ gpucore.Surface = (*Surface)(nil)

// NewSurface creates a surface presenting on d.
func (d *Device) NewSurface(opts ...SurfaceOption) *Surface {
	s := &Surface{
		d: d,
		caps: gpucore.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 4,
			MinExtent:     gpucore.Extent{Width: 1, Height: 1},
			MaxExtent:     gpucore.Extent{Width: 8192, Height: 8192},
			Formats:       []gpucore.TextureFormat{gpucore.TextureFormatBGRA8Unorm, gpucore.TextureFormatRGBA8Unorm},
			PresentModes:  []gpucore.PresentMode{gpucore.PresentModeFifo, gpucore.PresentModeMailbox},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	d.mu.Lock()
	d.surfaces = append(d.surfaces, s)
	d.mu.Unlock()
	return s
}

// Capabilities implements gpucore.Surface.
func (s *Surface) Capabilities() (gpucore.SurfaceCapabilities, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.check(); err != nil {
		return gpucore.SurfaceCapabilities{}, err
	}
	c := s.caps
	c.Formats = slices.Clone(s.caps.Formats)
	c.PresentModes = slices.Clone(s.caps.PresentModes)
	return c, nil
}

// Configure implements gpucore.Surface.
func (s *Surface) Configure(cfg *gpucore.SurfaceConfig) ([]gpucore.TextureViewID, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.check(); err != nil {
		return nil, err
	}
	e := cfg.Extent
	if e.IsZero() || e.Width < s.caps.MinExtent.Width || e.Height < s.caps.MinExtent.Height ||
		e.Width > s.caps.MaxExtent.Width || e.Height > s.caps.MaxExtent.Height {
		return nil, fmt.Errorf("%w: %v outside %v..%v", gpucore.ErrTransientExtent, e, s.caps.MinExtent, s.caps.MaxExtent)
	}
	if cfg.ImageCount < s.caps.MinImageCount || (s.caps.MaxImageCount != 0 && cfg.ImageCount > s.caps.MaxImageCount) {
		return nil, fmt.Errorf("sim: image count %d outside %d..%d", cfg.ImageCount, s.caps.MinImageCount, s.caps.MaxImageCount)
	}
	if !slices.Contains(s.caps.Formats, cfg.Format) {
		return nil, fmt.Errorf("sim: unsupported format %v", cfg.Format)
	}
	if !slices.Contains(s.caps.PresentModes, cfg.PresentMode) {
		return nil, fmt.Errorf("sim: unsupported present mode %v", cfg.PresentMode)
	}

	s.release()
	s.gen++
	s.cfg = *cfg
	s.configured = true
	s.outOfDate = false
	s.suboptimal = false
	s.acquired = make([]bool, cfg.ImageCount)
	s.lastPresent = make([]gpucore.Future, cfg.ImageCount)
	s.next = 0
	s.views = make([]gpucore.TextureViewID, cfg.ImageCount)
	for i := range s.views {
		s.views[i] = gpucore.TextureViewID(s.d.alloc(&view{surface: s, image: uint32(i), gen: s.gen, extent: e}))
	}
	s.history = append(s.history, *cfg)
	logging.Logger().Debug("sim: surface configured",
		"extent", e, "images", cfg.ImageCount, "present_mode", cfg.PresentMode, "generation", s.gen)
	return slices.Clone(s.views), nil
}

// release destroys the views of the current configuration.
func (s *Surface) release() {
	for _, v := range s.views {
		s.d.destroy(uint64(v), "texture view")
	}
	s.views = nil
	s.configured = false
}

// Unconfigure implements gpucore.Surface.
func (s *Surface) Unconfigure() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.release()
}

// Acquire implements gpucore.Surface.
func (s *Surface) Acquire(ctx context.Context) (gpucore.AcquiredImage, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if err := s.d.check(); err != nil {
		return gpucore.AcquiredImage{}, err
	}
	if err := ctx.Err(); err != nil {
		return gpucore.AcquiredImage{}, err
	}
	if !s.configured {
		return gpucore.AcquiredImage{}, errors.New("sim: acquire on unconfigured surface")
	}
	if s.outOfDate {
		return gpucore.AcquiredImage{}, gpucore.ErrOutOfDate
	}

	var free []uint32
	for i, a := range s.acquired {
		if !a {
			free = append(free, uint32(i))
		}
	}
	if len(free) == 0 {
		return gpucore.AcquiredImage{}, fmt.Errorf("sim: all %d images are acquired", len(s.acquired))
	}
	var idx uint32
	if s.rng != nil {
		idx = free[s.rng.IntN(len(free))]
	} else {
		idx = free[0]
		for _, i := range free {
			if i >= s.next {
				idx = i
				break
			}
		}
		s.next = (idx + 1) % uint32(len(s.acquired))
	}
	s.acquired[idx] = true
	return gpucore.AcquiredImage{Index: idx, Suboptimal: s.suboptimal, Ready: s.lastPresent[idx]}, nil
}

// checkPresent validates a present request. Called with the device locked.
func (s *Surface) checkPresent(image uint32) error {
	if !s.configured {
		return errors.New("sim: present on unconfigured surface")
	}
	if int(image) >= len(s.acquired) || !s.acquired[image] {
		return fmt.Errorf("sim: present of image %d which was not acquired", image)
	}
	if last := s.lastPresent[image]; !last.IsNow() && !s.d.observedSerial(last.Serial) {
		s.d.violate("image %d resubmitted before %v was waited for", image, last)
	}
	return nil
}

// present records sub as the latest present of its image. Called with
// the device locked.
func (s *Surface) present(sub *submission) error {
	img := sub.present.image
	s.acquired[img] = false
	s.lastPresent[img] = sub.future()
	switch {
	case s.outOfDate:
		return gpucore.ErrOutOfDate
	case s.suboptimal:
		return gpucore.ErrSuboptimal
	}
	return nil
}

// Invalidate makes the swapchain out of date, as a window resize does.
// Acquire and present fail with ErrOutOfDate until the next Configure.
func (s *Surface) Invalidate() {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.outOfDate = true
}

// SetSuboptimal makes acquires report Suboptimal and presents return
// ErrSuboptimal until the next Configure.
func (s *Surface) SetSuboptimal(v bool) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.suboptimal = v
}

// Generation returns how many times the surface has been configured.
func (s *Surface) Generation() uint64 {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.gen
}

// Configurations returns every configuration applied so far.
func (s *Surface) Configurations() []gpucore.SurfaceConfig {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return slices.Clone(s.history)
}

// Views returns the current framebuffer views.
func (s *Surface) Views() []gpucore.TextureViewID {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return slices.Clone(s.views)
}
