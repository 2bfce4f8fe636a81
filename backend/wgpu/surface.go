// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/logging"
)

// Image count bounds reported to the swapchain negotiation. wgpu decides
// the real swapchain length; these bound the frames in flight.
const (
	minImages = 2
	maxImages = 3
)

// acquired is the surface texture of the current frame.
type acquired struct {
	tex   *wgpu.SurfaceTexture
	view  *wgpu.TextureView
	index uint32
}

// Surface is a gpucore.Surface on a wgpu surface.
type Surface struct {
	d       *Device
	surface *wgpu.Surface

	slots   map[gpucore.TextureViewID]uint32
	images  uint32
	next    uint32
	current *acquired
}

var _ gpucore.Surface = (*Surface)(nil)

// Capabilities implements gpucore.Surface.
func (s *Surface) Capabilities() (gpucore.SurfaceCapabilities, error) {
	if s.d.released {
		return gpucore.SurfaceCapabilities{}, gpucore.ErrReleased
	}
	caps := s.d.adapter.GetSurfaceCapabilities(s.surface)
	if caps == nil {
		return gpucore.SurfaceCapabilities{}, fmt.Errorf("wgpu: surface capabilities: %w", gpucore.ErrSurfaceLost)
	}
	maxDim := s.d.limits.MaxTextureDimension2D
	return gpucore.SurfaceCapabilities{
		MinImageCount: minImages,
		MaxImageCount: maxImages,
		MinExtent:     gpucore.Extent{Width: 1, Height: 1},
		MaxExtent:     gpucore.Extent{Width: maxDim, Height: maxDim},
		Formats:       surfaceFormats(caps.Formats),
		PresentModes:  presentModes(caps.PresentModes),
	}, nil
}

// Configure implements gpucore.Surface. The returned views are
// placeholders resolved to the acquired surface texture at encode time.
func (s *Surface) Configure(cfg *gpucore.SurfaceConfig) ([]gpucore.TextureViewID, error) {
	if s.d.released {
		return nil, gpucore.ErrReleased
	}
	if cfg.Extent.IsZero() {
		return nil, fmt.Errorf("wgpu: configure %v: %w", cfg.Extent, gpucore.ErrTransientExtent)
	}
	s.discard()
	err := s.surface.Configure(s.d.dev, &wgpu.SurfaceConfiguration{
		Width:       cfg.Extent.Width,
		Height:      cfg.Extent.Height,
		Format:      cfg.Format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: cfg.PresentMode,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		return nil, translate(fmt.Sprintf("configure %v", cfg.Extent), err)
	}

	n := min(max(cfg.ImageCount, minImages), maxImages)
	s.slots = make(map[gpucore.TextureViewID]uint32, n)
	views := make([]gpucore.TextureViewID, n)
	for i := range views {
		views[i] = gpucore.TextureViewID(s.d.id())
		s.slots[views[i]] = uint32(i)
	}
	s.images, s.next = n, 0
	logging.Logger().Debug("wgpu: surface configured",
		"extent", cfg.Extent, "format", cfg.Format, "present_mode", cfg.PresentMode, "images", n)
	return views, nil
}

// Acquire implements gpucore.Surface. The texture is ready when
// GetCurrentTexture returns.
func (s *Surface) Acquire(ctx context.Context) (gpucore.AcquiredImage, error) {
	if err := ctx.Err(); err != nil {
		return gpucore.AcquiredImage{}, err
	}
	if s.images == 0 {
		return gpucore.AcquiredImage{}, fmt.Errorf("wgpu: acquire: %w", gpucore.ErrOutOfDate)
	}
	s.discard()
	tex, suboptimal, err := s.surface.GetCurrentTexture()
	if err != nil {
		if errors.Is(err, wgpu.ErrTimeout) {
			err = wgpu.ErrSurfaceOutdated
		}
		return gpucore.AcquiredImage{}, translate("acquire", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		s.surface.DiscardTexture()
		return gpucore.AcquiredImage{}, translate("acquire view", err)
	}
	idx := s.next
	s.next = (s.next + 1) % s.images
	s.current = &acquired{tex: tex, view: view, index: idx}
	return gpucore.AcquiredImage{Index: idx, Suboptimal: suboptimal, Ready: gpucore.Now()}, nil
}

// Unconfigure implements gpucore.Surface.
func (s *Surface) Unconfigure() {
	s.discard()
	if s.images > 0 {
		s.surface.Unconfigure()
	}
	s.slots, s.images, s.next = nil, 0, 0
}

// view resolves a placeholder view to the acquired texture.
func (s *Surface) view(id gpucore.TextureViewID) (*wgpu.TextureView, error) {
	idx, ok := s.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: texture view %d", gpucore.ErrInvalidID, uint64(id))
	}
	if s.current == nil || s.current.index != idx {
		return nil, fmt.Errorf("%w: image %d", errNotAcquired, idx)
	}
	return s.current.view, nil
}

func (s *Surface) present(image uint32) error {
	cur := s.current
	if cur == nil || cur.index != image {
		return fmt.Errorf("wgpu: present: %w: image %d", errNotAcquired, image)
	}
	s.current = nil
	err := s.surface.Present(cur.tex)
	cur.view.Release()
	return translate("present", err)
}

// discard drops an acquired texture that was never presented.
func (s *Surface) discard() {
	if s.current == nil {
		return
	}
	s.current.view.Release()
	s.current = nil
	s.surface.DiscardTexture()
}

func (s *Surface) release() {
	s.Unconfigure()
	s.surface.Release()
}
