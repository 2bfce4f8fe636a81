// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"
	_ "github.com/gogpu/wgpu/hal/allbackends" // Vulkan, Metal, DX12

	"github.com/gogpu/particles/backend"
	"github.com/gogpu/particles/internal/logging"
)

func init() {
	backend.Register(backend.BackendWGPU, func() backend.Provider {
		return provider{}
	})
}

type provider struct{}

func (provider) Name() string { return backend.BackendWGPU }

// Open creates an instance, a surface for t.Window, an adapter that can
// present to it and a device. It fails with backend.ErrBackendNotAvailable
// without a window.
func (provider) Open(ctx context.Context, t backend.Target) (*backend.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Window == nil {
		return nil, fmt.Errorf("%w: wgpu needs a window", backend.ErrBackendNotAvailable)
	}

	instance, err := wgpu.CreateInstance(&wgpu.InstanceDescriptor{Backends: gputypes.BackendsPrimary})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	display, window := t.Window.Handles()
	surface, err := instance.CreateSurface(display, window)
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("wgpu: %w", err)
	}

	pref := gputypes.PowerPreferenceLowPower
	if t.HighPerformance {
		pref = gputypes.PowerPreferenceHighPerformance
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:   pref,
		CompatibleSurface: surface,
	})
	if err != nil {
		surface.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: %w", backend.ErrNoAdapter, err)
	}
	dev, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "particles",
		RequiredLimits: adapter.Limits(),
	})
	if err != nil {
		adapter.Release()
		surface.Release()
		instance.Release()
		return nil, fmt.Errorf("wgpu: request device: %w", err)
	}

	d := newDevice(instance, adapter, dev)
	d.surface = &Surface{d: d, surface: surface}

	info := d.Info()
	logging.Logger().Info("wgpu: adapter selected",
		"name", info.Name, "type", info.DeviceType, "backend", info.Backend, "driver", info.Driver)
	return &backend.Session{Backend: backend.BackendWGPU, Device: d, Surface: d.surface}, nil
}
