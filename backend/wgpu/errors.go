// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/particles/gpucore"
)

// errNotAcquired is returned when a render pass targets a swap image that
// is not the one currently acquired.
var errNotAcquired = errors.New("wgpu: swap image not acquired")

// errPending keeps the fence poll retrying.
var errPending = errors.New("wgpu: submission pending")

// translate maps wgpu errors onto the gpucore conditions the scheduler
// reacts to. Other errors are returned wrapped.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wgpu.ErrSurfaceOutdated):
		return fmt.Errorf("wgpu: %s: %w", op, gpucore.ErrOutOfDate)
	case errors.Is(err, wgpu.ErrSurfaceLost):
		return fmt.Errorf("wgpu: %s: %w", op, gpucore.ErrSurfaceLost)
	case errors.Is(err, wgpu.ErrDeviceLost):
		return fmt.Errorf("wgpu: %s: %w", op, gpucore.ErrDeviceLost)
	case errors.Is(err, hal.ErrZeroArea):
		return fmt.Errorf("wgpu: %s: %w", op, gpucore.ErrTransientExtent)
	case errors.Is(err, wgpu.ErrReleased):
		return fmt.Errorf("wgpu: %s: %w", op, gpucore.ErrReleased)
	}
	return fmt.Errorf("wgpu: %s: %w", op, err)
}
