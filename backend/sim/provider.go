// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sim

import (
	"context"

	"github.com/gogpu/particles/backend"
	"github.com/gogpu/particles/particle"
)

func init() {
	backend.Register(backend.BackendSim, func() backend.Provider {
		return provider{}
	})
}

type provider struct{}

func (provider) Name() string { return backend.BackendSim }

// Open creates a simulated device running the particle kernel for
// t.Layout. The window, if any, is ignored.
func (provider) Open(ctx context.Context, t backend.Target) (*backend.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, wg := t.Layout, t.WorkgroupSize
	if l == 0 {
		l = particle.LayoutLegacy
	}
	if wg == 0 {
		wg = 64
	}
	d := New(WithKernel(ParticleKernel(l, wg)))
	return &backend.Session{Backend: backend.BackendSim, Device: d, Surface: d.NewSurface()}, nil
}
