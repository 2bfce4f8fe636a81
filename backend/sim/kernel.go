// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package sim

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/particles/internal/parallel"
	"github.com/gogpu/particles/particle"
)

// Kernel executes one compute dispatch of groups workgroups over the
// bound storage buffer data, in place.
type Kernel func(data []byte, groups [3]uint32) error

// Simulation constants. Must match simulate.wgsl.
const (
	stepDT         = 0.016
	damping        = 0.98
	settleDistance = 0.001
	minMass        = 0.0001
	swirl          = 0.5
)

// kernelGrain is the fewest particles stepped per task.
const kernelGrain = 4096

// ParticleKernel returns the CPU rendition of the simulation program for
// layout l. Invocations beyond the dispatched workgroups do not run.
// Large fields are stepped on the shared worker pool.
func ParticleKernel(l particle.Layout, workgroupSize uint32) Kernel {
	return func(data []byte, groups [3]uint32) error {
		ps, err := particle.Decode(l, data)
		if err != nil {
			return err
		}
		n := min(uint64(len(ps)), uint64(groups[0])*uint64(groups[1])*uint64(groups[2])*uint64(workgroupSize))
		parallel.Shared().Range(int(n), kernelGrain, func(lo, hi int) {
			for i := range ps[lo:hi] {
				Step(&ps[lo+i])
			}
		})
		out, err := particle.Encode(l, ps)
		if err != nil {
			return err
		}
		if len(out) != len(data) {
			return fmt.Errorf("sim: kernel produced %d bytes for a %d byte buffer", len(out), len(data))
		}
		copy(data, out)
		return nil
	}
}

// Step advances one particle by one tick.
func Step(p *particle.Particle) {
	gas := p.Gas&particle.GasDrift != 0
	if p.IsStable() && !gas {
		return
	}
	dx := p.Target[0] - p.Position[0]
	dy := p.Target[1] - p.Position[1]
	if math32.Hypot(dx, dy) < settleDistance && !gas {
		p.Position = p.Target
		p.Velocity = [2]float32{}
		p.Stable = 1
		return
	}

	k := p.Force / math32.Max(p.Mass, minMass)
	ax, ay := dx*k, dy*k
	if gas {
		ax += -dy * swirl
		ay += dx * swirl
	}
	vx := (p.Velocity[0] + ax*stepDT) * damping
	vy := (p.Velocity[1] + ay*stepDT) * damping
	p.Velocity = [2]float32{vx, vy}
	p.Position[0] += vx * stepDT
	p.Position[1] += vy * stepDT
}
