package particle

import (
	"fmt"
	"strings"
)

// Layout selects the device memory layout of a particle record.
type Layout uint8

const (
	// LayoutLegacy stores [Particle] directly: explicit padding fields
	// align colour to 16 bytes, 80-byte stride.
	LayoutLegacy Layout = iota + 1

	// LayoutPadded stores a tightly packed [Record] inside a [Padded]
	// wrapper that rounds it up to the 64-byte array stride.
	LayoutPadded
)

// String returns the configuration name of the layout.
func (l Layout) String() string {
	switch l {
	case LayoutLegacy:
		return "legacy"
	case LayoutPadded:
		return "padded"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// ParseLayout parses a configuration name ("legacy" or "padded").
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy", "":
		return LayoutLegacy, nil
	case "padded":
		return LayoutPadded, nil
	default:
		return 0, fmt.Errorf("particle: unknown layout %q", s)
	}
}

// Stride returns the size in bytes of one element in the device buffer.
func (l Layout) Stride() uint64 {
	switch l {
	case LayoutLegacy:
		return LegacyStride
	case LayoutPadded:
		return PaddedStride
	default:
		return 0
	}
}

// Element strides.
const (
	LegacyStride = 80
	PaddedStride = 64
)

// Gas flags.
const (
	// GasDrift marks a particle that orbits its target and never settles.
	GasDrift uint32 = 1 << 0
)

// Particle is one simulated particle in the legacy layout.
// Must match struct Particle in particle_legacy.wgsl, including padding.
type Particle struct {
	ID       uint32     `wgsl:"id"`
	_        [3]uint32  // pad0..pad2
	Colour   [3]float32 `wgsl:"colour"`
	_        float32    // pad3
	Position [2]float32 `wgsl:"position"`
	Velocity [2]float32 `wgsl:"velocity"`
	Target   [2]float32 `wgsl:"target_pos"`
	Mass     float32    `wgsl:"mass"`
	Force    float32    `wgsl:"force"`
	Stable   float32    `wgsl:"stable"`
	Tags     uint32     `wgsl:"tags"`
	Gas      uint32     `wgsl:"gas"`
	_        uint32     // pad4
}

// Record is the packed particle used by the padded layout.
// Must match struct Particle in particle_padded.wgsl.
type Record struct {
	ID       uint32     `wgsl:"id"`
	Colour   [3]float32 `wgsl:"colour"`
	Position [2]float32 `wgsl:"position"`
	Velocity [2]float32 `wgsl:"velocity"`
	Target   [2]float32 `wgsl:"target_pos"`
	Mass     float32    `wgsl:"mass"`
	Force    float32    `wgsl:"force"`
	Stable   float32    `wgsl:"stable"`
	Tags     uint32     `wgsl:"tags"`
	Gas      uint32     `wgsl:"gas"`
}

// Padded wraps a Record up to the device array stride.
type Padded struct {
	Record
	_ uint32
}

// Record converts p to the packed form.
func (p Particle) Record() Record {
	return Record{
		ID:       p.ID,
		Colour:   p.Colour,
		Position: p.Position,
		Velocity: p.Velocity,
		Target:   p.Target,
		Mass:     p.Mass,
		Force:    p.Force,
		Stable:   p.Stable,
		Tags:     p.Tags,
		Gas:      p.Gas,
	}
}

// FromRecord converts a packed record back to a Particle.
func FromRecord(r Record) Particle {
	return Particle{
		ID:       r.ID,
		Colour:   r.Colour,
		Position: r.Position,
		Velocity: r.Velocity,
		Target:   r.Target,
		Mass:     r.Mass,
		Force:    r.Force,
		Stable:   r.Stable,
		Tags:     r.Tags,
		Gas:      r.Gas,
	}
}

// IsStable reports whether the particle reached its target.
func (p Particle) IsStable() bool { return p.Stable > 0.5 }
