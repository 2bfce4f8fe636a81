package particle

import (
	"image/color"
	"math/rand/v2"

	"github.com/chewxy/math32"
	"golang.org/x/image/colornames"
)

// FieldConfig controls the initial particle field.
type FieldConfig struct {
	// Count is the number of particles.
	Count int

	// Seed fixes masses, forces and starting positions.
	Seed uint64

	// Petals is the number of petals of the rose curve the targets lie on.
	// If 0, defaults to 3.
	Petals int

	// GasEvery marks every n-th particle as drifting gas. 0 disables gas.
	GasEvery int

	// Palette colours the particles round-robin. If empty, DefaultPalette.
	Palette []color.RGBA
}

// DefaultPalette returns the default particle colours.
func DefaultPalette() []color.RGBA {
	return []color.RGBA{
		colornames.Orangered,
		colornames.Gold,
		colornames.Deepskyblue,
		colornames.Mediumspringgreen,
		colornames.Violet,
		colornames.White,
	}
}

// Field builds the initial particle sequence. Particles start scattered in
// the unit disk at rest and each heads for a target on a rose curve.
// Positions are in normalised device coordinates.
func Field(cfg FieldConfig) []Particle {
	if cfg.Count <= 0 {
		return []Particle{}
	}
	petals := cfg.Petals
	if petals == 0 {
		petals = 3
	}
	palette := cfg.Palette
	if len(palette) == 0 {
		palette = DefaultPalette()
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	ps := make([]Particle, cfg.Count)
	for i := range ps {
		theta := 2 * math32.Pi * float32(i) / float32(cfg.Count)
		r := 0.8 * math32.Cos(float32(petals)*theta)

		// Uniform in the disk: sqrt of a uniform radius.
		sr := 0.9 * math32.Sqrt(rng.Float32())
		sa := 2 * math32.Pi * rng.Float32()

		c := palette[i%len(palette)]
		p := Particle{
			ID:       uint32(i),
			Colour:   [3]float32{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255},
			Position: [2]float32{sr * math32.Cos(sa), sr * math32.Sin(sa)},
			Target:   [2]float32{r * math32.Cos(theta), r * math32.Sin(theta)},
			Mass:     0.5 + 1.5*rng.Float32(),
			Force:    0.5 + rng.Float32(),
			Tags:     uint32(i % petals),
		}
		if cfg.GasEvery > 0 && i%cfg.GasEvery == 0 {
			p.Gas = GasDrift
		}
		ps[i] = p
	}
	return ps
}
