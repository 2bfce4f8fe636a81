// Package color encodes clear colours for render targets.
//
// Colours in configuration are sRGB-encoded. Render pass clear values are
// written through the target's encoding, so targets with an sRGB format
// need the linear value.
package color

import (
	"math"

	"github.com/gogpu/particles/gpucore"
)

// SRGBToLinear decodes an sRGB component in [0,1].
func SRGBToLinear(s float64) float64 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}

// LinearToSRGB encodes a linear component in [0,1].
func LinearToSRGB(l float64) float64 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*math.Pow(l, 1/2.4) - 0.055
}

// IsSRGB reports whether writes to format f are sRGB-encoded.
func IsSRGB(f gpucore.TextureFormat) bool {
	switch f {
	case gpucore.TextureFormatBGRA8UnormSrgb, gpucore.TextureFormatRGBA8UnormSrgb:
		return true
	}
	return false
}

// ClearValue returns the clear value that shows c on a target of format
// f. Alpha is never encoded.
func ClearValue(c gpucore.Color, f gpucore.TextureFormat) gpucore.Color {
	if !IsSRGB(f) {
		return c
	}
	return gpucore.Color{
		R: SRGBToLinear(clamp(c.R)),
		G: SRGBToLinear(clamp(c.G)),
		B: SRGBToLinear(clamp(c.B)),
		A: c.A,
	}
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
