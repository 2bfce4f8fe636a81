package color

import (
	"math"
	"testing"

	"github.com/gogpu/particles/gpucore"
)

func TestRoundTrip(t *testing.T) {
	for i := 0; i <= 255; i++ {
		s := float64(i) / 255
		if got := LinearToSRGB(SRGBToLinear(s)); math.Abs(got-s) > 1e-9 {
			t.Errorf("LinearToSRGB(SRGBToLinear(%v)) = %v", s, got)
		}
	}
}

func TestSRGBToLinearKnownValues(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{1, 1},
		{0.04045, 0.04045 / 12.92},
		{0.5, 0.21404114048223255},
	}
	for _, tt := range tests {
		if got := SRGBToLinear(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("SRGBToLinear(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClearValue(t *testing.T) {
	grey := gpucore.Color{R: 0.5, G: 0.5, B: 0.5, A: 0.5}
	tests := []struct {
		name   string
		format gpucore.TextureFormat
		want   gpucore.Color
	}{
		{"unorm", gpucore.TextureFormatBGRA8Unorm, grey},
		{"float", gpucore.TextureFormatRGBA16Float, grey},
		{"srgb", gpucore.TextureFormatBGRA8UnormSrgb, gpucore.Color{
			R: SRGBToLinear(0.5), G: SRGBToLinear(0.5), B: SRGBToLinear(0.5), A: 0.5,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClearValue(grey, tt.format); got != tt.want {
				t.Errorf("ClearValue() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClearValueKeepsPrimaries(t *testing.T) {
	magenta := gpucore.Color{R: 1, G: 0, B: 1, A: 1}
	if got := ClearValue(magenta, gpucore.TextureFormatRGBA8UnormSrgb); got != magenta {
		t.Errorf("ClearValue(magenta) = %+v, want unchanged", got)
	}
	over := gpucore.Color{R: 2, G: -1, B: 1, A: 1}
	if got := ClearValue(over, gpucore.TextureFormatRGBA8UnormSrgb); got != magenta {
		t.Errorf("ClearValue(%+v) = %+v, want clamped to %+v", over, got, magenta)
	}
}
