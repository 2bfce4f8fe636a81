// Package config holds the run configuration of the particle simulation.
//
// A Config is a plain record with one section per concern. Default
// documents every default value; Load overlays a TOML or YAML file on
// top of the defaults, so a file only needs the keys it changes:
//
//	[swapchain]
//	present_modes = ["fifo"]
//	clear = "black"
//
//	[simulation]
//	particles = 4096
package config

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"

	"github.com/gogpu/particles/backend"
	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/swapchain"
	"github.com/gogpu/particles/particle"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the complete run configuration.
type Config struct {
	Window     Window     `toml:"window" yaml:"window"`
	Device     Device     `toml:"device" yaml:"device"`
	Swapchain  Swapchain  `toml:"swapchain" yaml:"swapchain"`
	Simulation Simulation `toml:"simulation" yaml:"simulation"`
	Debug      Debug      `toml:"debug" yaml:"debug"`
	Metrics    Metrics    `toml:"metrics" yaml:"metrics"`
}

// Window configures the output window.
type Window struct {
	// Title is the window title.
	Title string `toml:"title" yaml:"title"`

	// Width and Height are the initial client area size in pixels.
	Width  uint32 `toml:"width" yaml:"width"`
	Height uint32 `toml:"height" yaml:"height"`

	// Headless runs without a window on the sim backend.
	Headless bool `toml:"headless" yaml:"headless"`
}

// Device selects the GPU backend.
type Device struct {
	// Backend is "auto", "wgpu" or "sim".
	Backend string `toml:"backend" yaml:"backend"`

	// HighPerformance prefers a discrete adapter.
	HighPerformance bool `toml:"high_performance" yaml:"high_performance"`
}

// Swapchain holds the swapchain preferences.
type Swapchain struct {
	// PresentModes in order of preference: "mailbox", "immediate",
	// "fifo_relaxed" or "fifo". Fifo is used when none is supported.
	PresentModes []string `toml:"present_modes" yaml:"present_modes"`

	// ImageCount is the requested number of swap images. 0 requests one
	// more than the surface minimum.
	ImageCount uint32 `toml:"image_count" yaml:"image_count"`

	// Clear is the background colour: an SVG colour name or #rrggbb.
	Clear string `toml:"clear" yaml:"clear"`
}

// Simulation configures the particle field.
type Simulation struct {
	// Particles is the number of particles.
	Particles int `toml:"particles" yaml:"particles"`

	// Layout is the host record layout, "legacy" or "padded".
	Layout string `toml:"layout" yaml:"layout"`

	// Seed fixes the initial field.
	Seed uint64 `toml:"seed" yaml:"seed"`

	// Petals is the number of petals of the target rose curve.
	Petals int `toml:"petals" yaml:"petals"`

	// GasEvery marks every n-th particle as drifting gas. 0 disables gas.
	GasEvery int `toml:"gas_every" yaml:"gas_every"`
}

// Debug enables runtime checks and diagnostics.
type Debug struct {
	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// VerifyTransfer reads the particle buffer back after the initial
	// upload and compares it with the host copy.
	VerifyTransfer bool `toml:"verify_transfer" yaml:"verify_transfer"`

	// EchoRecords logs the first n uploaded records.
	EchoRecords int `toml:"echo_records" yaml:"echo_records"`

	// VerifyLag checks the one-tick lag on every submission.
	VerifyLag bool `toml:"verify_lag" yaml:"verify_lag"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// Enabled serves /metrics on Addr.
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// Addr is the listen address.
	Addr string `toml:"addr" yaml:"addr"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Window: Window{
			Title:  "particles",
			Width:  800,
			Height: 600,
		},
		Device: Device{
			Backend:         backend.BackendAuto,
			HighPerformance: true,
		},
		Swapchain: Swapchain{
			PresentModes: []string{"mailbox", "immediate"},
			Clear:        "magenta",
		},
		Simulation: Simulation{
			Particles: 1024,
			Layout:    particle.LayoutLegacy.String(),
			Seed:      1,
			Petals:    3,
			GasEvery:  16,
		},
		Debug: Debug{
			LogLevel:    "info",
			EchoRecords: 4,
		},
		Metrics: Metrics{
			Addr: "localhost:9464",
		},
	}
}

// Validate reports every impossible value. The error wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if !c.Window.Headless && (c.Window.Width == 0 || c.Window.Height == 0) {
		bad("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	switch c.Device.Backend {
	case backend.BackendAuto, backend.BackendWGPU, backend.BackendSim:
	default:
		bad("unknown backend %q", c.Device.Backend)
	}
	if _, err := c.Swapchain.Preferences(); err != nil {
		errs = append(errs, err)
	}
	if c.Simulation.Particles < 0 {
		bad("negative particle count %d", c.Simulation.Particles)
	}
	if _, err := particle.ParseLayout(c.Simulation.Layout); err != nil {
		bad("%v", err)
	}
	if c.Simulation.Petals < 0 || c.Simulation.GasEvery < 0 {
		bad("negative petals %d or gas_every %d", c.Simulation.Petals, c.Simulation.GasEvery)
	}
	if _, err := ParseLevel(c.Debug.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Debug.EchoRecords < 0 {
		bad("negative echo_records %d", c.Debug.EchoRecords)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		bad("metrics enabled without an address")
	}
	return errors.Join(errs...)
}

// Extent returns the window size.
func (w Window) Extent() gpucore.Extent {
	return gpucore.Extent{Width: w.Width, Height: w.Height}
}

// Preferences converts the section to swapchain preferences.
func (s Swapchain) Preferences() (swapchain.Preferences, error) {
	p := swapchain.DefaultPreferences()
	p.PresentModes = p.PresentModes[:0:0]
	for _, name := range s.PresentModes {
		m, err := ParsePresentMode(name)
		if err != nil {
			return swapchain.Preferences{}, err
		}
		p.PresentModes = append(p.PresentModes, m)
	}
	p.ImageCount = s.ImageCount
	if s.Clear != "" {
		c, err := ParseColor(s.Clear)
		if err != nil {
			return swapchain.Preferences{}, err
		}
		p.Clear = c
	}
	return p, nil
}

// ParticleLayout returns the parsed record layout.
func (s Simulation) ParticleLayout() (particle.Layout, error) {
	return particle.ParseLayout(s.Layout)
}

// Field returns the initial field configuration.
func (s Simulation) Field() particle.FieldConfig {
	return particle.FieldConfig{
		Count:    s.Particles,
		Seed:     s.Seed,
		Petals:   s.Petals,
		GasEvery: s.GasEvery,
	}
}

// ParsePresentMode parses a present mode name.
func ParsePresentMode(s string) (gpucore.PresentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo", "vsync":
		return gpucore.PresentModeFifo, nil
	case "fifo_relaxed", "fiforelaxed":
		return gpucore.PresentModeFifoRelaxed, nil
	case "immediate":
		return gpucore.PresentModeImmediate, nil
	case "mailbox":
		return gpucore.PresentModeMailbox, nil
	}
	return 0, fmt.Errorf("%w: unknown present mode %q", ErrInvalid, s)
}

// ParseColor parses an SVG colour name or a #rrggbb / #rrggbbaa value.
func ParseColor(s string) (gpucore.Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := colornames.Map[s]; ok {
		return toColor(c), nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || (len(hex) != 6 && len(hex) != 8) {
		return gpucore.Color{}, fmt.Errorf("%w: unknown colour %q", ErrInvalid, s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return gpucore.Color{}, fmt.Errorf("%w: colour %q: %v", ErrInvalid, s, err)
	}
	return toColor(color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}), nil
}

func toColor(c color.RGBA) gpucore.Color {
	return gpucore.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
		A: float64(c.A) / 255,
	}
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, s)
	}
	return l, nil
}
