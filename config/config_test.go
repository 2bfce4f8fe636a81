package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/particle"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	p, err := cfg.Swapchain.Preferences()
	if err != nil {
		t.Fatal(err)
	}
	if len(p.PresentModes) != 2 || p.PresentModes[0] != gpucore.PresentModeMailbox || p.PresentModes[1] != gpucore.PresentModeImmediate {
		t.Errorf("PresentModes = %v, want [Mailbox Immediate]", p.PresentModes)
	}
	if p.Clear != (gpucore.Color{R: 1, G: 0, B: 1, A: 1}) {
		t.Errorf("Clear = %+v, want magenta", p.Clear)
	}
	if cfg.Simulation.Particles != 1024 {
		t.Errorf("Particles = %d, want 1024", cfg.Simulation.Particles)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero window", func(c *Config) { c.Window.Width = 0 }},
		{"backend", func(c *Config) { c.Device.Backend = "vulkan" }},
		{"present mode", func(c *Config) { c.Swapchain.PresentModes = []string{"tearing"} }},
		{"clear", func(c *Config) { c.Swapchain.Clear = "#12345" }},
		{"particles", func(c *Config) { c.Simulation.Particles = -1 }},
		{"layout", func(c *Config) { c.Simulation.Layout = "packed" }},
		{"petals", func(c *Config) { c.Simulation.Petals = -2 }},
		{"log level", func(c *Config) { c.Debug.LogLevel = "loud" }},
		{"echo", func(c *Config) { c.Debug.EchoRecords = -1 }},
		{"metrics", func(c *Config) { c.Metrics.Enabled, c.Metrics.Addr = true, "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestHeadlessAllowsZeroWindow(t *testing.T) {
	cfg := Default()
	cfg.Window.Headless = true
	cfg.Window.Width, cfg.Window.Height = 0, 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want gpucore.Color
	}{
		{"black", gpucore.Color{A: 1}},
		{"Magenta", gpucore.Color{R: 1, B: 1, A: 1}},
		{"#ff0000", gpucore.Color{R: 1, A: 1}},
		{"#00ff0000", gpucore.Color{G: 1}},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if err != nil {
			t.Errorf("ParseColor(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseColor(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
	for _, in := range []string{"", "#fff", "#gg0000", "no-such-colour"} {
		if _, err := ParseColor(in); err == nil {
			t.Errorf("ParseColor(%q) error = nil", in)
		}
	}
}

func TestParsePresentMode(t *testing.T) {
	tests := []struct {
		in   string
		want gpucore.PresentMode
	}{
		{"fifo", gpucore.PresentModeFifo},
		{"VSync", gpucore.PresentModeFifo},
		{"fifo_relaxed", gpucore.PresentModeFifoRelaxed},
		{"immediate", gpucore.PresentModeImmediate},
		{" mailbox ", gpucore.PresentModeMailbox},
	}
	for _, tt := range tests {
		if got, err := ParsePresentMode(tt.in); err != nil || got != tt.want {
			t.Errorf("ParsePresentMode(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("debug"); err != nil || l != slog.LevelDebug {
		t.Errorf("ParseLevel(debug) = %v, %v", l, err)
	}
	if l, err := ParseLevel("WARN"); err != nil || l != slog.LevelWarn {
		t.Errorf("ParseLevel(WARN) = %v, %v", l, err)
	}
}

const tomlConfig = `
[window]
width = 1280
height = 720

[swapchain]
present_modes = ["fifo"]
clear = "black"

[simulation]
particles = 4096
layout = "padded"
`

const yamlConfig = `
window:
  width: 1280
  height: 720
swapchain:
  present_modes: [fifo]
  clear: black
simulation:
  particles: 4096
  layout: padded
`

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		name string
		data string
		f    Format
	}{
		{"toml", tomlConfig, FormatTOML},
		{"yaml", yamlConfig, FormatYAML},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.data), tt.f)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Window.Extent() != (gpucore.Extent{Width: 1280, Height: 720}) {
				t.Errorf("Extent() = %v, want 1280x720", cfg.Window.Extent())
			}
			if cfg.Simulation.Particles != 4096 {
				t.Errorf("Particles = %d, want 4096", cfg.Simulation.Particles)
			}
			if l, err := cfg.Simulation.ParticleLayout(); err != nil || l != particle.LayoutPadded {
				t.Errorf("ParticleLayout() = %v, %v; want padded", l, err)
			}
			// Keys absent from the file keep their defaults.
			if cfg.Window.Title != "particles" || cfg.Simulation.Seed != 1 || cfg.Debug.LogLevel != "info" {
				t.Errorf("defaults lost: %+v", cfg)
			}
			p, err := cfg.Swapchain.Preferences()
			if err != nil {
				t.Fatal(err)
			}
			if len(p.PresentModes) != 1 || p.PresentModes[0] != gpucore.PresentModeFifo {
				t.Errorf("PresentModes = %v, want [Fifo]", p.PresentModes)
			}
			if p.Clear != (gpucore.Color{A: 1}) {
				t.Errorf("Clear = %+v, want black", p.Clear)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		f    Format
	}{
		{"unknown toml key", "[window]\ncolour = 1\n", FormatTOML},
		{"unknown yaml key", "window:\n  colour: 1\n", FormatYAML},
		{"invalid value", "[device]\nbackend = \"metal\"\n", FormatTOML},
		{"syntax", "[window\n", FormatTOML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.f); err == nil {
				t.Error("Parse() error = nil")
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	for _, f := range []Format{FormatTOML, FormatYAML} {
		cfg, err := Parse(nil, f)
		if err != nil {
			t.Fatalf("Parse(nil, %d) error = %v", f, err)
		}
		if cfg.Simulation.Particles != Default().Simulation.Particles {
			t.Errorf("Parse(nil, %d) did not return the defaults", f)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Simulation.Particles = 77
	for _, f := range []Format{FormatTOML, FormatYAML} {
		data, err := Marshal(cfg, f)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Parse(data, f)
		if err != nil {
			t.Fatalf("Parse(Marshal()) error = %v\n%s", err, data)
		}
		if got.Simulation.Particles != 77 {
			t.Errorf("Particles = %d after round trip, want 77", got.Simulation.Particles)
		}
	}
}

func TestFormatOf(t *testing.T) {
	tests := map[string]Format{
		"a.toml":       FormatTOML,
		"a.yaml":       FormatYAML,
		"dir/b.YML":    FormatYAML,
		"no-extension": FormatTOML,
	}
	for path, want := range tests {
		if got := FormatOf(path); got != want {
			t.Errorf("FormatOf(%q) = %d, want %d", path, got, want)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "particles.yaml")
	if err := os.WriteFile(path, []byte(yamlConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.Particles != 4096 {
		t.Errorf("Particles = %d, want 4096", cfg.Simulation.Particles)
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want ErrNotExist", err)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "particles.toml")
	if err := os.WriteFile(path, []byte(tomlConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := make(chan Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 10*time.Millisecond, func(cfg Config, err error) {
			if err != nil {
				return
			}
			select {
			case results <- cfg:
			default:
			}
		})
	}()

	// The watcher may not be registered yet; keep writing until a reload
	// is observed.
	updated := []byte(tomlConfig + "\n[debug]\nverify_lag = true\n")
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-results:
			if !cfg.Debug.VerifyLag {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch() = %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, updated, 0o600); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
