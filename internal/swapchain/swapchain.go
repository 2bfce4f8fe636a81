// Package swapchain negotiates the swapchain with the surface and
// rebuilds it together with everything that depends on it.
//
// A rebuild replaces, as one unit, the swap images and their framebuffer
// views, the render pipeline (its viewport is baked in) and one render
// command buffer per image. Old objects are destroyed only after the new
// set was built, so a transient failure leaves the previous swapchain
// usable.
package swapchain

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/color"
	"github.com/gogpu/particles/internal/commands"
	"github.com/gogpu/particles/internal/logging"
	"github.com/gogpu/particles/internal/metrics"
)

// ErrNoFormat is returned when the surface reports no image format.
var ErrNoFormat = errors.New("swapchain: surface supports no format")

// Preferences are the caller's wishes for the swapchain. Negotiate picks
// the closest configuration the surface supports.
type Preferences struct {
	// PresentModes in order of preference. Fifo is used when none is
	// supported.
	PresentModes []gpucore.PresentMode

	// Formats in order of preference. The surface's first format is used
	// when none is supported.
	Formats []gpucore.TextureFormat

	// ImageCount is the requested number of swap images. 0 requests one
	// more than the surface minimum.
	ImageCount uint32

	// Clear is the sRGB-encoded colour render passes clear to. It is
	// decoded for sRGB swap image formats.
	Clear gpucore.Color
}

// DefaultPreferences favours low latency presentation (Mailbox, then
// Immediate) and clears to magenta.
func DefaultPreferences() Preferences {
	return Preferences{
		PresentModes: []gpucore.PresentMode{gpucore.PresentModeMailbox, gpucore.PresentModeImmediate},
		Formats:      []gpucore.TextureFormat{gpucore.TextureFormatBGRA8Unorm, gpucore.TextureFormatRGBA8Unorm},
		Clear:        gpucore.Color{R: 1, G: 0, B: 1, A: 1},
	}
}

// Negotiate chooses a surface configuration for a window of size extent.
// A zero window extent yields gpucore.ErrTransientExtent.
func Negotiate(caps gpucore.SurfaceCapabilities, p Preferences, extent gpucore.Extent) (gpucore.SurfaceConfig, error) {
	if extent.IsZero() {
		return gpucore.SurfaceConfig{}, fmt.Errorf("%w: window is %v", gpucore.ErrTransientExtent, extent)
	}
	if len(caps.Formats) == 0 {
		return gpucore.SurfaceConfig{}, ErrNoFormat
	}

	cfg := gpucore.SurfaceConfig{
		Extent:      chooseExtent(caps, extent),
		Format:      caps.Formats[0],
		PresentMode: gpucore.PresentModeFifo,
	}
	if cfg.Extent.IsZero() {
		return gpucore.SurfaceConfig{}, fmt.Errorf("%w: surface allows %v..%v", gpucore.ErrTransientExtent, caps.MinExtent, caps.MaxExtent)
	}
	for _, f := range p.Formats {
		if slices.Contains(caps.Formats, f) {
			cfg.Format = f
			break
		}
	}
	for _, m := range p.PresentModes {
		if slices.Contains(caps.PresentModes, m) {
			cfg.PresentMode = m
			break
		}
	}

	cfg.ImageCount = p.ImageCount
	if cfg.ImageCount == 0 {
		cfg.ImageCount = caps.MinImageCount + 1
	}
	cfg.ImageCount = max(cfg.ImageCount, caps.MinImageCount, 1)
	if caps.MaxImageCount > 0 {
		cfg.ImageCount = min(cfg.ImageCount, caps.MaxImageCount)
	}
	return cfg, nil
}

// chooseExtent uses the surface's current extent when the platform fixes
// it and otherwise clamps the window extent to the supported range.
func chooseExtent(caps gpucore.SurfaceCapabilities, window gpucore.Extent) gpucore.Extent {
	if !caps.CurrentExtent.IsZero() {
		return caps.CurrentExtent
	}
	e := window
	if !caps.MaxExtent.IsZero() {
		e.Width = min(e.Width, caps.MaxExtent.Width)
		e.Height = min(e.Height, caps.MaxExtent.Height)
	}
	e.Width = max(e.Width, caps.MinExtent.Width)
	e.Height = max(e.Height, caps.MinExtent.Height)
	return e
}

// Manager owns the swapchain and its dependent objects.
type Manager struct {
	dev     gpucore.Device
	surface gpucore.Surface
	builder *commands.Builder
	rec     metrics.Recorder
	prefs   Preferences

	cfg        gpucore.SurfaceConfig
	views      []gpucore.TextureViewID
	pipeline   gpucore.RenderPipelineID
	commands   []gpucore.CommandBufferID
	generation int
}

// New creates a manager. Nothing is configured until the first Rebuild.
// A nil rec discards metrics.
func New(dev gpucore.Device, surface gpucore.Surface, b *commands.Builder, prefs Preferences, rec metrics.Recorder) *Manager {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Manager{dev: dev, surface: surface, builder: b, rec: rec, prefs: prefs}
}

// Preferences returns the current preferences.
func (m *Manager) Preferences() Preferences { return m.prefs }

// SetPreferences replaces the preferences. They apply from the next
// Rebuild.
func (m *Manager) SetPreferences(p Preferences) { m.prefs = p }

// Config returns the active configuration.
func (m *Manager) Config() gpucore.SurfaceConfig { return m.cfg }

// Images returns the number of swap images.
func (m *Manager) Images() int { return len(m.views) }

// Views returns the framebuffer view of every swap image.
func (m *Manager) Views() []gpucore.TextureViewID { return slices.Clone(m.views) }

// Commands returns the render command buffer of swap image i.
func (m *Manager) Commands(i uint32) gpucore.CommandBufferID {
	if int(i) >= len(m.commands) {
		return gpucore.InvalidID
	}
	return m.commands[i]
}

// CommandCount returns the number of render command buffers.
func (m *Manager) CommandCount() int { return len(m.commands) }

// Pipeline returns the active render pipeline.
func (m *Manager) Pipeline() gpucore.RenderPipelineID { return m.pipeline }

// Generation returns the number of successful rebuilds.
func (m *Manager) Generation() int { return m.generation }

// Rebuild recreates the swapchain for a window of size extent. It waits
// for the device to go idle before touching any object in use.
//
// A transiently unsupported extent returns an error wrapping
// gpucore.ErrTransientExtent and keeps the previous swapchain. Every other
// error is fatal.
func (m *Manager) Rebuild(ctx context.Context, extent gpucore.Extent) error {
	caps, err := m.surface.Capabilities()
	if err != nil {
		return fmt.Errorf("swapchain: capabilities: %w", err)
	}
	cfg, err := Negotiate(caps, m.prefs, extent)
	if err != nil {
		if errors.Is(err, gpucore.ErrTransientExtent) {
			m.rec.Rebuild(metrics.RebuildTransient)
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dev.WaitIdle(); err != nil {
		return fmt.Errorf("swapchain: drain before rebuild: %w", err)
	}

	views, err := m.surface.Configure(&cfg)
	if err != nil {
		if errors.Is(err, gpucore.ErrTransientExtent) {
			m.rec.Rebuild(metrics.RebuildTransient)
			return err
		}
		return fmt.Errorf("swapchain: configure %v: %w", cfg.Extent, err)
	}

	pipeline, cbs, err := m.record(cfg, views)
	if err != nil {
		return err
	}
	m.releaseFrames()
	m.cfg, m.views, m.pipeline, m.commands = cfg, views, pipeline, cbs
	m.generation++
	m.rec.Rebuild(metrics.RebuildOK)
	logging.Logger().Info("swapchain: built",
		"extent", cfg.Extent, "images", len(views), "format", cfg.Format,
		"present_mode", cfg.PresentMode, "generation", m.generation)
	return nil
}

// record creates the pipeline and per-image command buffers for cfg.
func (m *Manager) record(cfg gpucore.SurfaceConfig, views []gpucore.TextureViewID) (gpucore.RenderPipelineID, []gpucore.CommandBufferID, error) {
	pipeline, err := m.builder.RenderPipeline(cfg.Format, cfg.Extent)
	if err != nil {
		return gpucore.InvalidID, nil, err
	}
	clearValue := color.ClearValue(m.prefs.Clear, cfg.Format)
	cbs := make([]gpucore.CommandBufferID, 0, len(views))
	for _, v := range views {
		cb, err := m.builder.RenderCommands(pipeline, v, cfg.Extent, clearValue)
		if err != nil {
			for _, c := range cbs {
				m.dev.DestroyCommandBuffer(c)
			}
			m.dev.DestroyRenderPipeline(pipeline)
			return gpucore.InvalidID, nil, err
		}
		cbs = append(cbs, cb)
	}
	return pipeline, cbs, nil
}

func (m *Manager) releaseFrames() {
	for _, cb := range m.commands {
		m.dev.DestroyCommandBuffer(cb)
	}
	m.commands = nil
	if m.pipeline != gpucore.InvalidID {
		m.dev.DestroyRenderPipeline(m.pipeline)
		m.pipeline = gpucore.InvalidID
	}
}

// Release destroys the command buffers and pipeline and unconfigures the
// surface. All work using them must have completed.
func (m *Manager) Release() {
	m.releaseFrames()
	if m.views != nil {
		m.surface.Unconfigure()
		m.views = nil
	}
}
