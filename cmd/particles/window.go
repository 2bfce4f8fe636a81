//go:build !nowindow

package main

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/particles/config"
)

func init() {
	// glfw must run on the main thread.
	runtime.LockOSThread()
}

// window is a glfw window without a client API. It is the surface target
// and the event source of the simulation.
type window struct {
	gpucontext.NullEventSource

	glw             *glfw.Window
	display, handle uintptr
}

func openWindow(cfg config.Window) (*window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glw, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw: %w", err)
	}
	display, handle, err := nativeHandles(glw)
	if err != nil {
		glw.Destroy()
		glfw.Terminate()
		return nil, err
	}
	return &window{glw: glw, display: display, handle: handle}, nil
}

// Handles implements backend.NativeWindow.
func (w *window) Handles() (display, window uintptr) {
	return w.display, w.handle
}

// Poll processes pending window events and reports whether the window
// is still open.
func (w *window) Poll() bool {
	glfw.PollEvents()
	return !w.glw.ShouldClose()
}

func (w *window) Close() {
	w.glw.Destroy()
	glfw.Terminate()
}

// events returns w as an event source, or nil when there is no window.
func (w *window) events() gpucontext.EventSource {
	if w == nil {
		return nil
	}
	return w
}

// OnResize reports framebuffer sizes, which are in physical pixels.
func (w *window) OnResize(fn func(width, height int)) {
	w.glw.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		fn(width, height)
	})
}

func (w *window) OnMouseMove(fn func(x, y float64)) {
	w.glw.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		fn(x, y)
	})
}

func (w *window) OnKeyPress(fn func(gpucontext.Key, gpucontext.Modifiers)) {
	w.glw.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		fn(keys[key], modifiers(mods))
	})
}

// OnClose calls fn when the user asks to close the window. The window
// stays open until Close.
func (w *window) OnClose(fn func()) {
	w.glw.SetCloseCallback(func(glw *glfw.Window) {
		glw.SetShouldClose(false)
		fn()
	})
}

var keys = map[glfw.Key]gpucontext.Key{
	glfw.KeyEscape: gpucontext.KeyEscape,
	glfw.KeyEnter:  gpucontext.KeyEnter,
	glfw.KeySpace:  gpucontext.KeySpace,
}

func modifiers(m glfw.ModifierKey) gpucontext.Modifiers {
	var out gpucontext.Modifiers
	if m&glfw.ModShift != 0 {
		out |= gpucontext.ModShift
	}
	if m&glfw.ModControl != 0 {
		out |= gpucontext.ModControl
	}
	if m&glfw.ModAlt != 0 {
		out |= gpucontext.ModAlt
	}
	if m&glfw.ModSuper != 0 {
		out |= gpucontext.ModSuper
	}
	return out
}
