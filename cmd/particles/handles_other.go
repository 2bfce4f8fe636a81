//go:build (!linux || wayland) && !windows && !nowindow

package main

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// nativeHandles fails: presenting on this platform needs a CAMetalLayer
// attached to the window's content view.
func nativeHandles(*glfw.Window) (display, window uintptr, err error) {
	return 0, 0, fmt.Errorf("windowed mode is not supported on %s, use -headless", runtime.GOOS)
}
