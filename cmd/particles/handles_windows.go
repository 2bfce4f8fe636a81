//go:build windows && !nowindow

package main

import (
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// nativeHandles returns the HWND. A zero HINSTANCE selects the module
// of the executable.
func nativeHandles(w *glfw.Window) (display, window uintptr, err error) {
	return 0, uintptr(unsafe.Pointer(w.GetWin32Window())), nil
}
