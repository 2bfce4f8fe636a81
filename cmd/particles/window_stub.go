//go:build nowindow

package main

import (
	"errors"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/particles/config"
)

// window is not available in nowindow builds.
type window struct{}

func openWindow(config.Window) (*window, error) {
	return nil, errors.New("built without window support, use -headless")
}

func (*window) Handles() (display, window uintptr) { return 0, 0 }
func (*window) Poll() bool                          { return false }
func (*window) Close()                              {}
func (*window) OnClose(func())                      {}
func (*window) events() gpucontext.EventSource      { return nil }
