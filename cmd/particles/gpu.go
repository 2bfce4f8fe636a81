//go:build !nogpu

package main

import _ "github.com/gogpu/particles/backend/wgpu" // windowed runs
