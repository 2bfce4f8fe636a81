// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpucore

import "fmt"

// QueueKind identifies one of the two device queues.
type QueueKind uint8

const (
	// QueueCompute is the compute-capable queue. Transfers run here too.
	QueueCompute QueueKind = iota + 1

	// QueueGraphics is the graphics and present capable queue.
	QueueGraphics
)

// String returns the queue name.
func (k QueueKind) String() string {
	switch k {
	case QueueCompute:
		return "compute"
	case QueueGraphics:
		return "graphics"
	default:
		return fmt.Sprintf("QueueKind(%d)", uint8(k))
	}
}

// Future identifies the completion of one queue submission.
//
// The zero value is the pseudo-completed token returned by [Now]:
// waiting on it returns immediately and listing it as a dependency
// adds no ordering. Serial numbers are unique per device and increase
// with submission order.
type Future struct {
	Queue  QueueKind
	Serial uint64
}

// Now returns the pseudo-completed token.
func Now() Future { return Future{} }

// IsNow reports whether f is the pseudo-completed token.
func (f Future) IsNow() bool { return f.Serial == 0 }

func (f Future) String() string {
	if f.IsNow() {
		return "now"
	}
	return fmt.Sprintf("%s#%d", f.Queue, f.Serial)
}

// Join returns the dependency list for a submission that must wait for
// all of fs. Pseudo-completed tokens are dropped.
func Join(fs ...Future) []Future {
	out := make([]Future, 0, len(fs))
	for _, f := range fs {
		if !f.IsNow() {
			out = append(out, f)
		}
	}
	return out
}
