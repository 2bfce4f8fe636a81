// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import (
	"sync"

	"github.com/gogpu/gpucontext"
)

// Pump collects window-system callbacks as Events.
//
// Window systems deliver input through callbacks on the thread that polls
// them, usually the same thread that runs the orchestrator. Pump queues
// the events so the loop can drain and handle them after polling. Push is
// safe to call from other goroutines.
type Pump struct {
	mu    sync.Mutex
	queue []Event
}

// NewPump subscribes to src. Escape requests a close.
func NewPump(src gpucontext.EventSource) *Pump {
	p := &Pump{}
	if src == nil {
		return p
	}
	src.OnResize(func(width, height int) {
		p.Push(Resized{Width: uint32(max(width, 0)), Height: uint32(max(height, 0))})
	})
	src.OnMouseMove(func(x, y float64) {
		p.Push(CursorMoved{X: x, Y: y})
	})
	src.OnKeyPress(func(key gpucontext.Key, _ gpucontext.Modifiers) {
		if key == gpucontext.KeyEscape {
			p.Push(CloseRequested{})
		}
	})
	return p
}

// Push queues ev. A resize or cursor move directly following one of the
// same kind replaces it.
func (p *Pump) Push(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.queue); n > 0 {
		switch ev.(type) {
		case Resized:
			if _, ok := p.queue[n-1].(Resized); ok {
				p.queue[n-1] = ev
				return
			}
		case CursorMoved:
			if _, ok := p.queue[n-1].(CursorMoved); ok {
				p.queue[n-1] = ev
				return
			}
		}
	}
	p.queue = append(p.queue, ev)
}

// Drain returns the queued events in arrival order and empties the queue.
func (p *Pump) Drain() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.queue
	p.queue = nil
	return q
}

// Len returns the number of queued events.
func (p *Pump) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
