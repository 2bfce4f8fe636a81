// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

import "time"

// fpsWindow is the number of frame intervals averaged by fpsMeter.
const fpsWindow = 15

// fpsMeter averages the interval between the last fpsWindow frames.
type fpsMeter struct {
	samples [fpsWindow]time.Duration
	sum     time.Duration
	n       int
	next    int
	last    time.Time
	frames  uint64
}

// tick records a frame presented at now and returns the rolling rate.
// ok is false until one interval has been measured.
func (m *fpsMeter) tick(now time.Time) (fps float64, ok bool) {
	m.frames++
	if m.last.IsZero() {
		m.last = now
		return 0, false
	}
	d := now.Sub(m.last)
	m.last = now

	m.sum -= m.samples[m.next]
	m.samples[m.next] = d
	m.sum += d
	m.next = (m.next + 1) % fpsWindow
	if m.n < fpsWindow {
		m.n++
	}
	if m.sum <= 0 {
		return 0, false
	}
	return float64(m.n) / m.sum.Seconds(), true
}

// reset forgets the history, so that a stall such as a rebuild does not
// skew the average.
func (m *fpsMeter) reset() {
	*m = fpsMeter{frames: m.frames}
}
