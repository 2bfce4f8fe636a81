// Package stager moves host data into device-only buffers.
//
// An upload creates a host-visible source buffer, records a one-time copy
// into the destination, submits it on the compute queue and blocks until
// the copy completes. The source is released immediately afterwards.
// Uploads happen at startup only, so the blocking wait is acceptable.
package stager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/internal/logging"
	"github.com/gogpu/particles/internal/metrics"
)

// ErrTransferMismatch is returned by Verify when the device buffer does
// not hold the bytes that were uploaded.
var ErrTransferMismatch = errors.New("stager: device buffer differs from host data")

// copyAlignment is the granularity of buffer sizes and copies.
const copyAlignment = 4

// Option configures a Stager.
type Option func(*Stager)

// WithRecorder reports staging fence waits to rec.
func WithRecorder(rec metrics.Recorder) Option {
	return func(s *Stager) {
		if rec != nil {
			s.rec = rec
		}
	}
}

// Stager uploads to and downloads from device buffers.
type Stager struct {
	dev gpucore.Device
	rec metrics.Recorder
}

// New creates a Stager for dev.
func New(dev gpucore.Device, opts ...Option) *Stager {
	s := &Stager{dev: dev, rec: metrics.Nop{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload creates a device-only buffer with the given usage (CopyDst is
// added) and fills it with data.
//
// Parameters:
//   - label: debug label of the destination buffer.
//   - usage: how the destination will be bound.
//   - data: initial contents. May be empty.
//   - minSize: lower bound of the buffer size, for bindings that declare
//     a minimum size.
//
// The buffer is at least 4 bytes and a multiple of 4 bytes long; bytes
// past len(data) are zero. An empty upload creates the buffer without
// submitting any copy.
func (s *Stager) Upload(ctx context.Context, label string, usage gpucore.BufferUsage, data []byte, minSize uint64) (gpucore.BufferID, error) {
	size := alignUp(max(uint64(len(data)), minSize, copyAlignment))
	dst, err := s.dev.CreateBuffer(&gpucore.BufferDesc{
		Label: label,
		Size:  size,
		Usage: usage | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("stager: create %q: %w", label, err)
	}
	if len(data) == 0 {
		return dst, nil
	}
	if err := s.copyInto(ctx, label, dst, data); err != nil {
		s.dev.DestroyBuffer(dst)
		return gpucore.InvalidID, err
	}
	logging.Logger().Debug("stager: uploaded", "label", label, "bytes", len(data), "buffer_size", size)
	return dst, nil
}

func (s *Stager) copyInto(ctx context.Context, label string, dst gpucore.BufferID, data []byte) error {
	size := alignUp(uint64(len(data)))
	src, err := s.dev.CreateBuffer(&gpucore.BufferDesc{
		Label:       label + " staging",
		Size:        size,
		Usage:       gpucore.BufferUsageCopySrc,
		HostVisible: true,
	})
	if err != nil {
		return fmt.Errorf("stager: create staging for %q: %w", label, err)
	}
	defer s.dev.DestroyBuffer(src)

	if err := s.dev.WriteBuffer(src, 0, data); err != nil {
		return fmt.Errorf("stager: write staging for %q: %w", label, err)
	}
	cb, err := s.dev.CreateCommandBuffer(&gpucore.CommandList{
		Label:    label + " upload",
		Commands: []gpucore.Command{gpucore.CopyBuffer{Src: src, Dst: dst, Size: size}},
	})
	if err != nil {
		return fmt.Errorf("stager: record upload of %q: %w", label, err)
	}
	defer s.dev.DestroyCommandBuffer(cb)

	f, err := s.dev.Queue(gpucore.QueueCompute).Submit(&gpucore.SubmitInfo{
		Commands: []gpucore.CommandBufferID{cb},
	})
	if err != nil {
		return fmt.Errorf("stager: submit upload of %q: %w", label, err)
	}
	start := time.Now()
	if err := s.dev.Wait(ctx, f); err != nil {
		return fmt.Errorf("stager: wait for upload of %q: %w", label, err)
	}
	s.rec.FenceWait(metrics.WaitStaging, time.Since(start))
	return nil
}

// Download reads size bytes from the start of a device buffer. It is a
// diagnostic path and blocks until prior work on the buffer completed.
func (s *Stager) Download(ctx context.Context, id gpucore.BufferID, size uint64) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	data, err := s.dev.ReadBuffer(ctx, id, 0, size)
	if err != nil {
		return nil, fmt.Errorf("stager: download: %w", err)
	}
	return data, nil
}

// Verify downloads len(want) bytes and compares them with want.
func (s *Stager) Verify(ctx context.Context, id gpucore.BufferID, want []byte) error {
	got, err := s.Download(ctx, id, uint64(len(want)))
	if err != nil {
		return err
	}
	if bytes.Equal(got, want) {
		return nil
	}
	for i := range min(len(got), len(want)) {
		if got[i] != want[i] {
			return fmt.Errorf("%w: first difference at byte %d", ErrTransferMismatch, i)
		}
	}
	return fmt.Errorf("%w: got %d bytes, want %d", ErrTransferMismatch, len(got), len(want))
}

func alignUp(n uint64) uint64 {
	return (n + copyAlignment - 1) &^ (copyAlignment - 1)
}
