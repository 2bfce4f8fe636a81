package stager

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gogpu/particles/backend/sim"
	"github.com/gogpu/particles/gpucore"
	"github.com/gogpu/particles/particle"
)

func TestUploadRoundTrip(t *testing.T) {
	for _, l := range []particle.Layout{particle.LayoutLegacy, particle.LayoutPadded} {
		for _, n := range []int{0, 1, 7, 1024} {
			ps := particle.Field(particle.FieldConfig{Count: n, Seed: uint64(n)})
			data, err := particle.Encode(l, ps)
			if err != nil {
				t.Fatal(err)
			}

			d := sim.New()
			s := New(d)
			id, err := s.Upload(context.Background(), "particles", gpucore.BufferUsageStorage, data, l.Stride())
			if err != nil {
				t.Fatalf("%v/%d: Upload() error = %v", l, n, err)
			}
			got, err := s.Download(context.Background(), id, uint64(len(data)))
			if err != nil {
				t.Fatalf("%v/%d: Download() error = %v", l, n, err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("%v/%d: round trip differs", l, n)
			}
			back, err := particle.Decode(l, got)
			if err != nil || len(back) != n {
				t.Errorf("%v/%d: Decode() = %d particles, %v", l, n, len(back), err)
			}
			if err := s.Verify(context.Background(), id, data); err != nil {
				t.Errorf("%v/%d: Verify() error = %v", l, n, err)
			}

			if live := d.Live(); live != 1 {
				t.Errorf("%v/%d: Live() = %d after upload, want only the destination", l, n, live)
			}
			d.DestroyBuffer(id)
			d.Release()
			for _, v := range d.Violations() {
				t.Errorf("%v/%d: violation: %s", l, n, v)
			}
		}
	}
}

func TestUploadCreatesDeviceOnlyBuffer(t *testing.T) {
	d := sim.New()
	s := New(d)
	id, err := s.Upload(context.Background(), "vertices", gpucore.BufferUsageVertex, []byte{1, 2, 3}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteBuffer(id, 0, []byte{9}); !errors.Is(err, gpucore.ErrNotHostVisible) {
		t.Errorf("WriteBuffer(uploaded) error = %v, want ErrNotHostVisible", err)
	}
	got, err := s.Download(context.Background(), id, 4)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{1, 2, 3, 0}; !bytes.Equal(got, want) {
		t.Errorf("Download() = %v, want %v (zero padded)", got, want)
	}
}

func TestVerifyMismatch(t *testing.T) {
	d := sim.New()
	s := New(d)
	id, err := s.Upload(context.Background(), "data", gpucore.BufferUsageStorage, []byte{1, 2, 3, 4}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Verify(context.Background(), id, []byte{1, 2, 9, 4}); !errors.Is(err, ErrTransferMismatch) {
		t.Errorf("Verify() error = %v, want ErrTransferMismatch", err)
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct{ in, want uint64 }{
		{0, 0},
		{1, 4},
		{4, 4},
		{5, 8},
		{80, 80},
	}
	for _, tt := range tests {
		if got := alignUp(tt.in); got != tt.want {
			t.Errorf("alignUp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
