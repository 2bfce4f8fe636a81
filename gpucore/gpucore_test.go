package gpucore

import (
	"errors"
	"fmt"
	"testing"
)

func TestFutureNow(t *testing.T) {
	if !Now().IsNow() {
		t.Error("Now().IsNow() = false, want true")
	}
	var zero Future
	if zero != Now() {
		t.Error("zero Future should equal Now()")
	}
	f := Future{Queue: QueueGraphics, Serial: 7}
	if f.IsNow() {
		t.Error("real future reported as Now")
	}
	if got := f.String(); got != "graphics#7" {
		t.Errorf("String() = %q, want %q", got, "graphics#7")
	}
}

func TestJoinDropsNow(t *testing.T) {
	a := Future{Queue: QueueCompute, Serial: 3}
	b := Future{Queue: QueueGraphics, Serial: 4}
	got := Join(Now(), a, Now(), b)
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("Join() = %v, want [%v %v]", got, a, b)
	}
	if got := Join(Now()); len(got) != 0 {
		t.Errorf("Join(Now()) = %v, want empty", got)
	}
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrOutOfDate, true},
		{ErrSuboptimal, true},
		{fmt.Errorf("present: %w", ErrOutOfDate), true},
		{ErrTransientExtent, false},
		{ErrDeviceLost, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsStale(tt.err); got != tt.want {
			t.Errorf("IsStale(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestExtent(t *testing.T) {
	if !(Extent{Width: 0, Height: 10}).IsZero() {
		t.Error("0x10 should be zero area")
	}
	if (Extent{Width: 1, Height: 1}).IsZero() {
		t.Error("1x1 should not be zero area")
	}
	if got := (Extent{Width: 800, Height: 600}).String(); got != "800x600" {
		t.Errorf("String() = %q", got)
	}
}

func TestCommandListValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmds    []Command
		wantErr bool
	}{
		{
			name: "render pass",
			cmds: []Command{
				BeginRenderPass{Target: 1},
				SetRenderPipeline{Pipeline: 1},
				SetBindGroup{Index: 0, Group: 1},
				PushConstants{Data: make([]byte, 8)},
				SetVertexBuffer{Buffer: 2},
				Draw{VertexCount: 3, InstanceCount: 1},
				EndRenderPass{},
			},
		},
		{
			name: "compute pass then copy",
			cmds: []Command{
				BeginComputePass{},
				SetComputePipeline{Pipeline: 1},
				SetBindGroup{Group: 1},
				Dispatch{X: 4, Y: 1, Z: 1},
				EndComputePass{},
				CopyBuffer{Src: 1, Dst: 2, Size: 16},
			},
		},
		{
			name:    "unterminated",
			cmds:    []Command{BeginComputePass{}},
			wantErr: true,
		},
		{
			name:    "draw in compute pass",
			cmds:    []Command{BeginComputePass{}, Draw{VertexCount: 3}, EndComputePass{}},
			wantErr: true,
		},
		{
			name:    "nested",
			cmds:    []Command{BeginRenderPass{}, BeginComputePass{}},
			wantErr: true,
		},
		{
			name:    "dispatch outside pass",
			cmds:    []Command{Dispatch{X: 1}},
			wantErr: true,
		},
		{
			name:    "bind group outside pass",
			cmds:    []Command{SetBindGroup{Group: 1}},
			wantErr: true,
		},
		{
			name:    "copy inside pass",
			cmds:    []Command{BeginRenderPass{}, CopyBuffer{Src: 1, Dst: 2}, EndRenderPass{}},
			wantErr: true,
		},
		{
			name:    "copy invalid buffer",
			cmds:    []Command{CopyBuffer{Src: InvalidID, Dst: 2}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &CommandList{}
			l.Add(tt.cmds...)
			err := l.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCommandList) {
				t.Errorf("Validate() error = %v, want ErrInvalidCommandList", err)
			}
		})
	}
}
