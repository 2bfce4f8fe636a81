package particle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

func TestLayoutStride(t *testing.T) {
	tests := []struct {
		layout Layout
		want   uint64
	}{
		{LayoutLegacy, 80},
		{LayoutPadded, 64},
		{Layout(0), 0},
	}
	for _, tt := range tests {
		if got := tt.layout.Stride(); got != tt.want {
			t.Errorf("%v.Stride() = %d, want %d", tt.layout, got, tt.want)
		}
	}
	if got := binary.Size(Particle{}); got != LegacyStride {
		t.Errorf("binary.Size(Particle) = %d, want %d", got, LegacyStride)
	}
	if got := binary.Size(Padded{}); got != PaddedStride {
		t.Errorf("binary.Size(Padded) = %d, want %d", got, PaddedStride)
	}
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in      string
		want    Layout
		wantErr bool
	}{
		{"legacy", LayoutLegacy, false},
		{"", LayoutLegacy, false},
		{" Padded ", LayoutPadded, false},
		{"std140", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLayout(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLayout(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLayout(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	ps := Field(FieldConfig{Count: 17, Seed: 42, GasEvery: 4})
	for _, l := range []Layout{LayoutLegacy, LayoutPadded} {
		t.Run(l.String(), func(t *testing.T) {
			data, err := Encode(l, ps)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if want := uint64(len(ps)) * l.Stride(); uint64(len(data)) != want {
				t.Fatalf("len(Encode()) = %d, want %d", len(data), want)
			}
			got, err := Decode(l, data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(got) != len(ps) {
				t.Fatalf("Decode() returned %d particles, want %d", len(got), len(ps))
			}
			for i := range ps {
				if got[i] != ps[i] {
					t.Fatalf("particle %d = %+v, want %+v", i, got[i], ps[i])
				}
			}
		})
	}
}

func TestEncodeLegacyPaddingIsZero(t *testing.T) {
	p := Particle{ID: 0xffffffff, Colour: [3]float32{1, 1, 1}, Gas: GasDrift}
	data, err := Encode(LayoutLegacy, []Particle{p})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range [][2]int{{4, 16}, {28, 32}, {76, 80}} {
		if !bytes.Equal(data[r[0]:r[1]], make([]byte, r[1]-r[0])) {
			t.Errorf("padding bytes [%d:%d] = %x, want zero", r[0], r[1], data[r[0]:r[1]])
		}
	}
	if got := binary.LittleEndian.Uint32(data[72:]); got != GasDrift {
		t.Errorf("gas at offset 72 = %d, want %d", got, GasDrift)
	}
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(LayoutPadded, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("len(Encode(nil)) = %d, want 0", len(data))
	}
	ps, err := Decode(LayoutPadded, data)
	if err != nil || len(ps) != 0 {
		t.Errorf("Decode(empty) = %v, %v; want empty, nil", ps, err)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode(LayoutLegacy, make([]byte, 81))
	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Decode(81 bytes) error = %v, want ErrShortBuffer", err)
	}
}

func TestFieldDeterministic(t *testing.T) {
	a := Field(FieldConfig{Count: 64, Seed: 7})
	b := Field(FieldConfig{Count: 64, Seed: 7})
	c := Field(FieldConfig{Count: 64, Seed: 8})
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("particle %d differs between identical seeds", i)
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different seeds produced identical fields")
	}
	for i, p := range a {
		if p.ID != uint32(i) {
			t.Errorf("particle %d has ID %d", i, p.ID)
		}
		if p.Mass < 0.5 || p.Mass > 2 {
			t.Errorf("particle %d mass %v out of range", i, p.Mass)
		}
		if p.IsStable() {
			t.Errorf("particle %d starts stable", i)
		}
	}
	if got := Field(FieldConfig{}); len(got) != 0 {
		t.Errorf("Field(Count 0) = %d particles, want 0", len(got))
	}
}

func TestOffsets(t *testing.T) {
	tests := []struct {
		layout Layout
		want   map[string]uint32
	}{
		{LayoutLegacy, map[string]uint32{"id": 0, "colour": 16, "position": 32, "target_pos": 48, "gas": 72}},
		{LayoutPadded, map[string]uint32{"id": 0, "colour": 4, "position": 16, "target_pos": 32, "gas": 56}},
	}
	for _, tt := range tests {
		offs, err := Offsets(tt.layout)
		if err != nil {
			t.Fatal(err)
		}
		if len(offs) != 10 {
			t.Errorf("%v: %d fields, want 10", tt.layout, len(offs))
		}
		got := make(map[string]uint32, len(offs))
		for _, f := range offs {
			got[f.Name] = f.Offset
		}
		for name, off := range tt.want {
			if got[name] != off {
				t.Errorf("%v: offset of %s = %d, want %d", tt.layout, name, got[name], off)
			}
		}
	}
}

const legacyWGSL = `
struct Particle {
    id: u32,
    pad0: u32,
    pad1: u32,
    pad2: u32,
    colour: vec3<f32>,
    pad3: f32,
    position: vec2<f32>,
    velocity: vec2<f32>,
    target_pos: vec2<f32>,
    mass: f32,
    force: f32,
    stable: f32,
    tags: u32,
    gas: u32,
    pad4: u32,
}

@group(0) @binding(0) var<storage, read_write> particles: array<Particle>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if i < arrayLength(&particles) {
        particles[i].stable = 1.0;
    }
}
`

// Same members with mass and force swapped.
const swappedWGSL = `
struct Particle {
    id: u32,
    pad0: u32,
    pad1: u32,
    pad2: u32,
    colour: vec3<f32>,
    pad3: f32,
    position: vec2<f32>,
    velocity: vec2<f32>,
    target_pos: vec2<f32>,
    force: f32,
    mass: f32,
    stable: f32,
    tags: u32,
    gas: u32,
    pad4: u32,
}

@group(0) @binding(0) var<storage, read_write> particles: array<Particle>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    particles[id.x].stable = 1.0;
}
`

func lower(t *testing.T, src string) *ir.Module {
	t.Helper()
	ast, err := naga.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	mod, err := naga.LowerWithSource(ast, src)
	if err != nil {
		t.Fatalf("Lower() error = %v", err)
	}
	return mod
}

func TestVerify(t *testing.T) {
	legacy := lower(t, legacyWGSL)
	if err := Verify(legacy, "particles", LayoutLegacy); err != nil {
		t.Errorf("Verify(legacy) error = %v", err)
	}
	if err := Verify(legacy, "particles", LayoutPadded); !errors.Is(err, ErrLayoutMismatch) {
		t.Errorf("Verify(legacy shader, padded host) error = %v, want ErrLayoutMismatch", err)
	}
	if err := Verify(legacy, "missing", LayoutLegacy); !errors.Is(err, ErrLayoutMismatch) {
		t.Errorf("Verify(missing global) error = %v, want ErrLayoutMismatch", err)
	}
	if err := Verify(lower(t, swappedWGSL), "particles", LayoutLegacy); !errors.Is(err, ErrLayoutMismatch) {
		t.Errorf("Verify(swapped members) error = %v, want ErrLayoutMismatch", err)
	}
}
