package particle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gogpu/naga/ir"
)

// ErrLayoutMismatch is returned when the host record layout differs from
// the shader's struct layout.
var ErrLayoutMismatch = errors.New("particle: host layout does not match shader layout")

// FieldOffset is the byte offset of one named record field.
type FieldOffset struct {
	Name   string
	Offset uint32
}

// hostRecord returns the Go type whose fields map to WGSL members, and the
// Go type of one array element.
func hostRecord(l Layout) (record, element reflect.Type, err error) {
	switch l {
	case LayoutLegacy:
		t := reflect.TypeFor[Particle]()
		return t, t, nil
	case LayoutPadded:
		return reflect.TypeFor[Record](), reflect.TypeFor[Padded](), nil
	default:
		return nil, nil, fmt.Errorf("particle: unknown layout %v", l)
	}
}

// Offsets returns the host byte offset of every tagged field in layout l,
// in declaration order.
func Offsets(l Layout) ([]FieldOffset, error) {
	rt, _, err := hostRecord(l)
	if err != nil {
		return nil, err
	}
	var out []FieldOffset
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		name, ok := f.Tag.Lookup("wgsl")
		if !ok {
			continue
		}
		out = append(out, FieldOffset{Name: name, Offset: uint32(f.Offset)})
	}
	return out, nil
}

// Verify checks that layout l matches the element type of the storage
// array global named global in a lowered shader module: every member
// offset, the array stride, and the absence of implicit Go padding.
func Verify(mod *ir.Module, global string, l Layout) error {
	rt, et, err := hostRecord(l)
	if err != nil {
		return err
	}

	arr, st, err := storageArray(mod, global)
	if err != nil {
		return err
	}

	// The encoder writes fields back to back, so Go must not insert
	// padding of its own.
	if want := binary.Size(reflect.Zero(et).Interface()); uintptr(want) != et.Size() {
		return fmt.Errorf("%w: %s has implicit padding (%d packed, %d in memory)",
			ErrLayoutMismatch, et.Name(), want, et.Size())
	}

	stride := arr.Stride
	if stride == 0 {
		stride = st.Span
	}
	if uint64(stride) != uint64(et.Size()) || uint64(stride) != l.Stride() {
		return fmt.Errorf("%w: stride: shader %d, host %d", ErrLayoutMismatch, stride, et.Size())
	}

	members := make(map[string]uint32, len(st.Members))
	for _, m := range st.Members {
		members[m.Name] = m.Offset
	}

	host, err := Offsets(l)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(host))
	for _, f := range host {
		off, ok := members[f.Name]
		if !ok {
			return fmt.Errorf("%w: shader struct has no member %q", ErrLayoutMismatch, f.Name)
		}
		if off != f.Offset {
			return fmt.Errorf("%w: %s: shader offset %d, host offset %d", ErrLayoutMismatch, f.Name, off, f.Offset)
		}
		seen[f.Name] = true
	}
	for _, m := range st.Members {
		if !seen[m.Name] && !strings.HasPrefix(m.Name, "pad") {
			return fmt.Errorf("%w: shader member %q has no host field in %s", ErrLayoutMismatch, m.Name, rt.Name())
		}
	}
	return nil
}

func storageArray(mod *ir.Module, global string) (ir.ArrayType, ir.StructType, error) {
	for _, gv := range mod.GlobalVariables {
		if gv.Name != global {
			continue
		}
		if int(gv.Type) >= len(mod.Types) {
			break
		}
		arr, ok := mod.Types[gv.Type].Inner.(ir.ArrayType)
		if !ok {
			return ir.ArrayType{}, ir.StructType{}, fmt.Errorf("%w: %s is not an array", ErrLayoutMismatch, global)
		}
		if int(arr.Base) >= len(mod.Types) {
			break
		}
		st, ok := mod.Types[arr.Base].Inner.(ir.StructType)
		if !ok {
			return ir.ArrayType{}, ir.StructType{}, fmt.Errorf("%w: %s element is not a struct", ErrLayoutMismatch, global)
		}
		return arr, st, nil
	}
	return ir.ArrayType{}, ir.StructType{}, fmt.Errorf("%w: no global %q", ErrLayoutMismatch, global)
}
