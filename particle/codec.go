package particle

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when decoding a buffer whose size is not a
// whole number of records.
var ErrShortBuffer = errors.New("particle: buffer size is not a multiple of the stride")

// Encode serialises ps in the byte layout l expects on the device.
// Padding bytes are zero.
func Encode(l Layout, ps []Particle) ([]byte, error) {
	buf := make([]byte, 0, uint64(len(ps))*l.Stride())
	switch l {
	case LayoutLegacy:
		return binary.Append(buf, binary.LittleEndian, ps)
	case LayoutPadded:
		ws := make([]Padded, len(ps))
		for i := range ps {
			ws[i] = Padded{Record: ps[i].Record()}
		}
		return binary.Append(buf, binary.LittleEndian, ws)
	default:
		return nil, fmt.Errorf("particle: encode: unknown layout %v", l)
	}
}

// Decode parses a device buffer written in layout l.
func Decode(l Layout, data []byte) ([]Particle, error) {
	stride := l.Stride()
	if stride == 0 {
		return nil, fmt.Errorf("particle: decode: unknown layout %v", l)
	}
	if uint64(len(data))%stride != 0 {
		return nil, fmt.Errorf("%w: %d bytes, stride %d", ErrShortBuffer, len(data), stride)
	}
	n := uint64(len(data)) / stride
	switch l {
	case LayoutLegacy:
		ps := make([]Particle, n)
		if _, err := binary.Decode(data, binary.LittleEndian, ps); err != nil {
			return nil, fmt.Errorf("particle: decode: %w", err)
		}
		return ps, nil
	default:
		ws := make([]Padded, n)
		if _, err := binary.Decode(data, binary.LittleEndian, ws); err != nil {
			return nil, fmt.Errorf("particle: decode: %w", err)
		}
		ps := make([]Particle, n)
		for i := range ws {
			ps[i] = FromRecord(ws[i].Record)
		}
		return ps, nil
	}
}
