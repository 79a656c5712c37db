// Package codec maps the primitive value types carried by port payloads
// to and from raw wire bytes. It is pure and has no knowledge of packets,
// commands, or transport.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ErrInvalidPayload is returned when a payload's byte length does not match
// what a type's encoding requires.
type ErrInvalidPayload struct {
	Type string
	Len  int
}

func (e *ErrInvalidPayload) Error() string {
	return fmt.Sprintf("codec: invalid payload length %d for type %s", e.Len, e.Type)
}

// Byte widths of the primitive wire encodings.
const (
	WidthBool = 1
	WidthChar = 1
	WidthU8   = 1
	WidthI32  = 4
	WidthF32  = 4
)

// EncodeBool encodes a bool as a single 0x00/0x01 byte.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeBool decodes a single-byte bool payload.
func DecodeBool(b []byte) (bool, error) {
	if len(b) != WidthBool {
		return false, &ErrInvalidPayload{"bool", len(b)}
	}
	return b[0] != 0, nil
}

// EncodeBoolSeq packs a sequence of bools, one byte each.
func EncodeBoolSeq(vs []bool) []byte {
	buf := make([]byte, len(vs))
	for i, v := range vs {
		if v {
			buf[i] = 1
		}
	}
	return buf
}

// DecodeBoolSeq unpacks a tightly packed bool sequence.
func DecodeBoolSeq(b []byte) ([]bool, error) {
	vs := make([]bool, len(b))
	for i, x := range b {
		vs[i] = x != 0
	}
	return vs, nil
}

// EncodeChar encodes a raw char byte.
func EncodeChar(v byte) []byte { return []byte{v} }

// DecodeChar decodes a raw char byte.
func DecodeChar(b []byte) (byte, error) {
	if len(b) != WidthChar {
		return 0, &ErrInvalidPayload{"char", len(b)}
	}
	return b[0], nil
}

// EncodeCharSeq packs a byte sequence verbatim.
func EncodeCharSeq(vs []byte) []byte {
	out := make([]byte, len(vs))
	copy(out, vs)
	return out
}

// DecodeCharSeq unpacks a byte sequence verbatim.
func DecodeCharSeq(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// EncodeU8 encodes a raw octet.
func EncodeU8(v uint8) []byte { return []byte{v} }

// DecodeU8 decodes a raw octet.
func DecodeU8(b []byte) (uint8, error) {
	if len(b) != WidthU8 {
		return 0, &ErrInvalidPayload{"u8", len(b)}
	}
	return b[0], nil
}

// EncodeU8Seq packs a uint8 sequence verbatim.
func EncodeU8Seq(vs []uint8) []byte {
	out := make([]byte, len(vs))
	copy(out, vs)
	return out
}

// DecodeU8Seq unpacks a uint8 sequence verbatim.
func DecodeU8Seq(b []byte) ([]uint8, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// EncodeI32 encodes a little-endian 4-byte signed integer.
func EncodeI32(v int32) []byte {
	buf := make([]byte, WidthI32)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return buf
}

// DecodeI32 decodes a little-endian 4-byte signed integer.
func DecodeI32(b []byte) (int32, error) {
	if len(b) != WidthI32 {
		return 0, &ErrInvalidPayload{"i32", len(b)}
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// EncodeI32Seq packs a sequence of little-endian 4-byte signed integers.
func EncodeI32Seq(vs []int32) []byte {
	buf := make([]byte, WidthI32*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*WidthI32:], uint32(v))
	}
	return buf
}

// DecodeI32Seq unpacks a sequence of little-endian 4-byte signed integers.
func DecodeI32Seq(b []byte) ([]int32, error) {
	if len(b)%WidthI32 != 0 {
		return nil, &ErrInvalidPayload{"[]i32", len(b)}
	}
	n := len(b) / WidthI32
	vs := make([]int32, n)
	for i := 0; i < n; i++ {
		vs[i] = int32(binary.LittleEndian.Uint32(b[i*WidthI32:]))
	}
	return vs, nil
}

// EncodeF32 encodes an IEEE-754 little-endian single-precision float.
func EncodeF32(v float32) []byte {
	buf := make([]byte, WidthF32)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// DecodeF32 decodes an IEEE-754 little-endian single-precision float.
func DecodeF32(b []byte) (float32, error) {
	if len(b) != WidthF32 {
		return 0, &ErrInvalidPayload{"f32", len(b)}
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// EncodeF32Seq packs a sequence of IEEE-754 little-endian floats.
func EncodeF32Seq(vs []float32) []byte {
	buf := make([]byte, WidthF32*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*WidthF32:], math.Float32bits(v))
	}
	return buf
}

// DecodeF32Seq unpacks a sequence of IEEE-754 little-endian floats.
func DecodeF32Seq(b []byte) ([]float32, error) {
	if len(b)%WidthF32 != 0 {
		return nil, &ErrInvalidPayload{"[]f32", len(b)}
	}
	n := len(b) / WidthF32
	vs := make([]float32, n)
	for i := 0; i < n; i++ {
		vs[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*WidthF32:]))
	}
	return vs, nil
}

// EncodeF64 narrows v to float32 before encoding: the device does not
// implement 64-bit floats, so every f64 send leaves the wire as 4 bytes.
func EncodeF64(v float64) []byte {
	return EncodeF32(float32(v))
}

// DecodeF64 decodes a received f64 payload. If the payload is 4 bytes it is
// treated as a narrowed f32 and widened; an 8-byte payload is decoded as a
// genuine IEEE-754 double, in case some firmware ever emits one.
func DecodeF64(b []byte) (float64, error) {
	switch len(b) {
	case WidthF32:
		f32, err := DecodeF32(b)
		if err != nil {
			return 0, err
		}
		return float64(f32), nil
	case 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	default:
		return 0, &ErrInvalidPayload{"f64", len(b)}
	}
}

// EncodeF64Seq narrows every element to float32, matching EncodeF64.
func EncodeF64Seq(vs []float64) []byte {
	buf := make([]byte, WidthF32*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*WidthF32:], math.Float32bits(float32(v)))
	}
	return buf
}

// DecodeF64Seq unpacks a sequence of narrowed f32 elements, widening each
// to float64. The device never streams genuine 8-byte doubles in a
// sequence, so unlike the scalar DecodeF64 a sequence is always treated
// as 4-byte elements.
func DecodeF64Seq(b []byte) ([]float64, error) {
	f32s, err := DecodeF32Seq(b)
	if err != nil {
		return nil, &ErrInvalidPayload{"[]f64", len(b)}
	}
	vs := make([]float64, len(f32s))
	for i, f := range f32s {
		vs[i] = float64(f)
	}
	return vs, nil
}
