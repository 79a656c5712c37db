package codec

import (
	"math"
	"reflect"
	"testing"
)

func TestBoolRoundTrip(t *testing.T) {
	for _, v := range []bool{true, false} {
		got, err := DecodeBool(EncodeBool(v))
		if err != nil || got != v {
			t.Fatalf("bool round trip: got (%v, %v), want %v", got, err, v)
		}
	}
}

func TestI32RoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, math.MaxInt32, math.MinInt32} {
		got, err := DecodeI32(EncodeI32(v))
		if err != nil || got != v {
			t.Fatalf("i32 round trip: got (%v, %v), want %v", got, err, v)
		}
	}
}

func TestF32RoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1.5, -1.5, 3.14159} {
		got, err := DecodeF32(EncodeF32(v))
		if err != nil || got != v {
			t.Fatalf("f32 round trip: got (%v, %v), want %v", got, err, v)
		}
	}
}

func TestF64NarrowsToF32OnSend(t *testing.T) {
	buf := EncodeF64(3.14159265358979)
	if len(buf) != WidthF32 {
		t.Fatalf("EncodeF64 produced %d bytes, want %d", len(buf), WidthF32)
	}
	got, err := DecodeF64(buf)
	if err != nil {
		t.Fatalf("DecodeF64: %v", err)
	}
	want := float64(float32(3.14159265358979))
	if got != want {
		t.Fatalf("DecodeF64 = %v, want %v (narrowed)", got, want)
	}
}

func TestF64DecodesGenuineDouble(t *testing.T) {
	v := 2.718281828459045
	buf := make([]byte, 8)
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	got, err := DecodeF64(buf)
	if err != nil || got != v {
		t.Fatalf("DecodeF64(8 bytes) = (%v, %v), want %v", got, err, v)
	}
}

func TestSeqRoundTrips(t *testing.T) {
	bools := []bool{true, false, true}
	if got, err := DecodeBoolSeq(EncodeBoolSeq(bools)); err != nil || !reflect.DeepEqual(got, bools) {
		t.Fatalf("bool seq: got (%v, %v)", got, err)
	}

	ints := []int32{1, -2, 3, -4}
	if got, err := DecodeI32Seq(EncodeI32Seq(ints)); err != nil || !reflect.DeepEqual(got, ints) {
		t.Fatalf("i32 seq: got (%v, %v)", got, err)
	}

	floats := []float32{1.1, -2.2, 3.3}
	if got, err := DecodeF32Seq(EncodeF32Seq(floats)); err != nil || !reflect.DeepEqual(got, floats) {
		t.Fatalf("f32 seq: got (%v, %v)", got, err)
	}

	octets := []uint8{0, 1, 255, 128}
	if got, err := DecodeU8Seq(EncodeU8Seq(octets)); err != nil || !reflect.DeepEqual(got, octets) {
		t.Fatalf("u8 seq: got (%v, %v)", got, err)
	}
}

func TestF64SeqNarrowsElementwise(t *testing.T) {
	doubles := []float64{1.0 / 3.0, -2.0 / 7.0, 100.125}
	got, err := DecodeF64Seq(EncodeF64Seq(doubles))
	if err != nil {
		t.Fatalf("DecodeF64Seq: %v", err)
	}
	if len(got) != len(doubles) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(doubles))
	}
	for i, v := range doubles {
		want := float64(float32(v))
		if got[i] != want {
			t.Fatalf("element %d: got %v, want %v", i, got[i], want)
		}
	}
}

func TestInvalidPayloadLengths(t *testing.T) {
	if _, err := DecodeBool([]byte{1, 2}); err == nil {
		t.Fatal("expected error for oversized bool payload")
	}
	if _, err := DecodeI32([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short i32 payload")
	}
	if _, err := DecodeF32([]byte{1, 2, 3, 4, 5}); err == nil {
		t.Fatal("expected error for oversized f32 payload")
	}
	if _, err := DecodeI32Seq([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for non-multiple-of-4 i32 seq payload")
	}
	if _, err := DecodeF64([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for f64 payload of invalid length")
	}
}
