package malgosound

import (
	"math"
	"testing"
)

func TestDecodeS32MonoSelectsDesignatedChannel(t *testing.T) {
	// 2 channels, 3 frames. Channel 0 ramps up, channel 1 ramps down.
	const channels = 2
	raw := make([]byte, channels*3*4)
	frames := []struct{ left, right int32 }{
		{100, -100},
		{200, -200},
		{300, -300},
	}
	for i, f := range frames {
		putS32(raw, (i*channels+0)*4, f.left)
		putS32(raw, (i*channels+1)*4, f.right)
	}

	dst := make([]float32, 3)
	decodeS32Mono(raw, dst, channels, 1)

	want := []float32{
		float32(-100) / float32(math.MaxInt32),
		float32(-200) / float32(math.MaxInt32),
		float32(-300) / float32(math.MaxInt32),
	}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("frame %d: got %v want %v", i, dst[i], want[i])
		}
	}
}

func TestEncodeS32StereoRoundTrip(t *testing.T) {
	left := []float32{0, 0.5, -0.5, 1, -1}
	right := []float32{-1, 1, 0, 0.25, -0.25}
	raw := make([]byte, len(left)*8)
	encodeS32Stereo(raw, left, right)

	for i := range left {
		gotL := readS32(raw, i*8)
		gotR := readS32(raw, i*8+4)
		wantL := clampToS32(left[i])
		wantR := clampToS32(right[i])
		if gotL != wantL {
			t.Errorf("frame %d left: got %d want %d", i, gotL, wantL)
		}
		if gotR != wantR {
			t.Errorf("frame %d right: got %d want %d", i, gotR, wantR)
		}
	}
}

func TestClampToS32SaturatesOutOfRange(t *testing.T) {
	if clampToS32(2.0) != math.MaxInt32 {
		t.Errorf("expected saturation at MaxInt32 for input above 1.0")
	}
	if clampToS32(-2.0) != -math.MaxInt32 {
		t.Errorf("expected saturation at -MaxInt32 for input below -1.0")
	}
}

func TestDecodeEncodeF32RoundTrip(t *testing.T) {
	const channels = 1
	in := []float32{0.1, -0.2, 0.3, -0.4}
	raw := make([]byte, len(in)*4)
	for i, v := range in {
		putF32(raw, i*4, v)
	}

	dst := make([]float32, len(in))
	decodeF32Mono(raw, dst, channels, 0)
	for i := range in {
		if dst[i] != in[i] {
			t.Fatalf("frame %d: got %v want %v", i, dst[i], in[i])
		}
	}

	out := make([]byte, len(in)*8)
	encodeF32Stereo(out, in, in)
	for i := range in {
		if readF32(out, i*8) != in[i] || readF32(out, i*8+4) != in[i] {
			t.Fatalf("frame %d: stereo encode mismatch", i)
		}
	}
}

func putS32(raw []byte, off int, v int32) {
	raw[off] = byte(v)
	raw[off+1] = byte(v >> 8)
	raw[off+2] = byte(v >> 16)
	raw[off+3] = byte(v >> 24)
}

func readS32(raw []byte, off int) int32 {
	return int32(uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16 | uint32(raw[off+3])<<24)
}

func putF32(raw []byte, off int, v float32) {
	bits := math.Float32bits(v)
	raw[off] = byte(bits)
	raw[off+1] = byte(bits >> 8)
	raw[off+2] = byte(bits >> 16)
	raw[off+3] = byte(bits >> 24)
}

func readF32(raw []byte, off int) float32 {
	bits := uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16 | uint32(raw[off+3])<<24
	return math.Float32frombits(bits)
}
