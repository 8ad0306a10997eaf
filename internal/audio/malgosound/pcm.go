// Package malgosound implements the Hardware-A and Hardware-B audio
// backends (C7) over github.com/gen2brain/malgo, a cross-platform binding
// to miniaudio. Hardware-A runs S32LE interleaved PCM; Hardware-B runs
// float32 mono-port PCM with an advertised process latency, standing in for
// a server-routed filter graph (see DESIGN.md for why no PipeWire client
// library was available in the retrieved example pack).
//
// Grounded on agalue-sherpa-voice-assistant's internal/audio package, which
// wires malgo.InitContext / malgo.DefaultDeviceConfig / malgo.DeviceCallbacks
// the same way for a capture-only and a playback-only device; this package
// generalizes that wiring to a single full-duplex device.
package malgosound

import (
	"encoding/binary"
	"math"
)

// decodeS32Mono reads one designated channel out of interleaved S32LE PCM
// into dst, normalizing to [-1.0, 1.0].
func decodeS32Mono(raw []byte, dst []float32, channels, designated int) {
	const bytesPerSample = 4
	frameStride := channels * bytesPerSample
	for i := range dst {
		off := i*frameStride + designated*bytesPerSample
		v := int32(binary.LittleEndian.Uint32(raw[off : off+4]))
		dst[i] = float32(v) / float32(math.MaxInt32)
	}
}

// encodeS32Stereo writes left/right float32 slices into interleaved S32LE
// PCM, clamping to [-1.0, 1.0] before scaling to the full int32 range.
func encodeS32Stereo(raw []byte, left, right []float32) {
	for i := range left {
		off := i * 8
		binary.LittleEndian.PutUint32(raw[off:off+4], uint32(clampToS32(left[i])))
		binary.LittleEndian.PutUint32(raw[off+4:off+8], uint32(clampToS32(right[i])))
	}
}

func clampToS32(v float32) int32 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	// Scale in float64: float32(MaxInt32) rounds up to 2^31, which would
	// overflow int32 for a full-scale input.
	return int32(float64(v) * math.MaxInt32)
}

// decodeF32Mono reads one designated channel out of interleaved float32 PCM
// into dst.
func decodeF32Mono(raw []byte, dst []float32, channels, designated int) {
	const bytesPerSample = 4
	frameStride := channels * bytesPerSample
	for i := range dst {
		off := i*frameStride + designated*bytesPerSample
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
	}
}

// encodeF32Stereo writes left/right float32 slices into interleaved float32
// PCM.
func encodeF32Stereo(raw []byte, left, right []float32) {
	for i := range left {
		off := i * 8
		binary.LittleEndian.PutUint32(raw[off:off+4], math.Float32bits(left[i]))
		binary.LittleEndian.PutUint32(raw[off+4:off+8], math.Float32bits(right[i]))
	}
}
