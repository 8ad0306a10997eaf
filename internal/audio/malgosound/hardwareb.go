package malgosound

import (
	"log/slog"

	"github.com/flowpbx/audiobridge/internal/audio"
)

// HardwareB stands in for a PipeWire-routed graph: float32 mono-port PCM
// with an advertised process latency layered on top of the device's own
// reported latency. The retrieved example pack carries no genuine PipeWire
// client binding, so this backend is implemented over the same malgo device
// wiring as Hardware-A, in a distinct sample format, with the graph's extra
// processing hop modeled as a fixed additive latency (see DESIGN.md).
type HardwareB struct {
	*device
	extraLatencyMs float64
}

// NewHardwareB satisfies audio.Factory for audio.HardwareB. extraLatencyMs
// models the processing hop a real filter graph would add on top of the
// device's own reported latency.
func NewHardwareB(extraLatencyMs float64, logger *slog.Logger) func() (audio.Backend, error) {
	return func() (audio.Backend, error) {
		return &HardwareB{
			device:         newDevice(f32Codec{}, logger.With("backend", string(audio.HardwareB))),
			extraLatencyMs: extraLatencyMs,
		}, nil
	}
}

// ReportedLatencyMs adds the synthetic filter-graph hop to the underlying
// device's reported latency.
func (h *HardwareB) ReportedLatencyMs() float64 {
	return h.device.ReportedLatencyMs() + h.extraLatencyMs
}
