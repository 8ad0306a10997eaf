package malgosound

import (
	"log/slog"

	"github.com/flowpbx/audiobridge/internal/audio"
)

// HardwareA is the S32LE interleaved direct backend: a real capture/playback
// device driven through malgo, with no intermediate filter graph.
type HardwareA struct {
	*device
}

// NewHardwareA satisfies audio.Factory for audio.HardwareA.
func NewHardwareA(logger *slog.Logger) func() (audio.Backend, error) {
	return func() (audio.Backend, error) {
		return &HardwareA{device: newDevice(s32Codec{}, logger.With("backend", string(audio.HardwareA)))}, nil
	}
}
