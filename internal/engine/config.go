package engine

import (
	"fmt"

	"github.com/flowpbx/audiobridge/internal/audio"
	"github.com/flowpbx/audiobridge/internal/wire"
)

// Config holds everything an Engine needs to initialise, per spec.md
// section 6's CLI surface and section 4.7's backend options.
type Config struct {
	BackendKind audio.Kind

	PeerIP     string
	PeerPort   int
	ListenPort int

	SampleRate         uint32
	DeviceBufferFrames uint32 // period size: frames per audio callback
	PacketBufferFrames uint32 // frames grouped into one outbound packet; must be a positive multiple of DeviceBufferFrames
	RingDepth          int

	Passthrough bool

	CaptureDevice  string
	PlaybackDevice string
}

// Validate checks the option combination a Config must satisfy before
// Init proceeds, per spec.md section 7's ConfigInvalid error kind.
func (c Config) Validate() error {
	if c.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrConfigInvalid)
	}
	if c.DeviceBufferFrames == 0 {
		return fmt.Errorf("%w: device buffer must be positive", ErrConfigInvalid)
	}
	if c.PacketBufferFrames == 0 || c.PacketBufferFrames%c.DeviceBufferFrames != 0 {
		return fmt.Errorf("%w: packet buffer must be a positive multiple of device buffer", ErrConfigInvalid)
	}
	if c.PacketBufferFrames > wire.MaxChunk {
		return fmt.Errorf("%w: packet buffer %d exceeds max chunk %d", ErrConfigInvalid, c.PacketBufferFrames, wire.MaxChunk)
	}
	if c.RingDepth <= 0 {
		return fmt.Errorf("%w: ring depth must be positive", ErrConfigInvalid)
	}
	if !c.Passthrough {
		if c.PeerIP == "" || c.PeerPort == 0 {
			return fmt.Errorf("%w: peer ip and port are required unless passthrough is set", ErrConfigInvalid)
		}
	}
	switch c.BackendKind {
	case audio.HardwareA, audio.HardwareB, audio.Simulated:
	default:
		return fmt.Errorf("%w: unknown backend kind %q", ErrConfigInvalid, c.BackendKind)
	}
	return nil
}

// restartRequired reports whether updating from c to next requires a
// cleanup + re-init, per spec.md section 4.8: buffer size, ring depth, peer
// ip, peer port, backend type, and listen port are the restart-requiring
// fields.
func (c Config) restartRequired(next Config) bool {
	return c.DeviceBufferFrames != next.DeviceBufferFrames ||
		c.PacketBufferFrames != next.PacketBufferFrames ||
		c.RingDepth != next.RingDepth ||
		c.PeerIP != next.PeerIP ||
		c.PeerPort != next.PeerPort ||
		c.BackendKind != next.BackendKind ||
		c.ListenPort != next.ListenPort
}
