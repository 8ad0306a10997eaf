// Package audio defines the polymorphic audio backend trait (C7): a
// uniform capability set that the transport engine drives without ever
// knowing which concrete device implementation is behind it. The engine
// holds only the Backend interface value and never downcasts, per spec.md
// section 9's design note.
package audio

import "fmt"

// Kind identifies which backend variant a Config selects.
type Kind string

const (
	// HardwareA is a direct low-level PCM backend: S32LE interleaved,
	// rate/channels from config, implemented over github.com/gen2brain/malgo.
	// Corresponds to the ALSA backend of the original implementation.
	HardwareA Kind = "hw-a"
	// HardwareB is a server-routed filter backend with mono-float ports and
	// an advertised process latency, implemented over the same malgo
	// binding in a float32/mono-port configuration (see DESIGN.md for why
	// no PipeWire client library was available in the retrieved pack).
	// Corresponds to the PipeWire backend of the original implementation.
	HardwareB Kind = "hw-b"
	// Simulated drives the callback from an internal ticker instead of a
	// real device, generating a low-frequency sine as input and optionally
	// analyzing the output for discontinuities.
	Simulated Kind = "sim"
)

// Config holds the options recognised by any backend, per spec.md section
// 4.7's table.
type Config struct {
	SampleRate       uint32
	Frames           uint32 // period size: frames per callback
	PlaybackChannels uint32
	CaptureChannels  uint32 // multichannel input is reduced to mono by selecting DesignatedChannel
	DesignatedChannel uint32
	DevicePlayback   string
	DeviceCapture    string
}

// Callback is the audio callback contract (spec.md section 4.6): invoked
// once per capture period with n input samples (mono, length n) and two
// output slices (length n each) to fill for playback. It must not block,
// allocate, or log, and must complete in well under the period.
type Callback func(input []float32, outLeft, outRight []float32, n int)

// Stats is the backend-reported runtime counters, returned by Backend.Stats.
type Stats struct {
	// CallbacksInvoked is the cumulative number of audio periods processed.
	CallbacksInvoked uint64
	// DeviceXruns is the count of underlying device-level xruns reported by
	// the backend itself (distinct from the engine's ring-buffer xruns).
	DeviceXruns uint64
}

// Backend is the uniform device abstraction the transport engine drives.
// Implementations: Hardware-A, Hardware-B, and Simulated (spec.md 4.7).
type Backend interface {
	// Init prepares the backend with the given configuration and callback.
	// It must not start invoking the callback until Start is called.
	Init(cfg Config, cb Callback) error
	// Start begins invoking the callback once per period.
	Start() error
	// Stop halts the callback; no new invocations occur after Stop returns.
	Stop() error
	// Cleanup releases any device handles acquired by Init. The backend
	// must not be reused after Cleanup.
	Cleanup() error
	// IsRunning reports whether the backend is currently invoking the
	// callback.
	IsRunning() bool
	// Stats returns a snapshot of backend-reported counters.
	Stats() Stats
	// ReportedLatencyMs returns this backend's advertised processing
	// latency, if any (0 if unknown).
	ReportedLatencyMs() float64
}

// ErrUnavailable is returned by a Factory when the requested backend kind
// cannot be constructed on the current platform (e.g. no audio subsystem
// present).
var ErrUnavailable = fmt.Errorf("audio: backend unavailable")

// Factory constructs a Backend for a Kind. Concrete factories live in
// sibling packages (malgosound, simulated) to keep optional native
// dependencies out of this package.
type Factory func() (Backend, error)
