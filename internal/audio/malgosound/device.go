package malgosound

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/flowpbx/audiobridge/internal/audio"
)

// codec abstracts the PCM sample format difference between Hardware-A
// (S32LE) and Hardware-B (float32), so both share the same device wiring.
type codec interface {
	malgoFormat() malgo.FormatType
	decodeMono(raw []byte, dst []float32, channels, designated int)
	encodeStereo(raw []byte, left, right []float32)
}

type s32Codec struct{}

func (s32Codec) malgoFormat() malgo.FormatType { return malgo.FormatS32 }
func (s32Codec) decodeMono(raw []byte, dst []float32, channels, designated int) {
	decodeS32Mono(raw, dst, channels, designated)
}
func (s32Codec) encodeStereo(raw []byte, left, right []float32) {
	encodeS32Stereo(raw, left, right)
}

type f32Codec struct{}

func (f32Codec) malgoFormat() malgo.FormatType { return malgo.FormatF32 }
func (f32Codec) decodeMono(raw []byte, dst []float32, channels, designated int) {
	decodeF32Mono(raw, dst, channels, designated)
}
func (f32Codec) encodeStereo(raw []byte, left, right []float32) {
	encodeF32Stereo(raw, left, right)
}

// device is the shared full-duplex malgo device wiring for both Hardware-A
// and Hardware-B. It satisfies audio.Backend once wrapped by HardwareA or
// HardwareB, which only differ in codec and reported latency.
type device struct {
	codec  codec
	logger *slog.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	dev     *malgo.Device
	cfg     audio.Config
	cb      audio.Callback
	running atomic.Bool

	callbacksInvoked atomic.Uint64
	deviceXruns      atomic.Uint64

	// scratch buffers are allocated once at Init and reused across every
	// callback invocation, so the audio thread never allocates.
	inputScratch []float32
	leftScratch  []float32
	rightScratch []float32

	reportedLatencyMs float64
}

func newDevice(c codec, logger *slog.Logger) *device {
	return &device{codec: c, logger: logger}
}

// Init prepares the malgo duplex device. No callback invocation happens
// until Start.
func (d *device) Init(cfg audio.Config, cb audio.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx != nil {
		return fmt.Errorf("malgosound: already initialized")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("malgosound: init context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.PeriodSizeInFrames = cfg.Frames
	deviceConfig.Capture.Format = d.codec.malgoFormat()
	deviceConfig.Capture.Channels = cfg.CaptureChannels
	deviceConfig.Playback.Format = d.codec.malgoFormat()
	deviceConfig.Playback.Channels = cfg.PlaybackChannels

	if id, ok := findDeviceID(ctx, malgo.Capture, cfg.DeviceCapture); ok {
		deviceConfig.Capture.DeviceID = id
	}
	if id, ok := findDeviceID(ctx, malgo.Playback, cfg.DevicePlayback); ok {
		deviceConfig.Playback.DeviceID = id
	}

	d.cfg = cfg
	d.cb = cb
	n := int(cfg.Frames)
	d.inputScratch = make([]float32, n)
	d.leftScratch = make([]float32, n)
	d.rightScratch = make([]float32, n)

	onFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		n := int(framecount)
		if n > len(d.inputScratch) {
			n = len(d.inputScratch)
		}

		d.codec.decodeMono(pInputSamples, d.inputScratch[:n], int(cfg.CaptureChannels), int(cfg.DesignatedChannel))
		d.cb(d.inputScratch[:n], d.leftScratch[:n], d.rightScratch[:n], n)
		d.codec.encodeStereo(pOutputSample, d.leftScratch[:n], d.rightScratch[:n])

		d.callbacksInvoked.Add(1)
	}

	dev, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onFrames})
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("malgosound: init device: %w", err)
	}

	d.ctx = ctx
	d.dev = dev
	d.reportedLatencyMs = float64(cfg.Frames) / float64(cfg.SampleRate) * 1000

	return nil
}

func findDeviceID(ctx *malgo.AllocatedContext, kind malgo.DeviceType, name string) (malgo.DeviceID, bool) {
	var zero malgo.DeviceID
	if name == "" {
		return zero, false
	}
	infos, err := ctx.Devices(kind)
	if err != nil {
		return zero, false
	}
	for _, info := range infos {
		if info.Name() == name {
			return info.ID, true
		}
	}
	return zero, false
}

func (d *device) Start() error {
	d.mu.Lock()
	dev := d.dev
	d.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("malgosound: not initialized")
	}
	if err := dev.Start(); err != nil {
		return fmt.Errorf("malgosound: start: %w", err)
	}
	d.running.Store(true)
	return nil
}

func (d *device) Stop() error {
	d.mu.Lock()
	dev := d.dev
	d.mu.Unlock()
	if dev == nil {
		return nil
	}
	d.running.Store(false)
	if err := dev.Stop(); err != nil {
		return fmt.Errorf("malgosound: stop: %w", err)
	}
	return nil
}

func (d *device) Cleanup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev != nil {
		d.dev.Uninit()
		d.dev = nil
	}
	if d.ctx != nil {
		d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}

func (d *device) IsRunning() bool {
	return d.running.Load()
}

func (d *device) Stats() audio.Stats {
	return audio.Stats{
		CallbacksInvoked: d.callbacksInvoked.Load(),
		DeviceXruns:      d.deviceXruns.Load(),
	}
}

func (d *device) ReportedLatencyMs() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reportedLatencyMs
}
