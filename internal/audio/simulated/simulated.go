// Package simulated implements the Simulated audio backend (C7): a ticker
// driven thread that wakes once per period, generates a low-frequency sine
// as input, invokes the callback, and analyses the returned output for
// discontinuities. No real device is touched, so it runs anywhere.
//
// Grounded on flowpbx-flowpbx's internal/media.Mixer.mixLoop, which drives
// its own periodic work off a time.Ticker under a context.Context and a
// stopped atomic.Bool rather than a raw channel close.
package simulated

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowpbx/audiobridge/internal/audio"
)

// toneFrequencyHz is the fixed frequency of the synthetic input signal.
const toneFrequencyHz = 220.0

// Backend is the Simulated audio backend.
type Backend struct {
	logger *slog.Logger

	mu      sync.Mutex
	cfg     audio.Config
	cb      audio.Callback
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool

	callbacksInvoked atomic.Uint64
	discontinuities  atomic.Uint64

	phase      float64
	lastLeft   float32
	haveLastLeft bool
}

// New constructs an audio.Factory for audio.Simulated.
func New(logger *slog.Logger) func() (audio.Backend, error) {
	return func() (audio.Backend, error) {
		return &Backend{logger: logger.With("backend", string(audio.Simulated))}, nil
	}
}

func (b *Backend) Init(cfg audio.Config, cb audio.Callback) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg
	b.cb = cb
	b.phase = 0
	b.haveLastLeft = false
	return nil
}

func (b *Backend) Start() error {
	b.mu.Lock()
	cfg := b.cfg
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	b.running.Store(true)

	period := time.Duration(float64(cfg.Frames) / float64(cfg.SampleRate) * float64(time.Second))
	go b.loop(ctx, period)
	return nil
}

func (b *Backend) loop(ctx context.Context, period time.Duration) {
	defer close(b.done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	b.mu.Lock()
	n := int(b.cfg.Frames)
	b.mu.Unlock()

	input := make([]float32, n)
	left := make([]float32, n)
	right := make([]float32, n)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.generateTone(input)
			b.cb(input, left, right, n)
			b.analyzeOutput(left)
			b.callbacksInvoked.Add(1)
		}
	}
}

func (b *Backend) generateTone(dst []float32) {
	b.mu.Lock()
	sampleRate := float64(b.cfg.SampleRate)
	phase := b.phase
	b.mu.Unlock()

	step := 2 * math.Pi * toneFrequencyHz / sampleRate
	for i := range dst {
		dst[i] = float32(math.Sin(phase))
		phase += step
	}
	phase = math.Mod(phase, 2*math.Pi)

	b.mu.Lock()
	b.phase = phase
	b.mu.Unlock()
}

// analyzeOutput flags a discontinuity whenever consecutive playback samples
// jump by more than would be possible for a signal band-limited well below
// Nyquist, a coarse proxy for an underrun or overrun seam.
func (b *Backend) analyzeOutput(left []float32) {
	const jumpThreshold = 1.5

	b.mu.Lock()
	prev := b.lastLeft
	have := b.haveLastLeft
	b.mu.Unlock()

	for _, v := range left {
		if have {
			delta := v - prev
			if delta < 0 {
				delta = -delta
			}
			if delta > jumpThreshold {
				b.discontinuities.Add(1)
			}
		}
		prev = v
		have = true
	}

	b.mu.Lock()
	b.lastLeft = prev
	b.haveLastLeft = have
	b.mu.Unlock()
}

func (b *Backend) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.done != nil {
		<-b.done
	}
	b.running.Store(false)
	return nil
}

func (b *Backend) Cleanup() error {
	return nil
}

func (b *Backend) IsRunning() bool {
	return b.running.Load()
}

func (b *Backend) Stats() audio.Stats {
	return audio.Stats{
		CallbacksInvoked: b.callbacksInvoked.Load(),
		DeviceXruns:      b.discontinuities.Load(),
	}
}

func (b *Backend) ReportedLatencyMs() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cfg.SampleRate == 0 {
		return 0
	}
	return float64(b.cfg.Frames) / float64(b.cfg.SampleRate) * 1000
}
