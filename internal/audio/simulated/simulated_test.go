package simulated

import (
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowpbx/audiobridge/internal/audio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSimulatedBackendInvokesCallbackPeriodically(t *testing.T) {
	factory := New(discardLogger())
	backend, err := factory()
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	var invocations atomic.Int32
	cfg := audio.Config{SampleRate: 48000, Frames: 480, PlaybackChannels: 2, CaptureChannels: 1}
	err = backend.Init(cfg, func(input []float32, outLeft, outRight []float32, n int) {
		invocations.Add(1)
		for i := 0; i < n; i++ {
			outLeft[i] = input[i]
			outRight[i] = input[i]
		}
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := backend.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !backend.IsRunning() {
		t.Fatal("expected IsRunning true after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for invocations.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := backend.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if backend.IsRunning() {
		t.Fatal("expected IsRunning false after Stop")
	}

	if invocations.Load() < 3 {
		t.Fatalf("expected at least 3 callback invocations, got %d", invocations.Load())
	}

	stats := backend.Stats()
	if stats.CallbacksInvoked < 3 {
		t.Fatalf("expected CallbacksInvoked >= 3, got %d", stats.CallbacksInvoked)
	}
}

func TestSimulatedBackendReportsLatency(t *testing.T) {
	factory := New(discardLogger())
	backend, _ := factory()

	cfg := audio.Config{SampleRate: 48000, Frames: 480, PlaybackChannels: 2, CaptureChannels: 1}
	if err := backend.Init(cfg, func([]float32, []float32, []float32, int) {}); err != nil {
		t.Fatalf("init: %v", err)
	}

	want := float64(480) / float64(48000) * 1000
	if got := backend.ReportedLatencyMs(); got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSimulatedBackendGeneratesNonSilentInput(t *testing.T) {
	factory := New(discardLogger())
	backend, _ := factory()

	seen := make(chan []float32, 1)
	cfg := audio.Config{SampleRate: 48000, Frames: 480, PlaybackChannels: 2, CaptureChannels: 1}
	if err := backend.Init(cfg, func(input []float32, outLeft, outRight []float32, n int) {
		cp := make([]float32, n)
		copy(cp, input)
		select {
		case seen <- cp:
		default:
		}
	}); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := backend.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer backend.Stop()

	select {
	case input := <-seen:
		nonZero := false
		for _, v := range input {
			if v != 0 {
				nonZero = true
				break
			}
		}
		if !nonZero {
			t.Fatal("expected non-silent tone input")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback invocation")
	}
}
