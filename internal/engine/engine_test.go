package engine

import (
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/flowpbx/audiobridge/internal/audio"
	"github.com/flowpbx/audiobridge/internal/audio/simulated"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func simulatedFactories() map[audio.Kind]audio.Factory {
	return map[audio.Kind]audio.Factory{
		audio.Simulated: simulated.New(discardLogger()),
	}
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func baseConfig(t *testing.T) Config {
	return Config{
		BackendKind:        audio.Simulated,
		PeerIP:             "127.0.0.1",
		PeerPort:           freeUDPPort(t),
		ListenPort:         freeUDPPort(t),
		SampleRate:         48000,
		DeviceBufferFrames: 32,
		PacketBufferFrames: 32,
		RingDepth:          2048,
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	cfg := baseConfig(t)

	if err := e.Init(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	if e.State() != StateInitialised {
		t.Fatalf("expected StateInitialised, got %s", e.State())
	}

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if e.State() != StateRunning {
		t.Fatalf("expected StateRunning, got %s", e.State())
	}

	time.Sleep(50 * time.Millisecond)

	if err := e.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if e.State() != StateStopped {
		t.Fatalf("expected StateStopped, got %s", e.State())
	}

	if err := e.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if e.State() != StateUninitialised {
		t.Fatalf("expected StateUninitialised, got %s", e.State())
	}
}

func TestInitIsIdempotencyGuarded(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	cfg := baseConfig(t)

	if err := e.Init(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer e.Cleanup()

	if err := e.Init(cfg); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected ErrAlreadyInitialised, got %v", err)
	}
}

func TestStartBeforeInitFails(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	if err := e.Start(); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("expected ErrNotInitialised, got %v", err)
	}
}

func TestStopBeforeStartFails(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	cfg := baseConfig(t)
	if err := e.Init(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer e.Cleanup()

	if err := e.Stop(); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("expected ErrNotInitialised, got %v", err)
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	cfg := baseConfig(t)
	if err := e.Init(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := e.Cleanup(); err != nil {
		t.Fatalf("first cleanup: %v", err)
	}
	if err := e.Cleanup(); err != nil {
		t.Fatalf("second cleanup should be a no-op: %v", err)
	}
}

func TestInitCleanupInitIsIdempotent(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	cfg := baseConfig(t)

	if err := e.Init(cfg); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := e.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if err := e.Init(cfg); err != nil {
		t.Fatalf("second init: %v", err)
	}
	defer e.Cleanup()

	if e.State() != StateInitialised {
		t.Fatalf("expected StateInitialised after re-init, got %s", e.State())
	}
}

func TestUnknownBackendKindIsUnavailable(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	cfg := baseConfig(t)
	cfg.BackendKind = audio.HardwareA

	if err := e.Init(cfg); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if e.State() != StateUninitialised {
		t.Fatalf("expected rollback to StateUninitialised, got %s", e.State())
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	cfg := baseConfig(t)
	cfg.PacketBufferFrames = 33 // not a multiple of device buffer

	if err := e.Init(cfg); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestUpdateNonRestartFieldAppliesLive(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	cfg := baseConfig(t)
	if err := e.Init(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer e.Cleanup()

	next := cfg
	next.Passthrough = true
	if err := e.Update(next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !e.passthrough.Load() {
		t.Fatal("expected passthrough flag to flip live")
	}
}

func TestUpdateRestartFieldIsRejected(t *testing.T) {
	e := New(simulatedFactories(), discardLogger())
	cfg := baseConfig(t)
	if err := e.Init(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer e.Cleanup()

	next := cfg
	next.RingDepth = cfg.RingDepth * 2
	if err := e.Update(next); !errors.Is(err, ErrRestartRequired) {
		t.Fatalf("expected ErrRestartRequired, got %v", err)
	}
}

// TestTwoEnginesExchangePackets is a scaled-down version of spec scenario 2
// (echo with a local peer): two engines on localhost, crossed ports, each
// running a Simulated backend, relay packets to one another until each
// engine has observed a peer buffer size from inbound packets.
func TestTwoEnginesExchangePackets(t *testing.T) {
	portA := freeUDPPort(t)
	portB := freeUDPPort(t)

	a := New(simulatedFactories(), discardLogger())
	b := New(simulatedFactories(), discardLogger())

	cfgA := Config{
		BackendKind: audio.Simulated, PeerIP: "127.0.0.1", PeerPort: portB, ListenPort: portA,
		SampleRate: 48000, DeviceBufferFrames: 32, PacketBufferFrames: 32, RingDepth: 2048,
	}
	cfgB := Config{
		BackendKind: audio.Simulated, PeerIP: "127.0.0.1", PeerPort: portA, ListenPort: portB,
		SampleRate: 48000, DeviceBufferFrames: 32, PacketBufferFrames: 32, RingDepth: 2048,
	}

	if err := a.Init(cfgA); err != nil {
		t.Fatalf("init a: %v", err)
	}
	defer a.Cleanup()
	if err := b.Init(cfgB); err != nil {
		t.Fatalf("init b: %v", err)
	}
	defer b.Cleanup()

	if err := a.Start(); err != nil {
		t.Fatalf("start a: %v", err)
	}
	defer a.Stop()
	if err := b.Start(); err != nil {
		t.Fatalf("start b: %v", err)
	}
	defer b.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if a.LatencySnapshot().RingFillAvgMs > 0 || a.PeerBufferSize() > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if a.PeerBufferSize() == 0 {
		t.Fatal("expected engine A to have observed a peer buffer size from inbound packets")
	}
	if b.PeerBufferSize() == 0 {
		t.Fatal("expected engine B to have observed a peer buffer size from inbound packets")
	}
}

func TestConfigValidatePassthroughNeedsNoPeer(t *testing.T) {
	cfg := Config{
		BackendKind:        audio.Simulated,
		ListenPort:         0,
		SampleRate:         48000,
		DeviceBufferFrames: 32,
		PacketBufferFrames: 32,
		RingDepth:          2048,
		Passthrough:        true,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected passthrough config without peer to validate, got %v", err)
	}
}

func TestConfigValidateRejectsZeroRingDepth(t *testing.T) {
	cfg := baseConfig(t)
	cfg.RingDepth = 0
	if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

