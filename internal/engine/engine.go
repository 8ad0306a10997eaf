// Package engine implements the transport engine (C6) and control API (C8):
// it owns the sockets, ring buffer, latency manager, and backend handle,
// runs the receive loop, hosts the audio callback, and drives the engine
// through its init -> start -> stop -> cleanup lifecycle.
//
// Grounded on flowpbx-flowpbx's internal/media.MediaSession and Relay: the
// same "own the sockets, run a background forward loop, serialise lifecycle
// transitions under one mutex" shape, generalized from RTP forwarding to
// the timestamped PCM protocol and the ring-buffer/latency-manager pairing
// this system adds.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/flowpbx/audiobridge/internal/audio"
	"github.com/flowpbx/audiobridge/internal/clock"
	"github.com/flowpbx/audiobridge/internal/latency"
	"github.com/flowpbx/audiobridge/internal/netio"
	"github.com/flowpbx/audiobridge/internal/ringbuf"
	"github.com/flowpbx/audiobridge/internal/wire"
)

// Engine ties together C3-C5 and C7 behind the control API of C8. A zero
// Engine is ready to use; construct with New.
type Engine struct {
	factories map[audio.Kind]audio.Factory
	logger    *slog.Logger

	mu    sync.Mutex
	state State
	cfg   Config

	sender   *netio.Sender
	receiver *netio.Receiver
	ring     *ringbuf.RingBuffer
	latMgr   *latency.Manager
	backend  audio.Backend

	sessionID uuid.UUID

	receiveCancel context.CancelFunc
	receiveDone   chan struct{}

	peerBufferSize atomic.Int64
	droppedPackets atomic.Uint64
	passthrough    atomic.Bool
}

// New constructs an Engine. factories supplies one audio.Factory per
// audio.Kind the caller wants available (typically Hardware-A/B over
// malgosound plus Simulated); the engine holds only the resulting
// audio.Backend interface value and never downcasts it, per spec.md
// section 9's design note.
func New(factories map[audio.Kind]audio.Factory, logger *slog.Logger) *Engine {
	return &Engine{
		factories: factories,
		logger:    logger.With("subsystem", "engine"),
		state:     StateUninitialised,
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Init creates sockets, the ring buffer, and the backend, and starts the
// receive task. It is idempotency-guarded: calling Init while already
// initialised fails without side effects. Any sub-step failure rolls back
// everything allocated so far.
func (e *Engine) Init(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateUninitialised {
		return ErrAlreadyInitialised
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var rollbacks []func()
	rollback := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
	}

	var sender *netio.Sender
	if !cfg.Passthrough {
		peerAddr := &net.UDPAddr{IP: net.ParseIP(cfg.PeerIP), Port: cfg.PeerPort}
		if peerAddr.IP == nil {
			return fmt.Errorf("%w: invalid peer ip %q", ErrConfigInvalid, cfg.PeerIP)
		}
		var err error
		sender, err = netio.NewSender(peerAddr, e.logger)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSocketSetup, err)
		}
		rollbacks = append(rollbacks, func() { sender.Close() })
	}

	receiver, err := netio.NewReceiver(cfg.ListenPort, e.logger)
	if err != nil {
		rollback()
		return fmt.Errorf("%w: %v", ErrSocketSetup, err)
	}
	rollbacks = append(rollbacks, func() { receiver.Close() })

	ring := ringbuf.New(cfg.RingDepth, wire.Channels)

	factory, ok := e.factories[cfg.BackendKind]
	if !ok {
		rollback()
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, cfg.BackendKind)
	}
	backend, err := factory()
	if err != nil {
		rollback()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	latMgr := latency.New(int(cfg.SampleRate), int(cfg.DeviceBufferFrames), 0, e.logger)

	// Roughly one send per device period, with headroom for a grouped
	// packet-buffer flush arriving slightly early; this is a backstop
	// against a runaway caller, not a pacing mechanism (the backend's own
	// callback cadence already paces sends under normal operation).
	periodsPerSecond := float64(cfg.SampleRate) / float64(cfg.DeviceBufferFrames)
	sendLimiter := rate.NewLimiter(rate.Limit(periodsPerSecond*2), 4)

	backendCfg := audio.Config{
		SampleRate:        cfg.SampleRate,
		Frames:            cfg.DeviceBufferFrames,
		PlaybackChannels:  2,
		CaptureChannels:   1,
		DesignatedChannel: 0,
		DevicePlayback:    cfg.PlaybackDevice,
		DeviceCapture:     cfg.CaptureDevice,
	}

	accum := make([]float32, int(cfg.PacketBufferFrames)*wire.Channels)
	popScratch := make([]float32, int(cfg.DeviceBufferFrames)*wire.Channels)
	accumFilled := 0
	e.passthrough.Store(cfg.Passthrough)

	cb := func(input []float32, outLeft, outRight []float32, n int) {
		if e.passthrough.Load() {
			copy(outLeft[:n], input[:n])
			copy(outRight[:n], input[:n])
			return
		}

		for i := 0; i < n; i++ {
			idx := (accumFilled + i) * wire.Channels
			if idx+1 >= len(accum) {
				break
			}
			accum[idx] = input[i]
			accum[idx+1] = input[i]
		}
		accumFilled += n
		if accumFilled >= int(cfg.PacketBufferFrames) {
			if sendLimiter.Allow() {
				pkt, perr := wire.Assemble(accum, accumFilled, wire.Channels)
				if perr != nil {
					e.logger.Warn("engine: assemble failed", "error", perr)
				} else {
					pkt.T1Send = clock.Now()
					data, merr := pkt.Marshal()
					if merr != nil {
						e.logger.Warn("engine: marshal failed", "error", merr)
					} else if serr := sender.Send(data); serr != nil {
						e.logger.Debug("engine: send failed", "error", serr)
					}
				}
			}
			accumFilled = 0
		}

		underrunsBefore := ring.Underruns()
		if perr := ring.Pop(popScratch[:n*wire.Channels], n, wire.Channels); perr != nil {
			e.logger.Warn("engine: ring pop failed", "error", perr)
		}
		if ring.Underruns() != underrunsBefore {
			latMgr.ReportXrun()
		}
		for i := 0; i < n; i++ {
			outLeft[i] = popScratch[i*wire.Channels]
			outRight[i] = popScratch[i*wire.Channels+1]
		}
	}

	if err := backend.Init(backendCfg, cb); err != nil {
		rollback()
		return fmt.Errorf("%w: %v", ErrBackendInit, err)
	}
	rollbacks = append(rollbacks, func() { backend.Cleanup() })
	latMgr.SetBackendLatencyMs(backend.ReportedLatencyMs())

	ctx, cancel := context.WithCancel(context.Background())
	e.receiveCancel = cancel
	e.receiveDone = make(chan struct{})
	e.sessionID = uuid.New()

	e.cfg = cfg
	e.sender = sender
	e.receiver = receiver
	e.ring = ring
	e.backend = backend
	e.latMgr = latMgr
	e.peerBufferSize.Store(0)
	e.droppedPackets.Store(0)

	go e.receiveLoop(ctx, receiver, ring, latMgr)

	e.state = StateInitialised
	e.logger.Info("engine initialised",
		"session_id", e.sessionID.String(),
		"backend", string(cfg.BackendKind),
		"sample_rate", cfg.SampleRate,
		"device_buffer", cfg.DeviceBufferFrames,
		"packet_buffer", cfg.PacketBufferFrames,
		"ring_depth", cfg.RingDepth,
		"passthrough", cfg.Passthrough,
	)
	return nil
}

// Start starts the backend; the audio callback then fires autonomously.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInitialised && e.state != StateStopped {
		return fmt.Errorf("%w: cannot start from state %s", ErrNotInitialised, e.state)
	}
	if err := e.backend.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendInit, err)
	}
	e.state = StateRunning
	e.logger.Info("engine started", "session_id", e.sessionID.String())
	return nil
}

// Stop stops the backend. The receive task keeps running so late packets
// are still drained into the ring buffer.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return fmt.Errorf("%w: cannot stop from state %s", ErrNotInitialised, e.state)
	}
	if err := e.backend.Stop(); err != nil {
		return fmt.Errorf("engine: backend stop: %w", err)
	}
	e.state = StateStopped
	e.logger.Info("engine stopped", "session_id", e.sessionID.String())
	return nil
}

// Cleanup stops the backend if running, signals the receive task, joins
// it, closes the sockets, and frees the backend and ring buffer. After
// Cleanup the engine is uninitialised and may be reused with a fresh Init.
func (e *Engine) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateUninitialised {
		return nil
	}

	var firstErr error
	recordErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if e.state == StateRunning {
		recordErr(e.backend.Stop())
	}
	recordErr(e.backend.Cleanup())

	if e.receiveCancel != nil {
		e.receiveCancel()
	}
	if e.receiveDone != nil {
		<-e.receiveDone
	}

	if e.sender != nil {
		recordErr(e.sender.Close())
	}
	recordErr(e.receiver.Close())

	e.backend = nil
	e.sender = nil
	e.receiver = nil
	e.ring = nil
	e.latMgr = nil
	e.receiveCancel = nil
	e.receiveDone = nil
	e.state = StateUninitialised

	e.logger.Info("engine cleaned up", "session_id", e.sessionID.String())
	if firstErr != nil {
		return fmt.Errorf("engine: cleanup: %w", firstErr)
	}
	return nil
}

// Update applies runtime-changeable configuration fields in place. If any
// restart-requiring field differs (buffer size, ring depth, peer ip, peer
// port, backend type, listen port) it returns ErrRestartRequired and leaves
// the engine untouched, so the caller can Cleanup and Init fresh.
func (e *Engine) Update(next Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := next.Validate(); err != nil {
		return err
	}
	if e.cfg.restartRequired(next) {
		return ErrRestartRequired
	}

	e.cfg.Passthrough = next.Passthrough
	e.cfg.CaptureDevice = next.CaptureDevice
	e.cfg.PlaybackDevice = next.PlaybackDevice
	e.passthrough.Store(next.Passthrough)
	return nil
}

// LatencySnapshot returns the latency manager's last completed window,
// safe to call at any time, including while the engine is running.
func (e *Engine) LatencySnapshot() latency.Snapshot {
	e.mu.Lock()
	mgr := e.latMgr
	e.mu.Unlock()
	if mgr == nil {
		return latency.Snapshot{}
	}
	return mgr.Snapshot()
}

// PeerBufferSize returns the most recently observed n_samples value from an
// inbound packet, i.e. the peer's current packet grouping, or 0 if nothing
// has been received yet.
func (e *Engine) PeerBufferSize() int {
	return int(e.peerBufferSize.Load())
}

// DroppedPackets returns the cumulative count of inbound datagrams that
// were the wrong length or failed to parse.
func (e *Engine) DroppedPackets() uint64 {
	return e.droppedPackets.Load()
}

// RingOverruns returns the play-out ring buffer's cumulative overrun count,
// or 0 if the engine is not initialised.
func (e *Engine) RingOverruns() uint64 {
	e.mu.Lock()
	ring := e.ring
	e.mu.Unlock()
	if ring == nil {
		return 0
	}
	return ring.Overruns()
}

// RingUnderruns returns the play-out ring buffer's cumulative underrun
// count, or 0 if the engine is not initialised.
func (e *Engine) RingUnderruns() uint64 {
	e.mu.Lock()
	ring := e.ring
	e.mu.Unlock()
	if ring == nil {
		return 0
	}
	return ring.Underruns()
}

// receiveLoop is the dedicated receive thread (spawned at Init, per
// spec.md section 5): it loops until ctx is cancelled, honoring the
// receiver's own read timeout between iterations. It locks itself to its
// own OS thread and requests the realtime scheduling class, since
// SCHED_FIFO (and its Windows analogue) is a per-thread attribute that
// would otherwise leak onto whichever goroutine the runtime schedules next.
func (e *Engine) receiveLoop(ctx context.Context, receiver *netio.Receiver, ring *ringbuf.RingBuffer, latMgr *latency.Manager) {
	defer close(e.receiveDone)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	netio.SetRealtimePriority(e.logger)

	bufSize := wire.PacketSize
	if wire.LatencyInfoSize > bufSize {
		bufSize = wire.LatencyInfoSize
	}
	buf := make([]byte, bufSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := receiver.Receive(buf)
		if err != nil {
			if errors.Is(err, netio.ErrTimeout) {
				continue
			}
			e.logger.Debug("engine: receive error", "error", err)
			continue
		}

		switch n {
		case wire.PacketSize:
			p, perr := wire.Unmarshal(buf[:n])
			if perr != nil {
				e.droppedPackets.Add(1)
				continue
			}
			latMgr.OnReceive(p)
			overrunsBefore := ring.Overruns()
			if perr := ring.Push(p.FrameSamples(), int(p.NSamples), wire.Channels); perr != nil {
				e.logger.Warn("engine: ring push failed", "error", perr)
				continue
			}
			if ring.Overruns() != overrunsBefore {
				latMgr.ReportXrun()
			}
			e.peerBufferSize.Store(int64(p.NSamples))
			latMgr.ReportRingFill(ring.Available())
		case wire.LatencyInfoSize:
			if _, perr := wire.UnmarshalLatencyInfo(buf[:n]); perr != nil {
				e.droppedPackets.Add(1)
			}
		default:
			e.droppedPackets.Add(1)
		}
	}
}
