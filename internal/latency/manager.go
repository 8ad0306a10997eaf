// Package latency implements the latency manager (C4): running
// distributions over RTT, peer processing time, receive jitter, and
// ring-buffer fill level, reported periodically in milliseconds.
package latency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/flowpbx/audiobridge/internal/clock"
	"github.com/flowpbx/audiobridge/internal/wire"
)

// ReportPeriod is how often the running statistics are logged and rolled
// into a new snapshot window (spec.md section 4.4).
const ReportPeriod = 2 * time.Second

// Snapshot is a copy of the last completed window's statistics, all values
// in milliseconds, taken under the manager's mutex.
type Snapshot struct {
	RTTMinMs, RTTAvgMs, RTTMaxMs                   float64
	ProcessingMinMs, ProcessingAvgMs, ProcessingMaxMs float64
	JitterT2AvgMs float64
	JitterT4AvgMs float64
	RingFillAvgMs float64
	XrunCount     uint64
}

// Manager holds one running statistic per tracked quantity plus the
// previous t2/t4 samples needed to fold jitter, the configured expected
// inter-packet interval, and the last completed window's snapshot.
//
// Writes come from two realtime threads (the receive thread for OnReceive/
// ReportRingFill, the audio callback for ReportXrun); all access is
// serialized by mu, whose critical section is a handful of float ops and
// contains no I/O, matching the teacher's "short mutex, no I/O in the
// critical section" shared-resource policy (spec.md section 5).
type Manager struct {
	mu sync.Mutex

	logger *slog.Logger

	rtt        stat
	processing stat
	jitterT2   stat
	jitterT4   stat
	ringFill   stat
	xrunCount  uint64

	havePrev bool
	prevT2   int64
	prevT4   int64

	sampleRate      int
	expectedInterval time.Duration
	backendLatencyMs float64

	lastReport time.Time
	snapshot   Snapshot
}

// New creates a latency manager. sampleRate and bufferSize derive the
// expected inter-packet interval (bufferSize/sampleRate seconds);
// backendLatencyMs is a fixed add-on reported alongside the snapshot by
// callers that want a "perceived" end-to-end figure (the manager itself
// does not fold it into any statistic).
func New(sampleRate, bufferSize int, backendLatencyMs float64, logger *slog.Logger) *Manager {
	return &Manager{
		logger:           logger.With("subsystem", "latency-manager"),
		sampleRate:       sampleRate,
		expectedInterval: time.Duration(float64(bufferSize) / float64(sampleRate) * float64(time.Second)),
		backendLatencyMs: backendLatencyMs,
		lastReport:       time.Now(),
	}
}

// BackendLatencyMs returns the fixed backend latency add-on configured at
// Init time.
func (m *Manager) BackendLatencyMs() float64 {
	return m.backendLatencyMs
}

// SetBackendLatencyMs updates the fixed backend latency add-on. Backends
// only know their reported latency once their own Init has run, which
// happens after the manager is constructed, so the engine calls this once
// to fill in the real value.
func (m *Manager) SetBackendLatencyMs(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backendLatencyMs = ms
}

// ExpectedInterval returns the expected time between packets, derived from
// buffer_size/sample_rate.
func (m *Manager) ExpectedInterval() time.Duration {
	return m.expectedInterval
}

const nsPerMs = 1e6

// OnReceive stamps packet.T4Recv with the current clock, folds RTT and
// processing-time statistics, folds the two jitter statistics against the
// previous observation, and — every ReportPeriod — logs a report line and
// rolls the running statistics into a fresh snapshot.
func (m *Manager) OnReceive(p *wire.Packet) {
	p.T4Recv = clock.Now()
	m.Observe(p.T1Send, p.T2PeerRecv, p.T3PeerSend, p.T4Recv)
}

// Observe folds one receive event's four timestamps into the running
// statistics without touching a Packet. OnReceive stamps T4Recv from the
// clock and delegates here; tests drive this directly with fixed
// timestamps to exercise the folding arithmetic deterministically.
func (m *Manager) Observe(t1, t2, t3, t4 int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rtt.fold(float64(t4-t1) / nsPerMs)
	m.processing.fold(float64(t3-t2) / nsPerMs)

	if m.havePrev {
		m.jitterT2.fold(float64(t2-m.prevT2) / nsPerMs)
		m.jitterT4.fold(float64(t4-m.prevT4) / nsPerMs)
	}
	m.prevT2 = t2
	m.prevT4 = t4
	m.havePrev = true

	m.maybeReportLocked()
}

// ReportRingFill folds the current ring-buffer fill level (in samples) into
// the fill-level statistic, converting to milliseconds using the configured
// sample rate.
func (m *Manager) ReportRingFill(levelSamples int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := float64(levelSamples) / float64(m.sampleRate) * 1000
	m.ringFill.fold(ms)
	m.maybeReportLocked()
}

// ReportXrun increments the xrun counter included in the next snapshot.
func (m *Manager) ReportXrun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.xrunCount++
}

// maybeReportLocked must be called with mu held. Every ReportPeriod it logs
// a line and atomically copies the running statistics into the snapshot,
// then zeroes them for the next window.
func (m *Manager) maybeReportLocked() {
	now := time.Now()
	if now.Sub(m.lastReport) < ReportPeriod {
		return
	}
	m.lastReport = now

	m.snapshot = Snapshot{
		RTTMinMs:        m.rtt.min,
		RTTAvgMs:        m.rtt.avg(),
		RTTMaxMs:        m.rtt.max,
		ProcessingMinMs: m.processing.min,
		ProcessingAvgMs: m.processing.avg(),
		ProcessingMaxMs: m.processing.max,
		JitterT2AvgMs:   m.jitterT2.avg(),
		JitterT4AvgMs:   m.jitterT4.avg(),
		RingFillAvgMs:   m.ringFill.avg(),
		XrunCount:       m.xrunCount,
	}

	m.logger.Info("latency report",
		"rtt_avg_ms", m.snapshot.RTTAvgMs,
		"rtt_max_ms", m.snapshot.RTTMaxMs,
		"processing_avg_ms", m.snapshot.ProcessingAvgMs,
		"jitter_t2_avg_ms", m.snapshot.JitterT2AvgMs,
		"jitter_t4_avg_ms", m.snapshot.JitterT4AvgMs,
		"ring_fill_avg_ms", m.snapshot.RingFillAvgMs,
		"xruns", m.snapshot.XrunCount,
	)

	m.rtt.reset()
	m.processing.reset()
	m.jitterT2.reset()
	m.jitterT4.reset()
	m.ringFill.reset()
	m.xrunCount = 0
}

// Snapshot copies the last completed window's statistics.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}
