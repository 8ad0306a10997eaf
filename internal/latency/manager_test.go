package latency

import (
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Scenario 5 from spec.md section 8: assemble a packet with t1=1,000,000 and
// inject a receive with t4=2,500,000, t2=1,100,000, t3=2,300,000; assert the
// snapshot reports RTT avg = 1.5 ms, processing avg = 1.2 ms.
func TestRTTAndProcessingAverages(t *testing.T) {
	m := New(48000, 128, 5, discardLogger())

	const t1 = 1_000_000
	const t2 = 1_100_000
	const t3 = 2_300_000
	const t4 = 2_500_000

	m.Observe(t1, t2, t3, t4)

	snap := forceSnapshot(m)
	if snap.RTTAvgMs != 1.5 {
		t.Fatalf("RTTAvgMs = %v, want 1.5", snap.RTTAvgMs)
	}
	if snap.ProcessingAvgMs != 1.2 {
		t.Fatalf("ProcessingAvgMs = %v, want 1.2", snap.ProcessingAvgMs)
	}
}

func TestJitterSkippedOnFirstSample(t *testing.T) {
	m := New(48000, 128, 0, discardLogger())
	m.Observe(0, 100, 200, 300)
	snap := forceSnapshot(m)
	if snap.JitterT2AvgMs != 0 || snap.JitterT4AvgMs != 0 {
		t.Fatalf("expected zero jitter on first sample, got t2=%v t4=%v", snap.JitterT2AvgMs, snap.JitterT4AvgMs)
	}
}

func TestJitterFoldsOnSubsequentSamples(t *testing.T) {
	m := New(48000, 128, 0, discardLogger())
	// ns units; jitter is the delta between successive t2/t4 values.
	m.Observe(0, 1_000_000, 1_500_000, 2_000_000)
	m.Observe(0, 1_020_000, 1_520_000, 2_021_000)
	snap := forceSnapshot(m)
	// t2 advances by 20,000 ns (0.02 ms), t4 by 21,000 ns (0.021 ms).
	if snap.JitterT2AvgMs != 0.02 {
		t.Fatalf("JitterT2AvgMs = %v, want 0.02", snap.JitterT2AvgMs)
	}
	if snap.JitterT4AvgMs != 0.021 {
		t.Fatalf("JitterT4AvgMs = %v, want 0.021", snap.JitterT4AvgMs)
	}
}

func TestReportRingFillConvertsSamplesToMs(t *testing.T) {
	m := New(48000, 128, 0, discardLogger())
	m.ReportRingFill(4800) // 4800 samples / 48000 Hz = 100ms
	snap := forceSnapshot(m)
	if snap.RingFillAvgMs != 100 {
		t.Fatalf("RingFillAvgMs = %v, want 100", snap.RingFillAvgMs)
	}
}

func TestReportXrunIncludedInSnapshot(t *testing.T) {
	m := New(48000, 128, 0, discardLogger())
	m.ReportXrun()
	m.ReportXrun()
	snap := forceSnapshot(m)
	if snap.XrunCount != 2 {
		t.Fatalf("XrunCount = %d, want 2", snap.XrunCount)
	}
}

// forceSnapshot rolls the manager's current running statistics into the
// snapshot immediately, bypassing the 2-second report period, so tests don't
// need to sleep.
func forceSnapshot(m *Manager) Snapshot {
	m.mu.Lock()
	m.lastReport = m.lastReport.Add(-ReportPeriod * 2)
	m.maybeReportLocked()
	m.mu.Unlock()
	return m.Snapshot()
}
