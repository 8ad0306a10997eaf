package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpbx/audiobridge/internal/latency"
)

type fakeEngine struct {
	snap      latency.Snapshot
	peerBuf   int
	dropped   uint64
	overruns  uint64
	underruns uint64
}

func (f *fakeEngine) LatencySnapshot() latency.Snapshot { return f.snap }
func (f *fakeEngine) PeerBufferSize() int               { return f.peerBuf }
func (f *fakeEngine) DroppedPackets() uint64            { return f.dropped }
func (f *fakeEngine) RingOverruns() uint64              { return f.overruns }
func (f *fakeEngine) RingUnderruns() uint64             { return f.underruns }

// gather registers c on a fresh registry and returns each metric family's
// single sample value keyed by metric name, for the no-label gauges and
// counters this collector emits.
func gather(t *testing.T, c *Collector) map[string]float64 {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	values := make(map[string]float64)
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				values[fam.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[fam.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	return values
}

func TestCollectorEmitsGatheredValues(t *testing.T) {
	eng := &fakeEngine{
		snap: latency.Snapshot{
			RTTAvgMs:        5.5,
			RTTMaxMs:        12.0,
			ProcessingAvgMs: 1.2,
			JitterT2AvgMs:   0.3,
			JitterT4AvgMs:   0.4,
			RingFillAvgMs:   40.0,
			XrunCount:       2,
		},
		peerBuf:   32,
		dropped:   7,
		overruns:  1,
		underruns: 3,
	}

	values := gather(t, NewCollector(eng, time.Now().Add(-10*time.Second)))

	want := map[string]float64{
		"audiobridge_rtt_avg_ms":             5.5,
		"audiobridge_rtt_max_ms":             12.0,
		"audiobridge_processing_avg_ms":      1.2,
		"audiobridge_jitter_t2_avg_ms":       0.3,
		"audiobridge_jitter_t4_avg_ms":       0.4,
		"audiobridge_ring_fill_avg_ms":       40.0,
		"audiobridge_xruns_total":            2,
		"audiobridge_ring_overruns_total":    1,
		"audiobridge_ring_underruns_total":   3,
		"audiobridge_dropped_packets_total":  7,
		"audiobridge_peer_buffer_size_frames": 32,
	}

	for name, wantVal := range want {
		got, ok := values[name]
		if !ok {
			t.Errorf("missing metric %s", name)
			continue
		}
		if got != wantVal {
			t.Errorf("%s = %v, want %v", name, got, wantVal)
		}
	}

	if _, ok := values["audiobridge_uptime_seconds"]; !ok {
		t.Error("missing audiobridge_uptime_seconds")
	} else if values["audiobridge_uptime_seconds"] < 9.0 {
		t.Errorf("uptime_seconds = %v, want >= ~10", values["audiobridge_uptime_seconds"])
	}
}

func TestCollectorZeroValueEngine(t *testing.T) {
	values := gather(t, NewCollector(&fakeEngine{}, time.Now()))

	if values["audiobridge_rtt_avg_ms"] != 0 {
		t.Errorf("rtt_avg_ms = %v, want 0 for a fresh engine", values["audiobridge_rtt_avg_ms"])
	}
	if values["audiobridge_peer_buffer_size_frames"] != 0 {
		t.Errorf("peer_buffer_size_frames = %v, want 0", values["audiobridge_peer_buffer_size_frames"])
	}
}
