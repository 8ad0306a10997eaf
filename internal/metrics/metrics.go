// Package metrics implements a prometheus.Collector that scrapes the
// engine's latency snapshot and ring-buffer counters at scrape time.
// Grounded on flowpbx-flowpbx's internal/metrics.Collector: the same
// "accept a handful of narrow provider interfaces, build prometheus.Desc
// values once in NewCollector, gather them in Collect" shape, generalized
// here from call/registration/RTP counters to the transport engine's
// latency and play-out buffering statistics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpbx/audiobridge/internal/latency"
)

// EngineStats exposes the subset of an engine's observable state the
// collector needs. *engine.Engine satisfies this without metrics importing
// the engine package, mirroring the teacher's decoupled provider style
// (ActiveCallsProvider, RTPStatsProvider, and friends).
type EngineStats interface {
	LatencySnapshot() latency.Snapshot
	PeerBufferSize() int
	DroppedPackets() uint64
	RingOverruns() uint64
	RingUnderruns() uint64
}

// Collector is a prometheus.Collector that gathers audiobridge metrics at
// scrape time from an EngineStats provider.
type Collector struct {
	engine    EngineStats
	startTime time.Time

	rttAvgDesc        *prometheus.Desc
	rttMaxDesc        *prometheus.Desc
	processingAvgDesc *prometheus.Desc
	jitterT2AvgDesc   *prometheus.Desc
	jitterT4AvgDesc   *prometheus.Desc
	ringFillAvgDesc   *prometheus.Desc
	xrunTotalDesc     *prometheus.Desc
	overrunTotalDesc  *prometheus.Desc
	underrunTotalDesc *prometheus.Desc
	droppedTotalDesc  *prometheus.Desc
	peerBufferDesc    *prometheus.Desc
	uptimeDesc        *prometheus.Desc
}

// NewCollector creates a metrics collector over the given engine. startTime
// is the process start time, used to compute the uptime gauge.
func NewCollector(e EngineStats, startTime time.Time) *Collector {
	return &Collector{
		engine:    e,
		startTime: startTime,

		rttAvgDesc: prometheus.NewDesc(
			"audiobridge_rtt_avg_ms",
			"Average round-trip time over the last completed report window, in milliseconds",
			nil, nil,
		),
		rttMaxDesc: prometheus.NewDesc(
			"audiobridge_rtt_max_ms",
			"Maximum round-trip time over the last completed report window, in milliseconds",
			nil, nil,
		),
		processingAvgDesc: prometheus.NewDesc(
			"audiobridge_processing_avg_ms",
			"Average peer processing time over the last completed report window, in milliseconds",
			nil, nil,
		),
		jitterT2AvgDesc: prometheus.NewDesc(
			"audiobridge_jitter_t2_avg_ms",
			"Average peer-side receive jitter over the last completed report window, in milliseconds",
			nil, nil,
		),
		jitterT4AvgDesc: prometheus.NewDesc(
			"audiobridge_jitter_t4_avg_ms",
			"Average local receive jitter over the last completed report window, in milliseconds",
			nil, nil,
		),
		ringFillAvgDesc: prometheus.NewDesc(
			"audiobridge_ring_fill_avg_ms",
			"Average play-out ring buffer fill level over the last completed report window, in milliseconds",
			nil, nil,
		),
		xrunTotalDesc: prometheus.NewDesc(
			"audiobridge_xruns_total",
			"Cumulative overrun/underrun count reported in the last completed window",
			nil, nil,
		),
		overrunTotalDesc: prometheus.NewDesc(
			"audiobridge_ring_overruns_total",
			"Cumulative count of ring buffer overruns (oldest-data eviction) since engine init",
			nil, nil,
		),
		underrunTotalDesc: prometheus.NewDesc(
			"audiobridge_ring_underruns_total",
			"Cumulative count of ring buffer underruns (silent re-prefill) since engine init",
			nil, nil,
		),
		droppedTotalDesc: prometheus.NewDesc(
			"audiobridge_dropped_packets_total",
			"Cumulative count of inbound datagrams dropped for wrong length or parse failure",
			nil, nil,
		),
		peerBufferDesc: prometheus.NewDesc(
			"audiobridge_peer_buffer_size_frames",
			"Most recently observed peer packet grouping, in frames",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"audiobridge_uptime_seconds",
			"Seconds since the audiobridge process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rttAvgDesc
	ch <- c.rttMaxDesc
	ch <- c.processingAvgDesc
	ch <- c.jitterT2AvgDesc
	ch <- c.jitterT4AvgDesc
	ch <- c.ringFillAvgDesc
	ch <- c.xrunTotalDesc
	ch <- c.overrunTotalDesc
	ch <- c.underrunTotalDesc
	ch <- c.droppedTotalDesc
	ch <- c.peerBufferDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. Unlike the teacher's variant,
// every source here is in-process and non-blocking, so Collect needs no
// context timeout around the gather.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.engine.LatencySnapshot()

	ch <- prometheus.MustNewConstMetric(c.rttAvgDesc, prometheus.GaugeValue, snap.RTTAvgMs)
	ch <- prometheus.MustNewConstMetric(c.rttMaxDesc, prometheus.GaugeValue, snap.RTTMaxMs)
	ch <- prometheus.MustNewConstMetric(c.processingAvgDesc, prometheus.GaugeValue, snap.ProcessingAvgMs)
	ch <- prometheus.MustNewConstMetric(c.jitterT2AvgDesc, prometheus.GaugeValue, snap.JitterT2AvgMs)
	ch <- prometheus.MustNewConstMetric(c.jitterT4AvgDesc, prometheus.GaugeValue, snap.JitterT4AvgMs)
	ch <- prometheus.MustNewConstMetric(c.ringFillAvgDesc, prometheus.GaugeValue, snap.RingFillAvgMs)
	ch <- prometheus.MustNewConstMetric(c.xrunTotalDesc, prometheus.CounterValue, float64(snap.XrunCount))
	ch <- prometheus.MustNewConstMetric(c.overrunTotalDesc, prometheus.CounterValue, float64(c.engine.RingOverruns()))
	ch <- prometheus.MustNewConstMetric(c.underrunTotalDesc, prometheus.CounterValue, float64(c.engine.RingUnderruns()))
	ch <- prometheus.MustNewConstMetric(c.droppedTotalDesc, prometheus.CounterValue, float64(c.engine.DroppedPackets()))
	ch <- prometheus.MustNewConstMetric(c.peerBufferDesc, prometheus.GaugeValue, float64(c.engine.PeerBufferSize()))
	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds())
}
