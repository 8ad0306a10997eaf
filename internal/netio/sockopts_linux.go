//go:build linux

package netio

import (
	"log/slog"
	"net"

	"golang.org/x/sys/unix"
)

// realtimeFIFOPriority is the SCHED_FIFO priority requested for the receive
// thread, per spec.md section 4.5 ("priority ≈ 90 of SCHED_FIFO or the
// closest equivalent").
const realtimeFIFOPriority = 90

// SetRealtimePriority requests the SCHED_FIFO scheduling class for the
// calling OS thread. The caller must have already called
// runtime.LockOSThread, since scheduling policy is a per-thread (not
// per-goroutine) Linux attribute. Failure is logged and otherwise ignored —
// it almost always means the process lacks CAP_SYS_NICE, which is common
// outside of dedicated low-latency audio deployments.
func SetRealtimePriority(logger *slog.Logger) {
	err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: realtimeFIFOPriority})
	if err != nil {
		logger.Warn("netio: failed to set realtime scheduling class, continuing at default priority", "error", err)
		return
	}
	logger.Info("netio: receive thread running at SCHED_FIFO priority", "priority", realtimeFIFOPriority)
}

// disableConnReset is a no-op on Linux: ICMP port-unreachable does not
// force-close a connected UDP socket the way it can on Windows, so there is
// nothing to suppress.
func disableConnReset(_ *net.UDPConn, _ *slog.Logger) {}
