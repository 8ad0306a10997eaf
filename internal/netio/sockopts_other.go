//go:build !linux && !windows

package netio

import (
	"log/slog"
	"net"
)

// SetRealtimePriority is a no-op on platforms with no realtime scheduling
// hook wired up yet. Failure to elevate priority is never fatal per
// spec.md section 4.5.
func SetRealtimePriority(logger *slog.Logger) {
	logger.Debug("netio: no realtime scheduling hook for this platform, running at default priority")
}

// disableConnReset is a no-op outside of Windows, where ICMP
// port-unreachable does not force-close a connected UDP socket.
func disableConnReset(_ *net.UDPConn, _ *slog.Logger) {}
