//go:build windows

package netio

import (
	"log/slog"
	"net"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// sioUDPConnReset is SIO_UDP_CONNRESET. Setting it to FALSE disables the
// Windows behavior of surfacing an ICMP port-unreachable as a hard socket
// error on the next read, which would otherwise terminate the receive loop
// whenever the peer is briefly unreachable (spec.md section 4.5).
const sioUDPConnReset = windows.IOC_IN | windows.IOC_VENDOR | 12

// SetRealtimePriority raises the calling OS thread's priority class. Windows
// has no SCHED_FIFO equivalent exposed to userspace UDP engines; the
// closest analogue is THREAD_PRIORITY_TIME_CRITICAL, which this requests
// best-effort. Failure is logged, not fatal.
func SetRealtimePriority(logger *slog.Logger) {
	handle := windows.CurrentThread()
	if err := windows.SetThreadPriority(handle, windows.THREAD_PRIORITY_TIME_CRITICAL); err != nil {
		logger.Warn("netio: failed to raise receive thread priority, continuing at default priority", "error", err)
		return
	}
	logger.Info("netio: receive thread running at time-critical priority")
}

// disableConnReset issues the SIO_UDP_CONNRESET ioctl so a temporarily
// absent peer does not terminate the receive loop with WSAECONNRESET.
func disableConnReset(conn *net.UDPConn, logger *slog.Logger) {
	raw, err := conn.SyscallConn()
	if err != nil {
		logger.Warn("netio: failed to get raw conn for SIO_UDP_CONNRESET", "error", err)
		return
	}

	var ctlErr error
	flag := uint32(0) // FALSE: do not convert ICMP port-unreachable to a socket error
	err = raw.Control(func(fd uintptr) {
		var bytesReturned uint32
		ctlErr = syscall.WSAIoctl(
			syscall.Handle(fd),
			sioUDPConnReset,
			(*byte)(unsafe.Pointer(&flag)),
			4,
			nil,
			0,
			&bytesReturned,
			nil,
			0,
		)
	})
	if err != nil {
		ctlErr = err
	}
	if ctlErr != nil {
		logger.Warn("netio: failed to disable SIO_UDP_CONNRESET", "error", ctlErr)
	}
}
