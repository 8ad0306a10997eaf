package netio

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

const (
	// receiverRecvBuffer is the enlarged socket receive buffer, sized to
	// absorb burst arrivals ahead of the receive loop draining them.
	receiverRecvBuffer = 1 << 20 // ~1 MiB

	// ReadTimeout bounds how long a single ReadFromUDP call can block, so
	// the receive loop can re-check a stop flag between blocking reads.
	ReadTimeout = 100 * time.Millisecond
)

// Receiver is a UDP socket bound to the local port (any address), with an
// enlarged receive buffer and a short read timeout so its caller's receive
// loop can honor a stop flag between blocking reads.
type Receiver struct {
	conn   *net.UDPConn
	logger *slog.Logger
}

// NewReceiver binds a UDP socket on the given local port and applies the
// enlarged receive buffer. It also requests connreset-suppression via the
// platform-specific hook (sockopts_*.go); failure is logged, not fatal, per
// spec.md section 4.5. Realtime scheduling is not requested here: the
// receiving thread calls SetRealtimePriority itself.
func NewReceiver(port int, logger *slog.Logger) (*Receiver, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("netio: bind receiver: %w", err)
	}
	if err := conn.SetReadBuffer(receiverRecvBuffer); err != nil {
		logger.Warn("netio: failed to enlarge receiver read buffer", "error", err)
	}

	l := logger.With("subsystem", "netio-receiver", "local_port", port)
	disableConnReset(conn, l)

	return &Receiver{conn: conn, logger: l}, nil
}

// ErrTimeout is returned by Receive when no datagram arrived within
// ReadTimeout. Callers should treat this as "nothing happened, check the
// stop flag and try again", never as a fatal condition.
var ErrTimeout = errors.New("netio: read timeout")

// Receive blocks for up to ReadTimeout waiting for one datagram, returning
// its bytes and source address. On timeout it returns ErrTimeout; any other
// error is a genuine receive error that the caller logs and continues past.
func (r *Receiver) Receive(buf []byte) (int, *net.UDPAddr, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return 0, nil, fmt.Errorf("netio: set read deadline: %w", err)
	}
	n, addr, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil, ErrTimeout
		}
		return 0, nil, err
	}
	return n, addr, nil
}

// LocalAddr returns the receiver socket's bound local address.
func (r *Receiver) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

// Close releases the receiver's socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
