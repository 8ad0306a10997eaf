// Package netio implements the network I/O component (C5): a connected UDP
// sender and a bound, read-timeout UDP receiver, each sized and scheduled
// per spec.md section 4.5.
package netio

import (
	"fmt"
	"log/slog"
	"net"
)

// senderSendBuffer is the socket send buffer size. It is sized small
// because the engine never needs to queue packets — a datagram is produced
// and sent once per audio period, never coalesced.
const senderSendBuffer = 1024

// Sender is a UDP socket connected to the remote peer. Send is used from
// the audio callback thread and must not block for meaningfully long; a
// connected UDP socket's WriteToUDP-equivalent Write is a single non-
// blocking syscall on any platform this engine targets.
type Sender struct {
	conn   *net.UDPConn
	logger *slog.Logger
}

// NewSender dials a UDP "connection" to the peer endpoint. No handshake
// occurs on the wire — Dial here only fixes the kernel's notion of the
// remote address so Write can be used instead of WriteTo.
func NewSender(peer *net.UDPAddr, logger *slog.Logger) (*Sender, error) {
	conn, err := net.DialUDP("udp4", nil, peer)
	if err != nil {
		return nil, fmt.Errorf("netio: dial sender: %w", err)
	}
	if err := conn.SetWriteBuffer(senderSendBuffer); err != nil {
		logger.Warn("netio: failed to set sender write buffer", "error", err)
	}

	return &Sender{
		conn:   conn,
		logger: logger.With("subsystem", "netio-sender", "peer", peer.String()),
	}, nil
}

// Send writes one datagram to the peer. A failure here is logged by the
// caller (per spec.md section 7, SendFailed is never fatal) — Send itself
// just returns the error so the caller can decide how to count it.
func (s *Sender) Send(data []byte) error {
	_, err := s.conn.Write(data)
	return err
}

// LocalAddr returns the sender socket's local address.
func (s *Sender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close releases the sender's socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
