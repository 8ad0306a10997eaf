// Package wire implements the fixed-size UDP packet format (C1) shared by
// both peers of the audio bridge: a little-endian, unpadded-beyond-natural
// struct carrying an interleaved PCM chunk and the four latency timestamps.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Channels is the compile-time channel count. The protocol does not
	// negotiate channel count at runtime (spec Non-goals); both peers are
	// built against the same value.
	Channels = 2

	// MaxChunk is the largest number of sample frames a single packet can
	// carry. The packet is always this size on the wire regardless of how
	// many frames it actually holds.
	MaxChunk = 128
)

// ErrWrongLength is returned by Unmarshal when the input is not exactly
// PacketSize bytes.
var ErrWrongLength = errors.New("wire: datagram length does not match packet size")

// ErrInvalidSampleCount is returned by Unmarshal or Assemble when n_samples
// is outside [1, MaxChunk].
var ErrInvalidSampleCount = errors.New("wire: sample count out of range")

// Packet is the fixed-size wire frame. Field order and widths match spec.md
// section 3 exactly: a 16-bit sample count, 48 bits of reserved padding to
// align the timestamps on an 8-byte boundary, four 64-bit nanosecond
// timestamps, then CHANNELS*MaxChunk interleaved float32 samples.
//
// The struct contains only fixed-size value fields, so binary.Write/Read
// with LittleEndian produce exactly PacketSize bytes with no hidden
// alignment padding beyond the explicit reserved field.
type Packet struct {
	NSamples uint16
	_        [6]byte // reserved, aligns the timestamps on a 64-bit boundary

	T1Send     int64 // producer send time (ns since its own process epoch)
	T2PeerRecv int64 // peer receive time (ns since the peer's epoch)
	T3PeerSend int64 // peer send time (ns since the peer's epoch)
	T4Recv     int64 // local receive time, stamped on arrival

	Samples [Channels * MaxChunk]float32
}

// PacketSize is the constant wire size of Packet, regardless of NSamples.
var PacketSize = binary.Size(Packet{})

// Assemble builds a packet from n interleaved sample frames. Timestamps are
// left zero; the caller stamps T1Send immediately before sending. Trailing
// sample slots beyond n*Channels are zeroed but must not be relied upon by
// a receiver — only the first n frames are meaningful.
func Assemble(samples []float32, n int, channels int) (*Packet, error) {
	if n < 1 || n > MaxChunk {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleCount, n)
	}
	if channels != Channels {
		return nil, fmt.Errorf("wire: channel mismatch, got %d want %d", channels, Channels)
	}
	need := n * channels
	if len(samples) < need {
		return nil, fmt.Errorf("wire: short sample slice, need %d got %d", need, len(samples))
	}

	p := &Packet{NSamples: uint16(n)}
	copy(p.Samples[:need], samples[:need])
	return p, nil
}

// Marshal encodes the packet into its fixed-size wire representation.
func (p *Packet) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, PacketSize))
	if err := binary.Write(buf, binary.LittleEndian, p); err != nil {
		return nil, fmt.Errorf("wire: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a datagram into a Packet. It validates the exact byte
// length and that 1 <= n_samples <= MaxChunk; it does not interpret the
// timestamp fields beyond decoding them.
func Unmarshal(data []byte) (*Packet, error) {
	if len(data) != PacketSize {
		return nil, fmt.Errorf("%w: got %d want %d", ErrWrongLength, len(data), PacketSize)
	}
	var p Packet
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &p); err != nil {
		return nil, fmt.Errorf("wire: unmarshal: %w", err)
	}
	if p.NSamples < 1 || p.NSamples > MaxChunk {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleCount, p.NSamples)
	}
	return &p, nil
}

// FrameSamples returns the n_samples*Channels leading samples actually
// populated by the sender; the remainder of Samples is undefined.
func (p *Packet) FrameSamples() []float32 {
	return p.Samples[:int(p.NSamples)*Channels]
}
