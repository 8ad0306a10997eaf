package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// LatencyInfoPacket is the optional side-channel datagram described in
// spec.md section 4.6 step 3: a peer MAY push its own locally observed
// latency snapshot so the other side can display it. It is not required by
// the canonical protocol and is distinguished from an audio Packet purely
// by its (much smaller, fixed) length, per spec.md section 3's invariant
// that any datagram of a different length than a Packet — and different
// from a latency-info datagram where one exists — is dropped.
type LatencyInfoPacket struct {
	RTTAvgMs       float64
	ProcessingAvgMs float64
	JitterT2AvgMs  float64
	JitterT4AvgMs  float64
	RingFillAvgMs  float64
	XrunCount      uint32
	_              [4]byte // pad to 8-byte alignment
}

// LatencyInfoSize is the constant wire size of LatencyInfoPacket.
var LatencyInfoSize = binary.Size(LatencyInfoPacket{})

// Marshal encodes the latency-info packet into its fixed-size wire form.
func (l *LatencyInfoPacket) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, LatencyInfoSize))
	if err := binary.Write(buf, binary.LittleEndian, l); err != nil {
		return nil, fmt.Errorf("wire: marshal latency-info: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalLatencyInfo parses a datagram as a LatencyInfoPacket. Callers
// must check the length against LatencyInfoSize (and that it differs from
// PacketSize) before calling this.
func UnmarshalLatencyInfo(data []byte) (*LatencyInfoPacket, error) {
	if len(data) != LatencyInfoSize {
		return nil, fmt.Errorf("%w: got %d want %d", ErrWrongLength, len(data), LatencyInfoSize)
	}
	var l LatencyInfoPacket
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &l); err != nil {
		return nil, fmt.Errorf("wire: unmarshal latency-info: %w", err)
	}
	return &l, nil
}
