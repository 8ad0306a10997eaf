// Package ringbuf implements the play-out ring buffer (C3): a bounded,
// pre-filled interleaved sample buffer that absorbs network jitter between
// the receive thread (producer) and the audio callback (consumer), with
// overrun/underrun accounting.
//
// The buffer is guarded by a single short-critical-section mutex; Push and
// Pop are both O(n) in the frame count and never allocate, matching the
// teacher's shared-resource policy for the one mutable object two realtime
// threads touch (compare internal/media.Session's atomic counters in the
// retrieved flowpbx sources, adapted here to a mutex because the ring
// buffer's critical section does real copying, not a single counter).
package ringbuf

import (
	"errors"
	"fmt"
	"sync"
)

// ErrChannelMismatch is returned by Push/Pop when the caller's channel count
// does not match the value the buffer was initialized with. This is a fatal
// programming error, not a runtime condition to recover from.
var ErrChannelMismatch = errors.New("ringbuf: channel count does not match buffer")

// RingBuffer is a contiguous array of channels*depth float32 slots with a
// write cursor, a read cursor, and a count of readable frames. See spec.md
// section 3 for the invariants this type maintains.
type RingBuffer struct {
	mu sync.Mutex

	data     []float32
	depth    int
	channels int

	w     int // write cursor, in frames
	r     int // read cursor, in frames
	avail int // readable frames

	overruns  uint64
	underruns uint64
}

// New allocates a ring buffer of depth frames * channels, pre-filled with
// silence (avail = depth) so the first Pop does not underrun while the
// receive thread is still warming up.
func New(depth, channels int) *RingBuffer {
	return &RingBuffer{
		data:     make([]float32, depth*channels),
		depth:    depth,
		channels: channels,
		avail:    depth,
	}
}

// copyFrames copies n frames between a linear slice and the circular buffer
// starting at cursor start (in frames), advancing start modulo depth. toRing
// selects whether the linear slice is the source (toRing=true, used by
// Push) or the destination (toRing=false, used by Pop).
func (rb *RingBuffer) copyFrames(linear []float32, start, n int, toRing bool) {
	ch := rb.channels
	for i := 0; i < n; i++ {
		pos := (start + i) % rb.depth
		ringSlice := rb.data[pos*ch : pos*ch+ch]
		linSlice := linear[i*ch : i*ch+ch]
		if toRing {
			copy(ringSlice, linSlice)
		} else {
			copy(linSlice, ringSlice)
		}
	}
}

// Push copies n frames from src into the buffer at the write cursor. If
// there is not enough room, the oldest frames are discarded (the read
// cursor is advanced and overruns is incremented) so the new data always
// fits; this keeps output continuous at the cost of samples never played.
func (rb *RingBuffer) Push(src []float32, n, channels int) error {
	if channels != rb.channels {
		return fmt.Errorf("%w: got %d want %d", ErrChannelMismatch, channels, rb.channels)
	}
	if n == 0 {
		return nil
	}
	if n*channels > len(src) {
		return fmt.Errorf("ringbuf: short source slice, need %d got %d", n*channels, len(src))
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	free := rb.depth - rb.avail
	if n > free {
		discard := n - free
		if discard > rb.avail {
			// n itself exceeds the whole buffer: every buffered frame is
			// discarded (leaving the read cursor at the write cursor), and
			// only the most recent depth frames of src can be retained.
			discard = rb.avail
		}
		rb.r = (rb.r + discard) % rb.depth
		rb.avail -= discard
		if rb.avail < 0 {
			rb.avail = 0
		}
		rb.overruns++
	}

	// If n itself is larger than depth, only the tail of src survives; push
	// the writer cursor forward to the point where exactly the last depth
	// frames of src get written.
	writeN := n
	srcOff := 0
	if n > rb.depth {
		srcOff = (n - rb.depth) * channels
		writeN = rb.depth
	}

	rb.copyFrames(src[srcOff:], rb.w, writeN, true)
	rb.w = (rb.w + writeN) % rb.depth
	rb.avail += writeN
	if rb.avail > rb.depth {
		rb.avail = rb.depth
	}

	return nil
}

// Pop copies n frames from the read cursor into dst. If fewer than n frames
// are available, dst is filled with silence for all n frames, underruns is
// incremented, and the buffer is re-prefilled to full (avail = depth, both
// cursors reset to zero, slots zeroed) — deliberately hiding a short network
// outage at the cost of a single re-sync event, per spec.md section 4.3.
func (rb *RingBuffer) Pop(dst []float32, n, channels int) error {
	if channels != rb.channels {
		return fmt.Errorf("%w: got %d want %d", ErrChannelMismatch, channels, rb.channels)
	}
	if n == 0 {
		return nil
	}
	if n*channels > len(dst) {
		return fmt.Errorf("ringbuf: short destination slice, need %d got %d", n*channels, len(dst))
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > rb.avail {
		for i := range dst[:n*channels] {
			dst[i] = 0
		}
		rb.underruns++

		for i := range rb.data {
			rb.data[i] = 0
		}
		rb.w = 0
		rb.r = 0
		rb.avail = rb.depth
		return nil
	}

	rb.copyFrames(dst, rb.r, n, false)
	rb.r = (rb.r + n) % rb.depth
	rb.avail -= n

	return nil
}

// Available returns the current number of readable frames.
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.avail
}

// Overruns returns the cumulative overrun count.
func (rb *RingBuffer) Overruns() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.overruns
}

// Underruns returns the cumulative underrun count.
func (rb *RingBuffer) Underruns() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.underruns
}

// ResetStats zeroes the overrun and underrun counters.
func (rb *RingBuffer) ResetStats() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.overruns = 0
	rb.underruns = 0
}

// Depth returns the configured buffer depth in frames.
func (rb *RingBuffer) Depth() int {
	return rb.depth
}
