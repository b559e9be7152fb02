package ack

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"time"

	"github.com/overmesh/dst/pkg/dst/status"
)

// delay_and_flags packs the ack delay (in microseconds) shifted left by one
// with the partial bit in bit 0. A delay with its top bit set saturates so the
// shift cannot lose it silently.
const _saturatedDelayAndFlags uint64 = 0xFFFF_FFFF_FFFF_FFFE

// block is a run-length pair walking backward from the frame's ackToSeq:
// acks contiguous acknowledged sequences followed by nacks missing ones.
// nacks is always at least 1.
type block struct {
	acks  uint64
	nacks uint64
}

// Frame is a selective acknowledgment: everything at or below AckToSeq is
// acknowledged except the sequences recorded as nacks.
//
// A Frame is built by the receiver with New and AddNack (strictly decreasing
// sequence numbers), shrunk to a link's byte budget with AdjustForMSS, and
// moved across the wire with Encode and Decode.
type Frame struct {
	ackToSeq uint64
	delayUs  uint64
	partial  bool
	blocks   []block

	// lastNack is the smallest nacked sequence, valid while blocks is non-empty.
	lastNack uint64
}

// New creates a Frame acknowledging every sequence up to and including
// ackToSeq. ackToSeq must be positive.
func New(ackToSeq uint64, delay time.Duration) *Frame {
	if ackToSeq == 0 {
		panic("ack: ack_to_seq must be positive")
	}
	return &Frame{
		ackToSeq: ackToSeq,
		delayUs:  durationToMicros(delay),
	}
}

// AckToSeq returns the highest sequence covered by the frame.
func (f *Frame) AckToSeq() uint64 {
	return f.ackToSeq
}

// Delay returns the time between receiving the acked message and building the frame.
func (f *Frame) Delay() time.Duration {
	return time.Duration(f.delayUs) * time.Microsecond
}

// Partial returns whether the frame was trimmed to fit a byte budget and
// therefore no longer covers the full received range.
func (f *Frame) Partial() bool {
	return f.partial
}

// LastNack returns the smallest nacked sequence. ok is false if the frame
// holds no nacks.
func (f *Frame) LastNack() (seq uint64, ok bool) {
	if len(f.blocks) == 0 {
		return 0, false
	}
	return f.lastNack, true
}

// AddNack records seq as missing. Sequences must be added in strictly
// decreasing order, within (0, AckToSeq()].
func (f *Frame) AddNack(seq uint64) {
	if seq == 0 || seq > f.ackToSeq {
		panic(fmt.Sprintf("ack: nack %d out of range (0, %d]", seq, f.ackToSeq))
	}
	if len(f.blocks) == 0 {
		f.blocks = append(f.blocks, block{acks: f.ackToSeq - seq, nacks: 1})
		f.lastNack = seq
		return
	}
	if seq >= f.lastNack {
		panic(fmt.Sprintf("ack: nack %d not below previous nack %d", seq, f.lastNack))
	}
	if seq == f.lastNack-1 {
		// extends the current run of nacks
		f.blocks[len(f.blocks)-1].nacks++
	} else {
		f.blocks = append(f.blocks, block{acks: f.lastNack - 1 - seq, nacks: 1})
	}
	f.lastNack = seq
}

// Size returns the exact encoded length in bytes.
func (f *Frame) Size() int {
	n := uvarintLen(f.ackToSeq) + uvarintLen(f.delayAndFlags())
	for _, b := range f.blocks {
		n += uvarintLen(b.acks) + uvarintLen(b.nacks)
	}
	return n
}

// Encode appends the wire form of f to dst and returns the extended slice.
func (f *Frame) Encode(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, f.ackToSeq)
	dst = binary.AppendUvarint(dst, f.delayAndFlags())
	for _, b := range f.blocks {
		dst = binary.AppendUvarint(dst, b.acks)
		dst = binary.AppendUvarint(dst, b.nacks)
	}
	return dst
}

// Decode parses a Frame from data. The frame has no explicit block count:
// blocks are read until data is exhausted. Failures are tagged
// status.CodeInvalidArgument and mean the peer violated the protocol; the
// frame must be rejected, never re-parsed.
func Decode(data []byte) (*Frame, error) {
	d := decoder{buf: data}

	ackToSeq, err := d.uvarint("ack_to_seq")
	if err != nil {
		return nil, err
	}
	if ackToSeq == 0 {
		return nil, status.Error(status.CodeInvalidArgument, "ack_to_seq must be positive")
	}
	delayAndFlags, err := d.uvarint("delay_and_flags")
	if err != nil {
		return nil, err
	}

	f := &Frame{
		ackToSeq: ackToSeq,
		delayUs:  delayAndFlags >> 1,
		partial:  delayAndFlags&1 != 0,
	}

	base := ackToSeq
	for !d.empty() {
		acks, err := d.uvarint("acks")
		if err != nil {
			return nil, err
		}
		nacks, err := d.uvarint("nacks")
		if err != nil {
			return nil, err
		}
		if acks >= base {
			return nil, status.Error(status.CodeInvalidArgument, "too many acks")
		}
		if nacks > base-acks {
			return nil, status.Error(status.CodeInvalidArgument, "too many nacks")
		}
		if nacks == 0 {
			return nil, status.Error(status.CodeInvalidArgument, "nack count cannot be zero")
		}
		base -= acks + nacks
		f.blocks = append(f.blocks, block{acks: acks, nacks: nacks})
		f.lastNack = base + 1
	}
	return f, nil
}

// AdjustForMSS shrinks f in place until its encoded size fits within mss
// bytes. delay, if non-nil, re-stamps the ack delay first: the frame is
// re-encoded at send time and the delay measured at construction has gone
// stale. Any trimming marks the frame partial.
//
// Trimming works on the frame's oldest stored block, the one adjacent to
// AckToSeq: its ack run is cut to the largest count representable in one
// fewer varint byte (pulling AckToSeq down by the difference), then its nack
// run the same way with the remaining ack run folded away, then the block is
// dropped outright. Trimming only drops coverage from the top: a sequence
// nacked before the trim is never reported acked after it. Every step removes
// at least one encoded byte, so the loop terminates.
func (f *Frame) AdjustForMSS(mss int, delay func() time.Duration) {
	if delay != nil {
		f.delayUs = durationToMicros(delay())
	}
	for f.Size() > mss && len(f.blocks) > 0 {
		b := &f.blocks[0]
		switch {
		case b.acks > 0 && uvarintLen(b.acks) > 1:
			shrunk := maxUvarintFor(uvarintLen(b.acks) - 1)
			f.ackToSeq -= b.acks - shrunk
			b.acks = shrunk
		case uvarintLen(b.nacks) > 1:
			// the ack run folds away with the trimmed nacks: shrinking nacks
			// alone would slide the ack run down over still-missing sequences
			shrunk := maxUvarintFor(uvarintLen(b.nacks) - 1)
			f.ackToSeq -= b.acks + b.nacks - shrunk
			b.acks = 0
			b.nacks = shrunk
		default:
			f.ackToSeq -= b.acks + b.nacks
			f.blocks = f.blocks[1:]
			if len(f.blocks) == 0 {
				f.lastNack = 0
			}
		}
		f.partial = true
	}
}

// Equal reports whether two frames describe the same acknowledgment state.
func (f *Frame) Equal(o *Frame) bool {
	if f.ackToSeq != o.ackToSeq || f.delayUs != o.delayUs || f.partial != o.partial {
		return false
	}
	if len(f.blocks) != len(o.blocks) {
		return false
	}
	for i := range f.blocks {
		if f.blocks[i] != o.blocks[i] {
			return false
		}
	}
	if len(f.blocks) > 0 && f.lastNack != o.lastNack {
		return false
	}
	return true
}

// String implements fmt.Stringer, for debug logs only.
func (f *Frame) String() string {
	return fmt.Sprintf("ackToSeq=%d delay=%s partial=%t blocks=%v", f.ackToSeq, f.Delay(), f.partial, f.blocks)
}

func (f *Frame) delayAndFlags() uint64 {
	var v uint64
	if f.delayUs>>63 != 0 {
		v = _saturatedDelayAndFlags
	} else {
		v = f.delayUs << 1
	}
	if f.partial {
		v |= 1
	}
	return v
}

func durationToMicros(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d / time.Microsecond)
}

// uvarintLen returns the number of bytes binary.PutUvarint uses for v.
func uvarintLen(v uint64) int {
	return (bits.Len64(v|1) + 6) / 7
}

// maxUvarintFor returns the largest value whose varint form takes n bytes.
func maxUvarintFor(n int) uint64 {
	return 1<<(7*n) - 1
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) empty() bool {
	return d.off >= len(d.buf)
}

func (d *decoder) uvarint(field string) (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		return 0, status.Errorf(status.CodeInvalidArgument, "truncated or malformed varint in %s", field)
	}
	d.off += n
	return v, nil
}
