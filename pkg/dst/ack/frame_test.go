package ack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/overmesh/dst/pkg/dst/status"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	f := New(10, 42*time.Microsecond)
	f.AddNack(7)
	f.AddNack(5)
	f.AddNack(3)

	got, err := Decode(f.Encode(nil))
	re.NoError(err)
	re.True(f.Equal(got), "decoded %s, want %s", got, f)

	lastNack, ok := got.LastNack()
	re.True(ok)
	re.Equal(uint64(3), lastNack)
}

func TestEncodeBytes(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	f := New(10, 1*time.Microsecond)
	f.AddNack(7)
	f.AddNack(6)
	f.AddNack(3)

	re.Equal([]byte{
		0x0A,       // ack_to_seq
		0x02,       // delay_and_flags: delay 1us, partial unset
		0x03, 0x02, // block: 3 acks (10, 9, 8), 2 nacks (7, 6)
		0x02, 0x01, // block: 2 acks (5, 4), 1 nack (3)
	}, f.Encode(nil))
	re.Equal(len(f.Encode(nil)), f.Size())
}

func TestNackSeqs(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	f := New(10, 0)
	f.AddNack(7)
	f.AddNack(5)
	f.AddNack(3)

	re.Equal([]uint64{7, 5, 3}, f.NackSeqs().Collect())
	// iterators are restartable
	re.Equal([]uint64{7, 5, 3}, f.NackSeqs().Collect())
}

func TestNackSeqsMergedRuns(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	f := New(100, 0)
	for _, seq := range []uint64{100, 99, 98, 50, 49, 7} {
		f.AddNack(seq)
	}

	re.Equal([]uint64{100, 99, 98, 50, 49, 7}, f.NackSeqs().Collect())

	got, err := Decode(f.Encode(nil))
	re.NoError(err)
	re.True(f.Equal(got))
}

func TestAddNackContract(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	f := New(10, 0)
	re.Panics(func() { f.AddNack(0) })
	re.Panics(func() { f.AddNack(11) })

	f.AddNack(5)
	re.Panics(func() { f.AddNack(5) })
	re.Panics(func() { f.AddNack(6) })
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		errMsg string
	}{
		{
			name:   "zero ack_to_seq",
			input:  []byte{0x00, 0x00},
			errMsg: "ack_to_seq must be positive",
		},
		{
			name:   "truncated header",
			input:  []byte{0x0A},
			errMsg: "truncated or malformed varint in delay_and_flags",
		},
		{
			name:   "block missing nack count",
			input:  []byte{0x0A, 0x00, 0x02},
			errMsg: "truncated or malformed varint in nacks",
		},
		{
			name: "too many acks",
			// ack_to_seq 10, block claims 10 acks
			input:  []byte{0x0A, 0x00, 0x0A, 0x01},
			errMsg: "too many acks",
		},
		{
			name: "too many nacks",
			// ack_to_seq 10, block: 5 acks, 6 nacks
			input:  []byte{0x0A, 0x00, 0x05, 0x06},
			errMsg: "too many nacks",
		},
		{
			name: "zero nacks",
			// second block has a zero nack count
			input:  []byte{0x0A, 0x00, 0x02, 0x02, 0x01, 0x00},
			errMsg: "nack count cannot be zero",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			re := require.New(t)

			_, err := Decode(tt.input)
			re.Error(err)
			re.Contains(err.Error(), tt.errMsg)
			re.Equal(status.CodeInvalidArgument, status.FromError(err).Code())
		})
	}
}

func TestDelaySaturation(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	f := New(1, 0)
	f.delayUs = 1 << 63
	f.partial = true

	re.Equal(_saturatedDelayAndFlags|1, f.delayAndFlags())

	got, err := Decode(f.Encode(nil))
	re.NoError(err)
	re.True(got.Partial())
	re.Equal(_saturatedDelayAndFlags>>1, got.delayUs)
}

func TestAdjustForMSS(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	f := New(1_000_000, 10*time.Millisecond)
	// spread nacks so every block needs multi-byte varints
	for seq := uint64(999_000); seq > 500_000; seq -= 1000 {
		f.AddNack(seq)
	}
	full := f.Size()
	re.Greater(full, 500)

	for _, mss := range []int{full, 512, 128, 32, 8} {
		mss := mss
		g := New(1_000_000, 10*time.Millisecond)
		for seq := uint64(999_000); seq > 500_000; seq -= 1000 {
			g.AddNack(seq)
		}
		g.AdjustForMSS(mss, nil)
		re.LessOrEqual(g.Size(), mss, "mss=%d", mss)
		if mss < full {
			re.True(g.Partial(), "mss=%d", mss)
		}

		// a trimmed frame must still be a valid frame
		got, err := Decode(g.Encode(nil))
		re.NoError(err)
		re.True(g.Equal(got), "mss=%d", mss)
	}
}

func TestAdjustForMSSKeepsNacksCovered(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	build := func() *Frame {
		f := New(1000, 0)
		for seq := uint64(999); seq >= 800; seq-- {
			f.AddNack(seq)
		}
		f.AddNack(50)
		return f
	}
	before := build().NackSeqs().Collect()

	for _, mss := range []int{8, 5} {
		mss := mss
		f := build()
		f.AdjustForMSS(mss, nil)
		re.LessOrEqual(f.Size(), mss, "mss=%d", mss)
		re.True(f.Partial(), "mss=%d", mss)

		after := make(map[uint64]struct{})
		for _, seq := range f.NackSeqs().Collect() {
			after[seq] = struct{}{}
		}
		// trimming may drop coverage above the new ack_to_seq, but must
		// never turn a still-covered nack into an implicit ack
		for _, seq := range before {
			if seq > f.AckToSeq() {
				continue
			}
			_, ok := after[seq]
			re.True(ok, "mss=%d: nack %d at or below ack_to_seq %d disappeared", mss, seq, f.AckToSeq())
		}
	}
}

func TestAdjustForMSSNoTrimNeeded(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	f := New(10, 0)
	f.AddNack(7)
	f.AdjustForMSS(1000, nil)

	re.False(f.Partial())
	re.Equal(uint64(10), f.AckToSeq())
}

func TestAdjustForMSSRefreshesDelay(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	f := New(10, time.Microsecond)
	f.AdjustForMSS(1000, func() time.Duration { return 55 * time.Microsecond })

	re.Equal(55*time.Microsecond, f.Delay())
}
