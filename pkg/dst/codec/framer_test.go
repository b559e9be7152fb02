package codec

import (
	"math/rand"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	fr := NewFramer(nil)

	framed, err := fr.Frame([]byte{0xAA, 0xBB, 0xCC})
	re.NoError(err)
	re.Equal([]byte{
		0x02, 0x00, // length minus one, little-endian
		0xAA, 0xBB, 0xCC,
	}, framed)
}

func TestFrameRejectsEmptyMessage(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	fr := NewFramer(nil)

	_, err := fr.Frame(nil)
	re.ErrorContains(err, "empty message")
	_, err = fr.Frame([]byte{})
	re.ErrorContains(err, "empty message")
}

func TestFrameRejectsOversizedMessage(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	fr := NewFramer(nil)

	framed, err := fr.Frame(make([]byte, MaxMessageLen))
	re.NoError(err)
	re.Len(framed, _headerLen+MaxMessageLen)

	_, err = fr.Frame(make([]byte, MaxMessageLen+1))
	re.ErrorContains(err, "message too large")
}

func TestPopUnderBuffered(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{
			name:  "single byte",
			input: []byte{0x01},
		},
		{
			name: "header only",
			// header promises a 2-byte payload
			input: []byte{0x01, 0x00},
		},
		{
			name:  "header and partial payload",
			input: []byte{0x01, 0x00, 0xAA},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			re := require.New(t)

			fr := NewFramer(nil)
			fr.Push(tt.input)

			_, _, ok := fr.Pop()
			re.False(ok)
			// nothing is consumed, not even the header
			re.Len(fr.buf, len(tt.input))
			re.False(fr.InputEmpty())
		})
	}
}

func TestPopKeepsHeaderUntilComplete(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	fr := NewFramer(nil)
	fr.Push([]byte{0x01, 0x00, 0xAA}) // promises 2 payload bytes, has 1

	_, _, ok := fr.Pop()
	re.False(ok)

	fr.Push([]byte{0xBB})
	payload, free, ok := fr.Pop()
	re.True(ok)
	re.Equal([]byte{0xAA, 0xBB}, payload)
	free()
	re.True(fr.InputEmpty())
}

func TestRoundTripAcrossChunkBoundaries(t *testing.T) {
	t.Parallel()
	re := require.New(t)

	faker := gofakeit.New(1)
	rng := rand.New(rand.NewSource(1))

	var messages [][]byte
	var wire []byte
	sender := NewFramer(nil)
	for i := 0; i < 50; i++ {
		msg := []byte(faker.LetterN(uint(1 + rng.Intn(300))))
		messages = append(messages, msg)
		framed, err := sender.Frame(msg)
		re.NoError(err)
		wire = append(wire, framed...)
	}

	receiver := NewFramer(nil)
	var got [][]byte
	for len(wire) > 0 {
		n := 1 + rng.Intn(7)
		if n > len(wire) {
			n = len(wire)
		}
		receiver.Push(wire[:n])
		wire = wire[n:]

		for {
			payload, free, ok := receiver.Pop()
			if !ok {
				break
			}
			got = append(got, append([]byte(nil), payload...))
			free()
		}
	}

	re.Equal(messages, got)
	re.True(receiver.InputEmpty())
}
