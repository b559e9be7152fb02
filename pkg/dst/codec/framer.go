package codec

import (
	"encoding/binary"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// _headerLen is the size of the length field preceding every message.
	_headerLen = 2

	// MaxMessageLen is the largest payload a single frame can carry. The
	// 2-byte header stores length minus one, so lengths span [1, 65536].
	MaxMessageLen = 1 << 16
)

// Framer turns a reliable byte stream into discrete length-delimited
// messages and back.
//
// Wire format: a little-endian uint16 holding the payload length minus one,
// then the payload. The byte order is fixed, never the host's. Zero-length
// messages are not representable (all 65536 header values are taken by
// lengths 1 through 65536) and Frame rejects them rather than emitting
// nothing and corrupting the peer's framing.
//
// One Framer serves one stream direction: create it at stream open, Push
// every received chunk, Pop until empty. A Framer is not safe for concurrent
// use.
type Framer struct {
	buf []byte

	lg *zap.Logger
}

// NewFramer creates a Framer. logger may be nil.
func NewFramer(logger *zap.Logger) *Framer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Framer{lg: logger}
}

// Frame encodes payload as a single length-delimited message.
func (f *Framer) Frame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		f.lg.Error("refusing to frame empty message")
		return nil, errors.New("empty message")
	}
	if len(payload) > MaxMessageLen {
		f.lg.Error("message too large", zap.Int("length", len(payload)), zap.Int("max-length", MaxMessageLen))
		return nil, errors.Errorf("message too large: %d bytes, max %d", len(payload), MaxMessageLen)
	}
	out := make([]byte, _headerLen+len(payload))
	binary.LittleEndian.PutUint16(out, uint16(len(payload)-1))
	copy(out[_headerLen:], payload)
	return out, nil
}

// Push appends received bytes to the accumulation buffer. Chunks may split
// headers and payloads at any boundary.
func (f *Framer) Push(data []byte) {
	f.buf = append(f.buf, data...)
}

// Pop removes and returns the next complete message. ok is false when the
// buffer does not yet hold one; nothing is consumed in that case, not even
// the header. There is no error state: insufficient input is always just
// "not yet".
//
// The returned payload is allocated from mcache and valid until free is
// called.
func (f *Framer) Pop() (payload []byte, free func(), ok bool) {
	if len(f.buf) < _headerLen {
		return nil, nil, false
	}
	segLen := int(binary.LittleEndian.Uint16(f.buf)) + 1
	if len(f.buf) < _headerLen+segLen {
		return nil, nil, false
	}

	payload = mcache.Malloc(segLen)
	copy(payload, f.buf[_headerLen:_headerLen+segLen])

	n := copy(f.buf, f.buf[_headerLen+segLen:])
	f.buf = f.buf[:n]

	return payload, func() { mcache.Free(payload) }, true
}

// InputEmpty returns whether all pushed bytes have been consumed.
func (f *Framer) InputEmpty() bool {
	return len(f.buf) == 0
}
