package mux

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"

	"github.com/overmesh/dst/pkg/dst/status"
	"github.com/overmesh/dst/pkg/dst/stream"
)

// Registry is the per-connection bookkeeping of the mux layer: it maps
// stream identifiers to their close-handshake state and tracks which streams
// have quiesced and may be reaped.
//
// The registry itself is safe for concurrent use. Each stream.Stream inside
// it remains single-owner: its methods must only be called from the goroutine
// that owns the connection.
type Registry struct {
	streams  cmap.ConcurrentMap[uint32, *stream.Stream]
	quiesced mapset.Set[uint32]

	lg *zap.Logger
}

// NewRegistry creates an empty Registry. logger may be nil.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		streams:  cmap.NewWithCustomShardingFunction[uint32, *stream.Stream](func(key uint32) uint32 { return key }),
		quiesced: mapset.NewSet[uint32](),
		lg:       logger,
	}
}

// Register creates the close-handshake state for stream id, wiring listener
// and a per-stream logger tagged with a trace id.
func (r *Registry) Register(id uint32, listener stream.Listener) *stream.Stream {
	traceID, _ := uuid.NewRandom()
	logger := r.lg.With(zap.Uint32("stream-id", id), zap.String("trace-id", traceID.String()))

	st := stream.New(listener, logger)
	r.streams.Set(id, st)
	logger.Debug("stream registered")
	return st
}

// Get returns the stream registered under id.
func (r *Registry) Get(id uint32) (*stream.Stream, bool) {
	return r.streams.Get(id)
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	return r.streams.Count()
}

// Deregister removes id immediately, without waiting for quiescence. Used
// when a stream is torn down out of band.
func (r *Registry) Deregister(id uint32) {
	r.streams.Remove(id)
	r.quiesced.Remove(id)
}

// Close requests a local close of stream id carrying st. The stream is
// marked reapable once it quiesces. Must be called from the connection
// owner's goroutine.
func (r *Registry) Close(id uint32, st status.Status) {
	s, ok := r.streams.Get(id)
	if !ok {
		return
	}
	s.LocalClose(st, func() {
		r.quiesced.Add(id)
	})
}

// ForceCloseAll abruptly tears down every registered stream, e.g. when the
// peer announced the whole connection is going away. Must be called from the
// connection owner's goroutine.
func (r *Registry) ForceCloseAll(st status.Status) {
	for item := range r.streams.IterBuffered() {
		item.Val.ForceClose(st)
	}
	r.lg.Info("force closed all streams", zap.Int("count", r.streams.Count()), zap.Stringer("status", st))
}

// Reap deregisters and returns all streams that have quiesced since the last
// call.
func (r *Registry) Reap() []uint32 {
	ids := r.quiesced.ToSlice()
	for _, id := range ids {
		r.quiesced.Remove(id)
		r.streams.Remove(id)
	}
	if len(ids) > 0 {
		r.lg.Debug("reaped quiesced streams", zap.Uint32s("stream-ids", ids))
	}
	return ids
}
