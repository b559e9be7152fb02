package ack

// NackIter walks a frame's nacked sequence numbers from the highest to the
// lowest. It is a snapshot view: mutating the frame mid-iteration is the
// caller's bug. Obtain a fresh iterator from NackSeqs to restart.
type NackIter struct {
	blocks []block
	base   uint64
	idx    int
	next   uint64
	left   uint64
}

// NackSeqs returns an iterator over all nacked sequences in f.
func (f *Frame) NackSeqs() *NackIter {
	return &NackIter{blocks: f.blocks, base: f.ackToSeq}
}

// Next returns the next nacked sequence. ok is false once the iterator is
// exhausted.
func (it *NackIter) Next() (seq uint64, ok bool) {
	for it.left == 0 {
		if it.idx >= len(it.blocks) {
			return 0, false
		}
		b := it.blocks[it.idx]
		it.idx++
		it.next = it.base - b.acks
		it.left = b.nacks
		it.base -= b.acks + b.nacks
	}
	seq = it.next
	it.next--
	it.left--
	return seq, true
}

// Collect drains the iterator into a slice, for tests and debug logs.
func (it *NackIter) Collect() []uint64 {
	var seqs []uint64
	for {
		seq, ok := it.Next()
		if !ok {
			return seqs
		}
		seqs = append(seqs, seq)
	}
}
