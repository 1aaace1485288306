package engine

import "sync/atomic"

// sequence stamps retry-queue entries so runs queued within the same
// wall-clock instant keep their insertion order, including across a
// snapshot restore.
type sequence struct {
	last atomic.Int64
}

// next returns a value greater than every value handed out or observed.
func (s *sequence) next() int64 {
	return s.last.Add(1)
}

// observe raises the sequence to at least v.
func (s *sequence) observe(v int64) {
	for {
		cur := s.last.Load()
		if cur >= v || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
