package domain

import "sync/atomic"

// LocalSequence synthesizes a monotonic update id for venues that do not
// supply a sequence number of their own. It is always a field on the data
// source or builder instance, never state shared across instances, and is
// never derived from wall-clock time.
type LocalSequence struct {
	n atomic.Int64
}

func (s *LocalSequence) Next() int64 {
	return s.n.Add(1)
}

func (s *LocalSequence) Current() int64 {
	return s.n.Load()
}
