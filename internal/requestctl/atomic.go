package requestctl

import "sync/atomic"

// atomicCounter is a tiny wrapper matching the counter style used by the
// transcription worker pool (atomic add/load for completed/failed
// tallies read concurrently by Stats()).
type atomicCounter struct {
	v atomic.Uint64
}

func (c *atomicCounter) inc() { c.v.Add(1) }
func (c *atomicCounter) get() uint64 { return c.v.Load() }
