package council

import "sync"

// VCounter is the council's embedded observability record (§4.D):
// miss/void counts plus named counter events absorbed instead of
// broadcast. Only the council loop goroutine writes it; readers go
// through Snapshot.
type VCounter struct {
	LastDumpTS       int64
	PushMissCnt      uint64
	BroadcastVoidCnt uint64
	Ext              map[string]uint64
}

type counterBox struct {
	mu sync.RWMutex
	v  VCounter
}

func newCounterBox() *counterBox {
	return &counterBox{v: VCounter{Ext: map[string]uint64{}}}
}

// Snapshot returns a defensive copy of the current counter state.
func (c *counterBox) Snapshot() VCounter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ext := make(map[string]uint64, len(c.v.Ext))
	for k, v := range c.v.Ext {
		ext[k] = v
	}
	return VCounter{
		LastDumpTS:       c.v.LastDumpTS,
		PushMissCnt:      c.v.PushMissCnt,
		BroadcastVoidCnt: c.v.BroadcastVoidCnt,
		Ext:              ext,
	}
}

func (c *counterBox) incMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.PushMissCnt++
}

func (c *counterBox) incBroadcastVoid() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.BroadcastVoidCnt++
}

func (c *counterBox) mergeNamed(name string, by uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Ext[name] += by
}

func (c *counterBox) setLastDumpTS(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.LastDumpTS = ts
}

func (c *counterBox) lastDumpTS() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.LastDumpTS
}
