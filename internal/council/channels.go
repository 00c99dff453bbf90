// Package council implements the concurrency bus (§4.D of the bus spec):
// a single-writer, multi-reader owner of the live bench, reachable only
// through the three channel primitives in this file and the chairs
// minted by NewChair.
package council

import (
	"sync"

	"github.com/hobob-dev/hobob/internal/bench"
)

// updateQueueCapacity is the bounded MPSC update queue's capacity.
const updateQueueCapacity = 64

// eventBroadcastCapacity is the ring buffer's capacity for the MPMC
// event broadcast.
const eventBroadcastCapacity = 64

// benchUpdate is a chair's optimistic proposal: the snapshot it computed
// new from, and the candidate successor.
type benchUpdate struct {
	old bench.Bench
	new bench.Bench
}

// updateQueue is the bounded MPSC channel carrying benchUpdate values
// from chairs to the council loop. Go's buffered channels already give
// bounded capacity and FIFO ordering; this type exists to carry the
// "has the council closed its receive side" signal a chair needs to
// distinguish QueueFull from Closing (§7).
type updateQueue struct {
	ch     chan benchUpdate
	mu     sync.RWMutex
	closed bool
}

func newUpdateQueue(capacity int) *updateQueue {
	return &updateQueue{ch: make(chan benchUpdate, capacity)}
}

// trySend is the non-blocking try_send §4.E describes. ok=false with
// closed=false means the queue was full; closed=true means the council
// has stopped accepting updates.
func (q *updateQueue) trySend(u benchUpdate) (ok bool, closed bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false, true
	}
	select {
	case q.ch <- u:
		return true, false
	default:
		return false, false
	}
}

// closeSend marks the queue closed to new senders and closes the
// channel, which unblocks the council's receive loop with ok=false.
func (q *updateQueue) closeSend() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

func (q *updateQueue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// watch is the single-producer, multi-consumer "latest value" publisher
// (§4.D snapshot watch): capacity 1, overwrite — a slow consumer never
// blocks the producer and only ever observes the newest value, never a
// stale one after a newer one, modeled on tokio::sync::watch.
type watch struct {
	mu      sync.Mutex
	value   bench.Bench
	version uint64
	changed chan struct{} // closed and replaced on every Set
	closed  bool
}

func newWatch(initial bench.Bench) *watch {
	return &watch{value: initial, changed: make(chan struct{})}
}

// Set installs a new value and wakes every receiver blocked in Changed.
func (w *watch) Set(v bench.Bench) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.value = v
	w.version++
	close(w.changed)
	w.changed = make(chan struct{})
}

// Get returns the current value and its version, without blocking.
func (w *watch) Get() (bench.Bench, uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.version
}

// snapshot returns the current value, its version, and whether the
// producer side has been torn down.
func (w *watch) snapshot() (bench.Bench, uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.version, w.closed
}

// changedSince returns a channel that closes the next time the watch's
// version advances past last, plus a flag reporting whether the
// producer side has been torn down (in which case the channel returned
// never fires and the caller must not wait on it).
func (w *watch) changedSince(last uint64) (ch <-chan struct{}, version uint64, producerGone bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.version != last {
		done := make(chan struct{})
		close(done)
		return done, w.version, w.closed
	}
	return w.changed, w.version, w.closed
}

// closeProducer tears down the producer side. Chairs blocked in
// changedSince observe producerGone=true and, per §4.E/§7, panic with a
// ProtocolViolation unless the bench they last saw was already closing.
func (w *watch) closeProducer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.changed)
	w.changed = make(chan struct{})
}

// Lagged is returned by a broadcast subscription's Recv when the
// consumer fell behind and the ring buffer overwrote entries it had not
// yet read (§4.D: "lagging receivers observe a Lagged(n) marker").
type Lagged struct {
	Skipped uint64
}

func (l *Lagged) Error() string {
	return "council: broadcast subscriber lagged, skipped entries"
}

// eventBatch is one published group of events, in council accept order.
type eventBatch struct {
	seq    uint64
	events []bench.Event
}

// broadcast is the MPMC fan-out of event batches (§4.D), a fixed-size
// ring buffer with per-subscriber cursors, modeled on
// tokio::sync::broadcast — the teacher's own internal/server/sse.go
// Broadcaster instead drops slow clients outright, which doesn't give
// the Lagged(n) semantics §4.D and §8 test 6 require, so this type is a
// bespoke adaptation rather than a straight port of that file.
type broadcast struct {
	mu        sync.Mutex
	capacity  int
	ring      []eventBatch
	nextSeq   uint64 // sequence number of the next batch to be written
	cond      *sync.Cond
	closed    bool
	subscribe int // live subscriber count, for "no subscribers" detection
}

func newBroadcast(capacity int) *broadcast {
	b := &broadcast{capacity: capacity, ring: make([]eventBatch, 0, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish appends a batch, evicting the oldest entry if the ring is
// full. Returns false if there were no live subscribers to notify
// (council still increments broadcast_void_cnt in that case, §4.D step 3).
func (b *broadcast) Publish(events []bench.Event) (delivered bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	batch := eventBatch{seq: b.nextSeq, events: events}
	b.nextSeq++
	if len(b.ring) == b.capacity {
		b.ring = append(b.ring[1:], batch)
	} else {
		b.ring = append(b.ring, batch)
	}
	delivered = b.subscribe > 0
	b.cond.Broadcast()
	return delivered
}

// Close wakes every blocked subscriber so Recv returns a closed signal.
func (b *broadcast) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// subscription is one broadcast consumer's cursor into the ring.
type subscription struct {
	b    *broadcast
	next uint64 // sequence number of the next batch this subscriber wants
}

// Subscribe registers a new subscription starting after every
// currently-buffered batch (it only observes batches published from now
// on, matching tokio::sync::broadcast's subscribe() semantics).
func (b *broadcast) Subscribe() *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribe++
	return &subscription{b: b, next: b.nextSeq}
}

// Unsubscribe releases a subscription's slot in the live-subscriber count.
func (s *subscription) Unsubscribe() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.b.subscribe > 0 {
		s.b.subscribe--
	}
}

// Recv blocks until a batch is available, returning Lagged if the ring
// advanced past this subscriber's cursor before it could catch up.
func (s *subscription) Recv() ([]bench.Event, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for {
		if s.b.closed && len(s.b.ring) == 0 {
			return nil, errBroadcastClosed
		}
		oldestSeq := s.b.nextSeq - uint64(len(s.b.ring))
		if s.next < oldestSeq {
			skipped := oldestSeq - s.next
			s.next = oldestSeq
			return nil, &Lagged{Skipped: skipped}
		}
		if s.next < s.b.nextSeq {
			idx := s.next - oldestSeq
			batch := s.b.ring[idx]
			s.next++
			return batch.events, nil
		}
		if s.b.closed {
			return nil, errBroadcastClosed
		}
		s.b.cond.Wait()
	}
}
