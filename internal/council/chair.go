package council

import (
	"sync"

	"github.com/hobob-dev/hobob/internal/bench"
)

// Chair is the client handle described in §4.E: a cached snapshot, a
// watch reader, and (unless Readonly) an update-sender endpoint into the
// council that minted it.
type Chair struct {
	council  *Council
	readOnly bool

	cached  bench.Bench
	version uint64

	released *sync.Once
}

// Readonly returns a view of this chair with its update-sender endpoint
// dropped (§4.E). The returned handle shares this chair's release
// bookkeeping, so releasing either one releases both exactly once.
func (ch *Chair) Readonly() *Chair {
	return &Chair{
		council:  ch.council,
		readOnly: true,
		cached:   ch.cached,
		version:  ch.version,
		released: ch.released,
	}
}

// Release drops this chair's hold on the council. Once every minted
// chair has been released, Council.Closed() fires (§4.D). Safe to call
// more than once, including from a Readonly view of the same chair.
func (ch *Chair) Release() {
	ch.released.Do(ch.council.releaseChair)
}

// Recv returns the chair's cached bench, refreshed from the watch if a
// newer snapshot has been published since the last call (§4.E). Returns
// ErrClosing once the #CLOSING# flag becomes visible. Panics — a
// ProtocolViolation per §7 — if the watch's producer side has gone away
// without ever publishing the closing flag: that can only mean the
// council was torn down without a graceful Close().
func (ch *Chair) Recv() (bench.Bench, error) {
	v, ver, producerGone := ch.council.watch.snapshot()
	if ver != ch.version {
		ch.cached = v
		ch.version = ver
	}
	if producerGone && !ch.cached.IsClosing() {
		panic("council: bus dropped too fast")
	}
	if ch.cached.IsClosing() {
		return bench.Bench{}, ErrClosing
	}
	return ch.cached, nil
}

// Changed blocks until a newer snapshot than the one this chair last
// observed is published, then returns it exactly as Recv would (§6:
// changed()).
func (ch *Chair) Changed() (bench.Bench, error) {
	done, _, producerGone := ch.council.watch.changedSince(ch.version)
	if !producerGone {
		<-done
	}
	return ch.Recv()
}

// UntilClosing blocks until the #CLOSING# flag becomes visible to this
// chair (§4.E: until_closing()).
func (ch *Chair) UntilClosing() {
	for {
		_, err := ch.Recv()
		if err != nil {
			return
		}
		if _, e2 := ch.Changed(); e2 != nil {
			return
		}
	}
}

// Update is the optimistic commit loop §4.E specifies: recompute a
// candidate from the latest cached snapshot, and only send it once that
// snapshot is confirmed still current. A full queue or a closing bus is
// returned as an error, never retried here — §5 leaves retry policy to
// the caller.
func (ch *Chair) Update(f func(bench.Bench) (bench.Bench, error)) error {
	if ch.readOnly {
		panic("council: update called on a readonly chair")
	}
	for {
		old, err := ch.Recv()
		if err != nil {
			return err
		}
		next, err := f(old)
		if err != nil {
			return err
		}
		cur, err := ch.Recv()
		if err != nil {
			return err
		}
		if !old.PtrEq(cur) {
			continue
		}
		ok, closed := ch.council.trySend(benchUpdate{old: old, new: next})
		if ok {
			return nil
		}
		if !closed {
			return ErrQueueFull
		}
		if latest, err := ch.Recv(); err == nil && !latest.IsClosing() {
			panic("council: update channel disconnected without closing flag")
		}
		return ErrClosing
	}
}

// Apply is sugar for Update with a function that cannot itself fail
// (§4.E: apply(f)).
func (ch *Chair) Apply(f func(bench.Bench) bench.Bench) error {
	return ch.Update(func(b bench.Bench) (bench.Bench, error) {
		return f(b), nil
	})
}

// Log appends a log record via Update, swallowing any error (§4.E:
// log(level, msg) — "errors swallowed").
func (ch *Chair) Log(level int64, msg string) {
	_ = ch.Update(func(b bench.Bench) (bench.Bench, error) {
		return bench.AddLog(b, ch.council.reg, level, msg)
	})
}

// Count pushes a counter-tagged event (§4.E: count(name)). The council
// absorbs counter events into VCounter.Ext instead of broadcasting them.
func (ch *Chair) Count(name string) {
	_ = ch.Apply(func(b bench.Bench) bench.Bench {
		return bench.Emit(b, bench.Event{"#COUNTER#": name})
	})
}
