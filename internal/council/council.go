package council

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hobob-dev/hobob/internal/bench"
	"github.com/hobob-dev/hobob/internal/persist"
	"github.com/hobob-dev/hobob/internal/schema"
)

// State is one of the council's three lifecycle states (§4.D).
type State int

const (
	StateRunning State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultVlogDumpGapSec  = 60
	defaultDumpTimeoutMin  = 720
	counterThrottleLogText = "update miss [%s]: push_miss_cnt=%d broadcast_void_cnt=%d"
)

// RuntimeSeed carries the operator-configured defaults for the
// runtime.bucket, runtime.db, and runtime.log_filter subtrees (§4.B)
// that bootconfig decodes from the on-disk YAML. A zero field (or a nil
// *RuntimeSeed) leaves the corresponding subtree absent, and the
// package's hardcoded defaults (defaultVlogDumpGapSec,
// defaultDumpTimeoutMin, and bench's own bucket/log-filter fallbacks)
// apply until something sets it.
type RuntimeSeed struct {
	BucketMinGap       int64
	BucketMinChangeGap int64
	BucketGap          int64

	DumpTimeoutMin int64
	VlogDumpGapSec int64
	BackupKeep     int64

	LogFilterMaxLevel    int64
	LogFilterBufferLines int64
	LogFilterFitLines    int64
}

// apply writes every non-zero field of the seed into b's runtime map,
// validating each subtree against its schema as it goes (§4.B). A field
// already present in b (e.g. restored from a prior disk dump) wins over
// the operator's boot-time default, so this only ever fills gaps on a
// fresh or partially-seeded bench.
func (s *RuntimeSeed) apply(b bench.Bench, reg *schema.Registry) bench.Bench {
	if s == nil {
		return b
	}
	set := func(cur bench.Bench, key string, field string, v int64) bench.Bench {
		if v == 0 {
			return cur
		}
		if bench.RuntimeField(cur, key, []string{field}) != nil {
			return cur
		}
		next, err := bench.RuntimeSetField(cur, reg, key, []string{field}, v)
		if err != nil {
			return cur
		}
		return next
	}
	b = set(b, "bucket", "min_gap", s.BucketMinGap)
	b = set(b, "bucket", "min_change_gap", s.BucketMinChangeGap)
	b = set(b, "bucket", "gap", s.BucketGap)
	b = set(b, "db", "dump_timeout_min", s.DumpTimeoutMin)
	b = set(b, "db", "vlog_dump_gap_sec", s.VlogDumpGapSec)
	b = set(b, "db", "backup_keep", s.BackupKeep)
	b = set(b, "log_filter", "maxlevel", s.LogFilterMaxLevel)
	b = set(b, "log_filter", "buffer_lines", s.LogFilterBufferLines)
	b = set(b, "log_filter", "fit_lines", s.LogFilterFitLines)
	return b
}

// Council is the single-writer bus described in §4.D: it owns the live
// bench and the three channel primitives chairs talk through.
type Council struct {
	logger *log.Logger
	reg    *schema.Registry

	diskPath string

	updateQ   *updateQueue
	watch     *watch
	broadcast *broadcast
	counter   *counterBox

	stateMu sync.Mutex
	state   State

	chairWG sync.WaitGroup // live chair count; Closed() waits on this
	closedC chan struct{}
}

// New constructs a council over an already-loaded bench, seeding its
// runtime.bucket/db/log_filter subtrees from seed (nil leaves the
// package defaults in place). Most callers want Open, which also
// performs the initial disk load (§4.F).
func New(initial bench.Bench, diskPath string, reg *schema.Registry, logger *log.Logger, seed *RuntimeSeed) *Council {
	if logger == nil {
		logger = log.New(log.Writer(), "[council] ", log.LstdFlags)
	}
	initial = seed.apply(initial, reg)
	return &Council{
		logger:    logger,
		reg:       reg,
		diskPath:  diskPath,
		updateQ:   newUpdateQueue(updateQueueCapacity),
		watch:     newWatch(initial),
		broadcast: newBroadcast(eventBroadcastCapacity),
		counter:   newCounterBox(),
		closedC:   make(chan struct{}),
	}
}

// Open loads diskPath (or starts from an empty bench per §4.F) and
// constructs a council over the result, seeding it with seed.
func Open(diskPath string, reg *schema.Registry, logger *log.Logger, seed *RuntimeSeed) (*Council, error) {
	b, err := persist.Load(diskPath)
	if err != nil && logger != nil {
		logger.Printf("persist: load %s: %v", diskPath, err)
	}
	return New(b, diskPath, reg, logger, seed), nil
}

// Bench returns a read-only snapshot of the live bench, for diagnostics
// (§6: "bench() — read-only live pointer for diagnostics").
func (c *Council) Bench() bench.Bench {
	v, _ := c.watch.Get()
	return v
}

// Counter returns a snapshot of the embedded VCounter.
func (c *Council) Counter() VCounter {
	return c.counter.Snapshot()
}

// State reports the council's current lifecycle state.
func (c *Council) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// ListenEvents returns a new broadcast subscription (§6: listen_events).
// Subscribers only observe batches published after Subscribe returns.
func (c *Council) ListenEvents() *subscription {
	return c.broadcast.Subscribe()
}

// newChair is the unexported constructor shared by NewChair. It panics
// if the council is already Closing/Closed, per §4.D: "Attempting
// new_chair() in Closing MUST fail fast (programmer error)."
func (c *Council) newChair() *Chair {
	c.stateMu.Lock()
	state := c.state
	c.stateMu.Unlock()
	if state != StateRunning {
		panic("council: new_chair in closing")
	}
	c.chairWG.Add(1)
	snap, ver := c.watch.Get()
	return &Chair{
		council:  c,
		cached:   snap,
		version:  ver,
		released: &sync.Once{},
	}
}

// NewChair mints a new client handle over this council (§6: new_chair).
func (c *Council) NewChair() *Chair {
	return c.newChair()
}

// trySend offers a chair's proposed update to the bounded queue.
func (c *Council) trySend(u benchUpdate) (ok, closed bool) {
	return c.updateQ.trySend(u)
}

// Run drives the main loop until the update queue's sender side is
// closed (§4.D, §6: run()). Returns false, matching the spec's "run()
// returns false" on termination.
func (c *Council) Run() bool {
	for c.step() {
	}
	return false
}

// RunFor drives the main loop for at most d, returning true on timeout
// (the bus is still running) and false if the loop terminated first
// (§5: run_for).
func (c *Council) RunFor(d time.Duration) bool {
	return c.RunUntil(time.Now().Add(d))
}

// RunUntil drives the main loop until deadline, returning true on
// timeout and false if the loop terminated first (§6: run_until).
func (c *Council) RunUntil(deadline time.Time) bool {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		select {
		case u, ok := <-c.updateQ.ch:
			if !ok {
				return false
			}
			c.handleUpdate(u)
		case <-time.After(remaining):
			return true
		}
	}
}

// step performs exactly one iteration of the main loop (§4.D). Returns
// false when the update queue's sender side has closed, signalling the
// loop should stop.
func (c *Council) step() bool {
	u, ok := <-c.updateQ.ch
	if !ok {
		return false
	}
	c.handleUpdate(u)
	return true
}

func (c *Council) handleUpdate(u benchUpdate) {
	live := c.Bench()
	if !u.old.PtrEq(live) {
		c.counter.incMiss()
		if c.throttlePermits(live) {
			snap := c.counter.Snapshot()
			correlationID := ulid.Make().String()
			msg := fmt.Sprintf(counterThrottleLogText, correlationID, snap.PushMissCnt, snap.BroadcastVoidCnt)
			logged, err := bench.AddLog(live, c.reg, 3, msg)
			if err == nil {
				c.publish(logged)
				c.maybeDump()
			}
		}
		// A throttled-out miss (permit denied) checks the dump deadline
		// on the next step that actually publishes instead of here; the
		// live bench hasn't changed, so there's nothing new to dump yet.
		return
	}
	c.publish(u.new)
	c.maybeDump()
}

// throttlePermits reports whether enough time has passed since the last
// throttled diagnostic log to emit another one (§4.D: "at most one
// diagnostic log per runtime.db.vlog_dump_gap_sec").
func (c *Council) throttlePermits(live bench.Bench) bool {
	gapSec := asInt64Runtime(bench.RuntimeField(live, "db", []string{"vlog_dump_gap_sec"}), defaultVlogDumpGapSec)
	now := time.Now().Unix()
	last := c.counter.lastDumpTS()
	if now-last < gapSec {
		return false
	}
	c.counter.setLastDumpTS(now)
	return true
}

// publish is §4.D's publish procedure: split counter-tagged events out
// of the new bench, clear its transient event log, broadcast whatever
// remains, then install the bench as live and notify the watch.
func (c *Council) publish(next bench.Bench) {
	next, events := next.DrainEvents()

	var toBroadcast []bench.Event
	for _, ev := range events {
		if name, ok := ev["#COUNTER#"].(string); ok {
			c.counter.mergeNamed(name, 1)
			continue
		}
		toBroadcast = append(toBroadcast, ev)
	}

	if len(toBroadcast) > 0 {
		if delivered := c.broadcast.Publish(toBroadcast); !delivered {
			c.counter.incBroadcastVoid()
		}
	}

	c.watch.Set(next)
}

// maybeDump implements §4.D step 3 and the periodic-dump procedure: if
// runtime.db.dump_time is absent or in the past, persist the live bench
// and publish a successor with a fresh dump_time.
func (c *Council) maybeDump() {
	live := c.Bench()
	if !dumpDue(live) {
		return
	}
	if err := persist.Save(c.diskPath, live); err != nil {
		logged, logErr := bench.AddLog(live, c.reg, 0, "persistence: "+err.Error())
		if logErr == nil {
			c.publish(logged)
		}
		return
	}
	timeoutMin := asInt64Runtime(bench.RuntimeField(live, "db", []string{"dump_timeout_min"}), defaultDumpTimeoutMin)
	nextDump := bench.FormatTS(time.Now().Add(time.Duration(timeoutMin) * time.Minute))
	updated, err := bench.RuntimeSetField(live, c.reg, "db", []string{"dump_time"}, nextDump)
	if err != nil {
		return
	}
	c.publish(updated)
}

func dumpDue(b bench.Bench) bool {
	v := bench.RuntimeField(b, "db", []string{"dump_time"})
	s, ok := v.(string)
	if !ok || s == "" {
		return true
	}
	t, err := bench.ParseTS(s)
	if err != nil {
		return true
	}
	return !time.Now().Before(t)
}

func asInt64Runtime(v any, fallback int64) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return fallback
	}
}

// Close begins graceful shutdown (§4.D close()):
//  1. move to Closing, so no new chairs can be minted,
//  2. attempt a final disk dump,
//  3. publish a bench with #CLOSING# set,
//  4. close the update queue's send side (the loop drains what is queued),
//  5. once every chair is released, tear down the broadcast and watch
//     producer sides and move to Closed.
func (c *Council) Close() {
	c.stateMu.Lock()
	if c.state != StateRunning {
		c.stateMu.Unlock()
		return
	}
	c.state = StateClosing
	c.stateMu.Unlock()

	live := c.Bench()
	if err := persist.Save(c.diskPath, live); err != nil {
		c.logger.Printf("persist: final save %s: %v", c.diskPath, err)
	}

	closing := live.SetClosingFlag()
	c.publish(closing)

	c.updateQ.closeSend()

	go func() {
		c.chairWG.Wait()
		c.broadcast.Close()
		c.watch.closeProducer()
		c.stateMu.Lock()
		c.state = StateClosed
		c.stateMu.Unlock()
		close(c.closedC)
	}()
}

// Closed returns a channel that closes once every chair has released
// its handle and the council has finished tearing down (§4.D: "closed()
// completes when all watch receivers are dropped").
func (c *Council) Closed() <-chan struct{} {
	return c.closedC
}

func (c *Council) releaseChair() {
	c.chairWG.Done()
}
