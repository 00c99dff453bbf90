package council

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hobob-dev/hobob/internal/bench"
	"github.com/hobob-dev/hobob/internal/schema"
)

func newTestCouncil(t *testing.T) *Council {
	t.Helper()
	reg, err := schema.New()
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	diskPath := filepath.Join(t.TempDir(), "bench.json")
	return New(bench.New(), diskPath, reg, nil, nil)
}

func runInBackground(t *testing.T, c *Council) {
	t.Helper()
	go c.Run()
}

func TestNewChairObservesInitialBench(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)
	defer c.Close()

	ch := c.NewChair()
	defer ch.Release()

	b, err := ch.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !b.GroupInfo.Has("0") {
		t.Fatalf("expected the initial bench's default groups to be visible")
	}
}

func TestApplyCommitsAndIsVisibleToOtherChairs(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)
	defer c.Close()

	writer := c.NewChair()
	defer writer.Release()
	reader := c.NewChair()
	defer reader.Release()

	err := writer.Apply(func(b bench.Bench) bench.Bench {
		return b.SetClosingFlag().RemoveClosingFlag() // cheap touch to force a new version
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	b, err := reader.Changed()
	if err != nil {
		t.Fatalf("Changed: %v", err)
	}
	if b.IsClosing() {
		t.Fatalf("unexpected closing flag")
	}
}

func TestConcurrentApplyFromTwoChairsBothCommit(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)
	defer c.Close()

	a := c.NewChair()
	defer a.Release()
	b := c.NewChair()
	defer b.Release()

	var wg sync.WaitGroup
	wg.Add(2)
	bump := func(ch *Chair, key string) {
		defer wg.Done()
		err := ch.Apply(func(cur bench.Bench) bench.Bench {
			return cur.SetClosingFlag().RemoveClosingFlag()
		})
		if err != nil {
			t.Errorf("Apply(%s): %v", key, err)
		}
	}
	go bump(a, "a")
	go bump(b, "b")
	wg.Wait()
}

func TestLogChairPushesThroughToBench(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)
	defer c.Close()

	ch := c.NewChair()
	defer ch.Release()
	ch.Log(1, "hello from a chair")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		cur, err := ch.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if cur.Logs.Len() > 0 {
			return
		}
		cur2, err := ch.Changed()
		if err != nil {
			t.Fatalf("Changed: %v", err)
		}
		if cur2.Logs.Len() > 0 {
			return
		}
	}
	t.Fatalf("log entry never became visible")
}

func TestCountAbsorbedByCounterNotBroadcast(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)
	defer c.Close()

	sub := c.ListenEvents()
	defer sub.Unsubscribe()

	ch := c.NewChair()
	defer ch.Release()
	ch.Count("widgets_built")

	// Give the loop a moment to process the update.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Counter().Ext["widgets_built"] == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("counter event was never absorbed into VCounter.Ext")
}

func TestCloseMakesChairsObserveClosing(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)

	ch := c.NewChair()
	c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := ch.Recv()
		if err == ErrClosing {
			ch.Release()
			return
		}
		if err == nil {
			if _, err2 := ch.Changed(); err2 == ErrClosing {
				ch.Release()
				return
			}
		}
	}
	ch.Release()
	t.Fatalf("chair never observed the closing flag")
}

func TestClosedFiresOnlyAfterAllChairsReleased(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)

	ch1 := c.NewChair()
	ch2 := c.NewChair()
	c.Close()

	select {
	case <-c.Closed():
		t.Fatalf("Closed() must not fire while chairs are still outstanding")
	case <-time.After(100 * time.Millisecond):
	}

	ch1.Release()
	select {
	case <-c.Closed():
		t.Fatalf("Closed() must not fire until every chair is released")
	case <-time.After(100 * time.Millisecond):
	}

	ch2.Release()
	select {
	case <-c.Closed():
	case <-time.After(2 * time.Second):
		t.Fatalf("Closed() never fired after the last chair released")
	}
}

func TestNewChairAfterCloseIsProtocolViolation(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)
	c.Close()
	<-c.Closed()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected NewChair to panic once the council is no longer Running")
		}
	}()
	c.NewChair()
}

func TestReadonlyChairPanicsOnUpdate(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)
	defer c.Close()

	ch := c.NewChair()
	defer ch.Release()
	ro := ch.Readonly()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Update on a readonly chair to panic")
		}
	}()
	_ = ro.Apply(func(b bench.Bench) bench.Bench { return b })
}

func TestNewSeedsRuntimeSubtreesFromConfig(t *testing.T) {
	reg, err := schema.New()
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	diskPath := filepath.Join(t.TempDir(), "bench.json")
	seed := &RuntimeSeed{
		BucketGap:      45,
		VlogDumpGapSec: 120,
	}
	c := New(bench.New(), diskPath, reg, nil, seed)

	live := c.Bench()
	if got := bench.RuntimeField(live, "bucket", []string{"gap"}); got != int64(45) {
		t.Fatalf("runtime.bucket.gap = %v, want 45", got)
	}
	if got := bench.RuntimeField(live, "db", []string{"vlog_dump_gap_sec"}); got != int64(120) {
		t.Fatalf("runtime.db.vlog_dump_gap_sec = %v, want 120", got)
	}
	if got := bench.RuntimeField(live, "bucket", []string{"min_gap"}); got != nil {
		t.Fatalf("runtime.bucket.min_gap = %v, want unset (no seed value supplied)", got)
	}
}

func TestNewSeedDoesNotClobberRestoredRuntimeState(t *testing.T) {
	reg, err := schema.New()
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	diskPath := filepath.Join(t.TempDir(), "bench.json")

	restored, err := bench.RuntimeSetField(bench.New(), reg, "bucket", []string{"gap"}, int64(99))
	if err != nil {
		t.Fatalf("RuntimeSetField: %v", err)
	}

	seed := &RuntimeSeed{BucketGap: 45}
	c := New(restored, diskPath, reg, nil, seed)

	live := c.Bench()
	if got := bench.RuntimeField(live, "bucket", []string{"gap"}); got != int64(99) {
		t.Fatalf("runtime.bucket.gap = %v, want the restored value 99 to win over the seed", got)
	}
}

func TestReadonlyAndOriginalShareReleaseBookkeeping(t *testing.T) {
	c := newTestCouncil(t)
	runInBackground(t, c)

	ch := c.NewChair()
	ro := ch.Readonly()

	ch.Release()
	ro.Release() // must be a no-op, not a double-release

	c.Close()
	select {
	case <-c.Closed():
	case <-time.After(2 * time.Second):
		t.Fatalf("Closed() never fired; release bookkeeping likely double-counted")
	}
}
