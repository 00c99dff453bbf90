package council

import (
	"testing"

	"github.com/hobob-dev/hobob/internal/bench"
)

// watch producer torn down without ever publishing #CLOSING# is a
// protocol violation a graceful Council.Close() can never produce — this
// test constructs the situation directly, white-box, the way §8 test 7a
// describes.
func TestChairRecvPanicsIfProducerGoneWithoutClosingFlag(t *testing.T) {
	w := newWatch(bench.New())
	ch := &Chair{
		council: &Council{watch: w},
		cached:  bench.New(),
	}
	w.closeProducer()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Recv to panic when the producer vanished without publishing #CLOSING#")
		}
	}()
	_, _ = ch.Recv()
}

func TestChairRecvReturnsErrClosingWhenProducerGoneAfterClosingFlag(t *testing.T) {
	closing := bench.New().SetClosingFlag()
	w := newWatch(bench.New())
	w.Set(closing)
	ch := &Chair{
		council: &Council{watch: w},
		cached:  bench.New(),
	}
	w.closeProducer()

	_, err := ch.Recv()
	if err != ErrClosing {
		t.Fatalf("Recv() err = %v, want ErrClosing", err)
	}
}

func TestChairUpdateReturnsErrQueueFullWithoutPanicking(t *testing.T) {
	c := newTestCouncil(t)
	// Fill the update queue without draining it by never running the loop.
	ch := c.newChair()
	defer ch.Release()

	var lastErr error
	for i := 0; i < updateQueueCapacity+1; i++ {
		lastErr = ch.Apply(func(b bench.Bench) bench.Bench { return b.SetClosingFlag().RemoveClosingFlag() })
		if lastErr != nil {
			break
		}
	}
	if lastErr != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull once the bounded queue saturates, got %v", lastErr)
	}
}
