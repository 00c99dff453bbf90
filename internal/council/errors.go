package council

import "errors"

var (
	// ErrClosing is returned to a chair attempting update/apply/log/count
	// after #CLOSING# has become visible (§7: Closing).
	ErrClosing = errors.New("council: closing")

	// ErrQueueFull is returned when the bounded update queue has no
	// room for a non-blocking send (§7: QueueFull). Caller convention
	// per §5 is to treat this the same as Closing: there is no implicit
	// retry at the bus boundary.
	ErrQueueFull = errors.New("council: update queue full")

	errBroadcastClosed = errors.New("council: broadcast closed")
)
