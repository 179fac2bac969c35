package isotp

import (
	"sync"
	"time"
)

// Completion flags carried by a link's event.
const (
	evTxDone uint8 = 1 << 0 // a complete PDU was transmitted
	evRxDone uint8 = 1 << 1 // a complete PDU was assembled
	evError  uint8 = 1 << 2 // a transfer aborted
)

// event is a small multi-flag completion signal. Flags latch until a waiter
// consumes them; wait clears exactly the flags it returns, so a completion
// is observed at most once.
//
// Signaling and waiting synchronize through the mutex, which also makes any
// write that happened before signal visible to the goroutine that observes
// the flag.
type event struct {
	mu     sync.Mutex
	flags  uint8
	notify chan struct{}
}

func newEvent() *event {
	return &event{notify: make(chan struct{})}
}

// signal latches the given flags and wakes all current waiters.
func (e *event) signal(flags uint8) {
	e.mu.Lock()
	e.flags |= flags
	close(e.notify)
	e.notify = make(chan struct{})
	e.mu.Unlock()
}

// clear drops any latched flags in mask without waking anyone. Callers use
// it to discard stale completions before starting a new operation.
func (e *event) clear(mask uint8) {
	e.mu.Lock()
	e.flags &^= mask
	e.mu.Unlock()
}

// wait blocks until at least one flag in mask is latched or the timeout
// expires. Matched flags are cleared atomically before returning. A
// negative timeout waits forever.
func (e *event) wait(mask uint8, timeout time.Duration) (uint8, error) {
	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		e.mu.Lock()
		if got := e.flags & mask; got != 0 {
			e.flags &^= got
			e.mu.Unlock()
			return got, nil
		}
		notify := e.notify
		e.mu.Unlock()

		select {
		case <-notify:
		case <-deadline:
			return 0, ErrTimeout
		}
	}
}
