package isotp

import (
	"sync/atomic"

	"github.com/notnil/isotp/can"
)

// frameQueue is the bounded hand-off between the receive path and the
// dispatcher worker. The producer never blocks: when the queue is full the
// frame is dropped and counted, preserving the responsiveness of the
// receive path under load.
type frameQueue struct {
	ch      chan can.Frame
	dropped atomic.Uint64
}

func newFrameQueue(depth int) *frameQueue {
	return &frameQueue{ch: make(chan can.Frame, depth)}
}

// push enqueues the frame without blocking. It reports false when the
// queue was full and the frame was dropped (drop-newest policy).
func (q *frameQueue) push(f can.Frame) bool {
	select {
	case q.ch <- f:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// frames exposes the consumer side for the dispatcher worker.
func (q *frameQueue) frames() <-chan can.Frame { return q.ch }

// drops returns the number of frames dropped on overflow so far.
func (q *frameQueue) drops() uint64 { return q.dropped.Load() }
