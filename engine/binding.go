package engine

import "time"

// Binding is the set of callbacks a Link needs from its environment. All
// callbacks are invoked synchronously from Send, OnFrame or Poll, on the
// caller's goroutine.
type Binding struct {
	// SendFrame transmits one CAN frame carrying the given payload on the
	// link's send identifier. It may block (e.g., on a bus write) and must
	// return a non-nil error if the frame could not be queued.
	SendFrame func(id uint32, data []byte) error

	// Microseconds returns a monotonic microsecond clock. Wrap-around is
	// handled by the engine. Nil selects a clock derived from time.Now.
	Microseconds func() uint32

	// Debugf receives the engine's internal debug messages. Nil disables
	// them.
	Debugf func(format string, args ...interface{})

	// OnTxDone is invoked once when a complete PDU has been transmitted,
	// with the PDU size.
	OnTxDone func(size int)

	// OnRxDone is invoked once when a complete PDU has been assembled.
	// data is the link's receive buffer clipped to what was stored; size is
	// the size the sender declared, which exceeds len(data) when the
	// receive buffer was too small to hold the whole PDU.
	OnRxDone func(data []byte, size int)

	// OnError is invoked when a transfer in progress aborts (timeout,
	// sequence error, peer overflow, transmit failure). The send or
	// reception concerned is reset before the callback fires.
	OnError func(err error)
}

var clockStart = time.Now()

// defaultMicroseconds is the clock used when the binding does not supply
// one. uint32 wraps roughly every 71 minutes; all deadline comparisons are
// wrap-safe.
func defaultMicroseconds() uint32 {
	return uint32(time.Since(clockStart).Microseconds())
}

// timeAfter reports whether microsecond timestamp a is at or past b,
// tolerating wrap-around.
func timeAfter(a, b uint32) bool {
	return int32(a-b) >= 0
}
