package isotp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a nil handle, nil buffer or malformed
	// identifier.
	ErrInvalidArgument = errors.New("isotp: invalid argument")

	// ErrClosed reports an operation on a closed link or stack.
	ErrClosed = errors.New("isotp: closed")

	// ErrTimeout reports that a bounded wait expired before the operation
	// completed. The underlying engine state is not rolled back: a timed-out
	// send may still finish on the wire afterwards.
	ErrTimeout = errors.New("isotp: timeout")

	// ErrTruncated reports partial success: a valid prefix of the message
	// was delivered but the link's receive buffer was too small to hold all
	// of it.
	ErrTruncated = errors.New("isotp: message truncated")

	// ErrBufferTooSmall reports that the caller's destination buffer cannot
	// hold even the (possibly already truncated) received size.
	ErrBufferTooSmall = errors.New("isotp: destination buffer too small")

	// ErrQueueOverflow reports that the stack's inbound frame queue was full
	// and the frame was dropped.
	ErrQueueOverflow = errors.New("isotp: frame queue overflow")

	// ErrEngine marks opaque protocol-engine failures. Use errors.Is with
	// this sentinel, or errors.As/Unwrap to reach the engine's typed error.
	ErrEngine = errors.New("isotp: engine error")
)

// EngineError wraps a failure reported by the protocol engine. It matches
// ErrEngine under errors.Is and unwraps to the engine's own error.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return "isotp: engine error"
	}
	return fmt.Sprintf("isotp: engine error: %v", e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngine }
