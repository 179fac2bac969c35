package isotp

import "time"

// Receive blocks until a complete PDU has been assembled on the link, an
// engine error aborts reception, or timeout expires, then copies the
// message into buf and returns its length. A negative timeout blocks
// indefinitely.
//
// A completion that arrived before Receive was called is latched and
// consumed immediately. Each completed message is delivered to exactly one
// Receive call; the link is designed for a single consumer.
//
// When the message was larger than the link's receive buffer, the stored
// prefix is copied and Receive returns its length together with
// ErrTruncated. When buf is too small for the stored size nothing is
// copied and Receive returns ErrBufferTooSmall.
func (l *Link) Receive(buf []byte, timeout time.Duration) (int, error) {
	if l == nil || buf == nil {
		return 0, ErrInvalidArgument
	}
	if l.closed.Load() {
		return 0, ErrClosed
	}

	flags, err := l.ev.wait(evRxDone|evError, timeout)
	if err != nil {
		return 0, ErrTimeout
	}
	if l.closed.Load() {
		return 0, ErrClosed
	}
	if flags&evRxDone == 0 {
		return 0, &EngineError{Err: l.lastErr}
	}

	n := l.rxSize
	if n > len(buf) {
		return 0, ErrBufferTooSmall
	}
	copy(buf, l.recvBuf[:n])
	if l.rxTruncated {
		return n, ErrTruncated
	}
	return n, nil
}
