package isotp

import "time"

// Send transmits payload as one ISO-TP PDU and blocks until the whole
// message is on the wire, an engine error aborts it, or timeout expires.
// A negative timeout blocks indefinitely.
//
// Concurrent Send calls on the same link are serialized; the second caller
// waits for the first transfer to finish before its own begins. On
// ErrTimeout the transfer is not rolled back and may still complete on the
// wire afterwards.
func (l *Link) Send(payload []byte, timeout time.Duration) error {
	if l == nil || len(payload) == 0 {
		return ErrInvalidArgument
	}
	if l.closed.Load() {
		return ErrClosed
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	// Discard completions left over from a previous send (including one
	// that timed out and finished later) so the wait below can only be
	// satisfied by this transfer.
	l.ev.clear(evTxDone | evError)

	l.engMu.Lock()
	err := l.eng.Send(payload)
	l.engMu.Unlock()
	if err != nil {
		return &EngineError{Err: err}
	}

	flags, werr := l.ev.wait(evTxDone|evError, timeout)
	if werr != nil {
		l.log.Warn().Dur("timeout", timeout).Msg("send timed out")
		return ErrTimeout
	}
	if l.closed.Load() {
		return ErrClosed
	}
	if flags&evTxDone != 0 {
		return nil
	}
	return &EngineError{Err: l.lastErr}
}

// SendNonblocking starts a transmission and returns as soon as the engine
// has accepted it. Completion is not reported back; errors surface only
// through the link's log. Immediate rejections (transfer already in
// progress, payload larger than the send buffer) are returned as an
// EngineError.
func (l *Link) SendNonblocking(payload []byte) error {
	if l == nil || len(payload) == 0 {
		return ErrInvalidArgument
	}
	if l.closed.Load() {
		return ErrClosed
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	l.ev.clear(evTxDone | evError)

	l.engMu.Lock()
	err := l.eng.Send(payload)
	l.engMu.Unlock()
	if err != nil {
		return &EngineError{Err: err}
	}
	return nil
}
