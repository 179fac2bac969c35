package engine

import "errors"

var (
	// ErrInProgress is returned by Send while a previous multi-frame send on
	// the same link has not finished.
	ErrInProgress = errors.New("engine: send in progress")

	// ErrLengthTooLarge is returned by Send for payloads beyond the ISO-TP
	// 12-bit first-frame length field (4095 bytes).
	ErrLengthTooLarge = errors.New("engine: payload exceeds protocol maximum")

	// ErrBufferOverflow is returned by Send when the payload does not fit
	// the link's send buffer.
	ErrBufferOverflow = errors.New("engine: payload exceeds send buffer")

	// ErrOverflowed reports that the peer answered a first frame with a
	// flow-control OVERFLOW status, aborting the transmission.
	ErrOverflowed = errors.New("engine: peer reported buffer overflow")

	// ErrWrongSequence reports a consecutive frame with an unexpected
	// sequence number; the reception in progress is dropped.
	ErrWrongSequence = errors.New("engine: wrong consecutive frame sequence number")

	// ErrTimeoutFC reports that no flow-control frame arrived within the
	// N_Bs timeout after a first frame or block boundary.
	ErrTimeoutFC = errors.New("engine: timed out waiting for flow control")

	// ErrTimeoutCF reports that the next consecutive frame did not arrive
	// within the N_Cr timeout.
	ErrTimeoutCF = errors.New("engine: timed out waiting for consecutive frame")

	// ErrTooManyWaits reports that the peer sent more consecutive
	// flow-control WAIT frames than the configured limit tolerates.
	ErrTooManyWaits = errors.New("engine: too many flow control wait frames")
)
