package isotp

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/notnil/isotp/can"
	"github.com/notnil/isotp/engine"
)

// Link is one logical ISO-TP endpoint: a send identifier, a listen
// identifier, a protocol engine instance and the synchronization state that
// turns the engine's callbacks into blocking calls.
//
// A link is created live: from the moment NewLink returns it receives
// dispatched frames and poll ticks until Close removes it.
type Link struct {
	stack *Stack
	tag   string
	log   zerolog.Logger

	sendID   uint32
	recvID   uint32
	extended bool
	rtr      bool
	match    can.FrameFilter

	// eng is not internally thread-safe. engMu serializes the three paths
	// that mutate it: send initiation, frame dispatch and the poll driver.
	eng   *engine.Link
	engMu sync.Mutex

	// sendMu serializes concurrent senders on this link; the second caller
	// blocks until the first operation fully completes.
	sendMu sync.Mutex

	ev *event

	// Receive bookkeeping, written by the dispatcher inside the engine
	// callbacks and read by application threads after they observe the
	// completion flag. The event's internal lock orders these accesses.
	recvBuf     []byte
	rxSize      int
	rxTruncated bool
	lastErr     error

	closed atomic.Bool
}

// LinkOption customizes link creation.
type LinkOption func(*linkOptions)

type linkOptions struct {
	sendBuf  []byte
	recvBuf  []byte
	extended bool
	rtr      bool
	params   engine.Params
}

// WithSendBuffer supplies the buffer used to stage outgoing multi-frame
// payloads. It bounds the largest payload the link can send and must
// outlive the link.
func WithSendBuffer(buf []byte) LinkOption {
	return func(o *linkOptions) { o.sendBuf = buf }
}

// WithRecvBuffer supplies the buffer incoming PDUs are assembled into. It
// bounds the largest message the link can receive without truncation and
// must outlive the link.
func WithRecvBuffer(buf []byte) LinkOption {
	return func(o *linkOptions) { o.recvBuf = buf }
}

// WithExtendedID makes the link transmit 29-bit extended identifiers.
func WithExtendedID() LinkOption {
	return func(o *linkOptions) { o.extended = true }
}

// WithRTR marks outgoing frames as remote transmission requests. Rarely
// useful for ISO-TP traffic but kept for transports that demand it.
func WithRTR() LinkOption {
	return func(o *linkOptions) { o.rtr = true }
}

// WithEngineParams overrides the protocol parameters (block size, STmin,
// timeouts, padding) for this link.
func WithEngineParams(p engine.Params) LinkOption {
	return func(o *linkOptions) { o.params = p }
}

// NewLink creates a link that transmits on sendID and listens on recvID.
// The link is registered with the stack before NewLink returns and starts
// receiving dispatched frames immediately.
func (s *Stack) NewLink(sendID, recvID uint32, opts ...LinkOption) (*Link, error) {
	if s == nil {
		return nil, ErrInvalidArgument
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	o := linkOptions{params: engine.DefaultParams()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := (can.Frame{ID: sendID, Extended: o.extended}).Validate(); err != nil {
		return nil, ErrInvalidArgument
	}
	if err := (can.Frame{ID: recvID, Extended: recvID > 0x7FF}).Validate(); err != nil {
		return nil, ErrInvalidArgument
	}
	if o.sendBuf == nil {
		o.sendBuf = make([]byte, s.cfg.DefaultBufferSize)
	}
	if o.recvBuf == nil {
		o.recvBuf = make([]byte, s.cfg.DefaultBufferSize)
	}
	if len(o.sendBuf) == 0 || len(o.recvBuf) == 0 {
		return nil, ErrInvalidArgument
	}

	tag := uuid.NewString()[:8]
	l := &Link{
		stack:    s,
		tag:      tag,
		sendID:   sendID,
		recvID:   recvID,
		extended: o.extended,
		rtr:      o.rtr,
		match:    can.And(can.ByID(recvID), can.DataOnly()),
		ev:       newEvent(),
		recvBuf:  o.recvBuf,
	}
	l.log = s.log.With().
		Str("link", tag).
		Uint32("send_id", sendID).
		Uint32("recv_id", recvID).
		Logger()

	l.eng = engine.NewLink(sendID, o.sendBuf, o.recvBuf, engine.Binding{
		SendFrame: l.sendFrame,
		Debugf: func(format string, args ...interface{}) {
			l.log.Debug().Msgf(format, args...)
		},
		OnTxDone: l.onTxDone,
		OnRxDone: l.onRxDone,
		OnError:  l.onError,
	}, o.params)

	s.reg.add(l)
	l.log.Info().Msg("link created")
	return l, nil
}

// Close removes the link from the stack and wakes any blocked Send or
// Receive with ErrClosed. Frames matching the link's listen identifier are
// no longer delivered to it and the poll driver stops advancing its state.
func (l *Link) Close() error {
	if l == nil {
		return ErrInvalidArgument
	}
	// Flipping the flag under engMu drains a dispatch or poll currently
	// inside the engine before the link goes quiet.
	l.engMu.Lock()
	already := l.closed.Swap(true)
	l.engMu.Unlock()
	if already {
		return nil
	}
	l.stack.reg.remove(l)
	l.ev.signal(evError)
	l.log.Info().Msg("link closed")
	return nil
}

// Tag returns the short unique tag used to identify the link in logs.
func (l *Link) Tag() string { return l.tag }

// SendID returns the identifier the link transmits on.
func (l *Link) SendID() uint32 { return l.sendID }

// RecvID returns the identifier the link listens on.
func (l *Link) RecvID() uint32 { return l.recvID }

// sendFrame is the engine's transmit callback: it wraps the payload in a
// CAN frame with the link's framing attributes and writes it to the bus.
func (l *Link) sendFrame(id uint32, data []byte) error {
	f := can.Frame{ID: id, Extended: l.extended, RTR: l.rtr, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return l.stack.bus.Send(f)
}

func (l *Link) onTxDone(size int) {
	l.log.Debug().Int("size", size).Msg("pdu transmitted")
	l.ev.signal(evTxDone)
}

// onRxDone records the completed reception and signals the waiter. data is
// the link's own receive buffer, already clipped to its capacity; size is
// what the sender declared. The recorded size is bounded to capacity and a
// truncation flag is kept distinct from the completion flags.
func (l *Link) onRxDone(data []byte, size int) {
	l.rxSize = len(data)
	l.rxTruncated = size > len(data)
	if l.rxTruncated {
		l.log.Warn().
			Int("size", size).
			Int("capacity", len(l.recvBuf)).
			Msg("received pdu truncated to buffer capacity")
	} else {
		l.log.Debug().Int("size", size).Msg("pdu received")
	}
	l.ev.signal(evRxDone)
}

func (l *Link) onError(err error) {
	l.log.Warn().Err(err).Msg("engine reported error")
	l.lastErr = err
	l.ev.signal(evError)
}

// dispatch forwards one inbound frame to the engine. Runs only on the
// stack's dispatcher worker.
func (l *Link) dispatch(f can.Frame) {
	l.engMu.Lock()
	if !l.closed.Load() {
		l.eng.OnFrame(f.Data[:f.Len])
	}
	l.engMu.Unlock()
}

// poll advances the engine's timing. Runs only on the poll driver.
func (l *Link) poll() {
	l.engMu.Lock()
	if !l.closed.Load() {
		l.eng.Poll()
	}
	l.engMu.Unlock()
}
