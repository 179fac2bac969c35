package engine

import "time"

// Protocol control information, high nibble of the first payload byte.
const (
	pciSingle      = 0x0
	pciFirst       = 0x1
	pciConsecutive = 0x2
	pciFlowControl = 0x3
)

// Flow-control status values.
const (
	fcContinue = 0x0
	fcWait     = 0x1
	fcOverflow = 0x2
)

// maxPDU is the largest payload the 12-bit first-frame length field can
// describe.
const maxPDU = 4095

type txState uint8

const (
	txIdle txState = iota
	txWaitFC
	txSending
)

type rxState uint8

const (
	rxIdle rxState = iota
	rxBusy
)

// Link is one ISO-TP endpoint state machine. It segments outgoing payloads
// into single/first/consecutive frames, reassembles incoming ones, and
// produces/consumes flow-control frames.
//
// Not safe for concurrent use; see the package documentation.
type Link struct {
	sendID uint32
	b      Binding
	p      Params

	// transmit side
	txBuf        []byte
	txLen        int
	txOff        int
	txSN         uint8
	txState      txState
	txBlockLeft  int // frames left in the current block; 0 = unlimited
	txSTMin      time.Duration
	txWaits      int
	txNextCF     uint32
	txFCDeadline uint32

	// receive side
	rxBuf        []byte
	rxLen        int // size declared by the first frame
	rxRecv       int // bytes logically received so far
	rxStored     int // bytes actually written to rxBuf (clipped to capacity)
	rxSN         uint8
	rxState      rxState
	rxBlockCount int
	rxCFDeadline uint32
}

// NewLink creates a link that transmits on sendID. sendBuf holds outgoing
// multi-frame payloads, recvBuf is where incoming PDUs are assembled; both
// must outlive the link. The binding supplies transmit, clock and
// completion callbacks.
func NewLink(sendID uint32, sendBuf, recvBuf []byte, b Binding, p Params) *Link {
	if b.Microseconds == nil {
		b.Microseconds = defaultMicroseconds
	}
	return &Link{sendID: sendID, b: b, p: p, txBuf: sendBuf, rxBuf: recvBuf}
}

// SendID returns the identifier the link transmits on.
func (l *Link) SendID() uint32 { return l.sendID }

// Transmitting reports whether a multi-frame send is in progress.
func (l *Link) Transmitting() bool { return l.txState != txIdle }

// Receiving reports whether a multi-frame reassembly is in progress.
func (l *Link) Receiving() bool { return l.rxState == rxBusy }

// Send starts transmitting payload. Payloads of up to 7 bytes go out as a
// single frame and complete (OnTxDone) before Send returns. Longer payloads
// are copied into the send buffer, the first frame is transmitted, and the
// remaining consecutive frames are emitted from Poll as flow control
// permits.
//
// Send never blocks on protocol progress; it returns an error only for
// immediate rejections (busy, too large) or a failed frame transmit.
func (l *Link) Send(payload []byte) error {
	if l.txState != txIdle {
		return ErrInProgress
	}
	n := len(payload)
	if n > maxPDU {
		return ErrLengthTooLarge
	}

	if n <= 7 {
		data := make([]byte, 0, 8)
		data = append(data, byte(pciSingle<<4)|byte(n))
		data = append(data, payload...)
		data = l.pad(data)
		if err := l.b.SendFrame(l.sendID, data); err != nil {
			return err
		}
		l.debugf("sf sent id=0x%X size=%d", l.sendID, n)
		if l.b.OnTxDone != nil {
			l.b.OnTxDone(n)
		}
		return nil
	}

	if n > len(l.txBuf) {
		return ErrBufferOverflow
	}
	copy(l.txBuf, payload)
	l.txLen = n

	data := make([]byte, 0, 8)
	data = append(data, byte(pciFirst<<4)|byte(n>>8), byte(n))
	data = append(data, payload[:6]...)
	if err := l.b.SendFrame(l.sendID, data); err != nil {
		l.txLen = 0
		return err
	}
	l.txOff = 6
	l.txSN = 1
	l.txWaits = 0
	l.txState = txWaitFC
	l.txFCDeadline = l.now() + micros(l.p.FCTimeout)
	l.debugf("ff sent id=0x%X size=%d", l.sendID, n)
	return nil
}

// OnFrame processes the payload of one inbound CAN frame. It may
// synchronously transmit a flow-control frame through the binding, so it
// must only be called from a context that may block on bus writes.
func (l *Link) OnFrame(data []byte) {
	if len(data) == 0 {
		return
	}
	switch data[0] >> 4 {
	case pciSingle:
		l.onSingle(data)
	case pciFirst:
		l.onFirst(data)
	case pciConsecutive:
		l.onConsecutive(data)
	case pciFlowControl:
		l.onFlowControl(data)
	default:
		l.debugf("unknown pci 0x%02X", data[0])
	}
}

// Poll advances the time-dependent protocol state: it emits due consecutive
// frames (paced by the peer's STmin) and fires the N_Bs/N_Cr timeouts. The
// adapter calls it at a fixed interval from the poll driver.
func (l *Link) Poll() {
	now := l.now()

	for l.txState == txSending && timeAfter(now, l.txNextCF) {
		if err := l.sendConsecutive(now); err != nil {
			l.resetTx()
			l.emitError(err)
			break
		}
		if l.txSTMin > 0 {
			break
		}
	}

	if l.txState == txWaitFC && timeAfter(now, l.txFCDeadline) {
		l.resetTx()
		l.emitError(ErrTimeoutFC)
	}
	if l.rxState == rxBusy && timeAfter(now, l.rxCFDeadline) {
		l.resetRx()
		l.emitError(ErrTimeoutCF)
	}
}

func (l *Link) onSingle(data []byte) {
	n := int(data[0] & 0x0F)
	if n == 0 || n > len(data)-1 {
		l.debugf("sf with invalid length %d", n)
		return
	}
	if l.rxState != rxIdle {
		// A new transfer interrupts the reassembly in progress.
		l.debugf("sf interrupts reassembly")
		l.resetRx()
	}
	stored := copy(l.rxBuf, data[1:1+n])
	if l.b.OnRxDone != nil {
		l.b.OnRxDone(l.rxBuf[:stored], n)
	}
}

func (l *Link) onFirst(data []byte) {
	if len(data) < 3 {
		l.debugf("ff too short")
		return
	}
	total := int(data[0]&0x0F)<<8 | int(data[1])
	if total <= 7 {
		l.debugf("ff with invalid length %d", total)
		return
	}
	if l.rxState != rxIdle {
		l.debugf("ff interrupts reassembly")
	}
	l.resetRx()
	first := data[2:]
	l.rxLen = total
	l.rxRecv = len(first)
	l.rxStored = copy(l.rxBuf, first)
	l.rxSN = 1
	l.rxState = rxBusy
	if err := l.sendFlowControl(fcContinue); err != nil {
		l.resetRx()
		l.emitError(err)
		return
	}
	l.rxCFDeadline = l.now() + micros(l.p.CFTimeout)
}

func (l *Link) onConsecutive(data []byte) {
	if l.rxState != rxBusy {
		l.debugf("unexpected cf")
		return
	}
	sn := data[0] & 0x0F
	if sn != l.rxSN {
		l.debugf("cf sequence %d, want %d", sn, l.rxSN)
		l.resetRx()
		l.emitError(ErrWrongSequence)
		return
	}
	l.rxSN = (l.rxSN + 1) & 0x0F

	chunk := data[1:]
	if need := l.rxLen - l.rxRecv; len(chunk) > need {
		chunk = chunk[:need]
	}
	if l.rxStored < len(l.rxBuf) {
		l.rxStored += copy(l.rxBuf[l.rxStored:], chunk)
	}
	l.rxRecv += len(chunk)

	if l.rxRecv >= l.rxLen {
		stored, total := l.rxStored, l.rxLen
		l.resetRx()
		if l.b.OnRxDone != nil {
			l.b.OnRxDone(l.rxBuf[:stored], total)
		}
		return
	}

	l.rxCFDeadline = l.now() + micros(l.p.CFTimeout)
	l.rxBlockCount++
	if l.p.BlockSize > 0 && l.rxBlockCount >= int(l.p.BlockSize) {
		l.rxBlockCount = 0
		if err := l.sendFlowControl(fcContinue); err != nil {
			l.resetRx()
			l.emitError(err)
		}
	}
}

func (l *Link) onFlowControl(data []byte) {
	if l.txState != txWaitFC {
		l.debugf("unexpected fc")
		return
	}
	if len(data) < 3 {
		l.debugf("fc too short")
		return
	}
	switch data[0] & 0x0F {
	case fcContinue:
		l.txWaits = 0
		l.txBlockLeft = int(data[1])
		l.txSTMin = decodeSTMin(data[2])
		l.txState = txSending
		l.txNextCF = l.now()
	case fcWait:
		l.txWaits++
		if l.txWaits > l.p.WaitFrameMax {
			l.resetTx()
			l.emitError(ErrTooManyWaits)
			return
		}
		l.txFCDeadline = l.now() + micros(l.p.FCTimeout)
	case fcOverflow:
		l.resetTx()
		l.emitError(ErrOverflowed)
	default:
		l.debugf("fc with reserved status 0x%X", data[0]&0x0F)
	}
}

// sendConsecutive emits the next consecutive frame and updates the transmit
// state, completing the send when the last byte goes out.
func (l *Link) sendConsecutive(now uint32) error {
	n := l.txLen - l.txOff
	if n > 7 {
		n = 7
	}
	data := make([]byte, 0, 8)
	data = append(data, byte(pciConsecutive<<4)|l.txSN)
	data = append(data, l.txBuf[l.txOff:l.txOff+n]...)
	data = l.pad(data)
	if err := l.b.SendFrame(l.sendID, data); err != nil {
		return err
	}
	l.txOff += n
	l.txSN = (l.txSN + 1) & 0x0F

	if l.txOff >= l.txLen {
		size := l.txLen
		l.resetTx()
		l.debugf("tx done id=0x%X size=%d", l.sendID, size)
		if l.b.OnTxDone != nil {
			l.b.OnTxDone(size)
		}
		return nil
	}

	if l.txBlockLeft > 0 {
		l.txBlockLeft--
		if l.txBlockLeft == 0 {
			l.txState = txWaitFC
			l.txFCDeadline = now + micros(l.p.FCTimeout)
			return nil
		}
	}
	l.txNextCF = now + micros(l.txSTMin)
	return nil
}

func (l *Link) sendFlowControl(status byte) error {
	data := make([]byte, 0, 8)
	data = append(data, byte(pciFlowControl<<4)|status, l.p.BlockSize, l.p.STMin)
	data = l.pad(data)
	return l.b.SendFrame(l.sendID, data)
}

func (l *Link) pad(data []byte) []byte {
	if l.p.Padding == nil {
		return data
	}
	for len(data) < 8 {
		data = append(data, *l.p.Padding)
	}
	return data
}

func (l *Link) resetTx() {
	l.txState = txIdle
	l.txLen = 0
	l.txOff = 0
	l.txSN = 0
	l.txBlockLeft = 0
	l.txSTMin = 0
	l.txWaits = 0
}

func (l *Link) resetRx() {
	l.rxState = rxIdle
	l.rxLen = 0
	l.rxRecv = 0
	l.rxStored = 0
	l.rxSN = 0
	l.rxBlockCount = 0
}

func (l *Link) emitError(err error) {
	l.debugf("error: %v", err)
	if l.b.OnError != nil {
		l.b.OnError(err)
	}
}

func (l *Link) now() uint32 { return l.b.Microseconds() }

func (l *Link) debugf(format string, args ...interface{}) {
	if l.b.Debugf != nil {
		l.b.Debugf(format, args...)
	}
}

func micros(d time.Duration) uint32 {
	return uint32(d / time.Microsecond)
}
