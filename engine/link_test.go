package engine

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// harness wires a Link to in-memory frame capture, a manual clock and
// completion recording, so protocol exchanges can be driven one frame at a
// time.
type harness struct {
	now    uint32
	frames [][]byte
	txDone []int
	rxData []byte
	rxSize int
	errs   []error
}

func (h *harness) binding() Binding {
	return Binding{
		SendFrame: func(id uint32, data []byte) error {
			cp := make([]byte, len(data))
			copy(cp, data)
			h.frames = append(h.frames, cp)
			return nil
		},
		Microseconds: func() uint32 { return h.now },
		OnTxDone:     func(size int) { h.txDone = append(h.txDone, size) },
		OnRxDone: func(data []byte, size int) {
			h.rxData = append([]byte(nil), data...)
			h.rxSize = size
		},
		OnError: func(err error) { h.errs = append(h.errs, err) },
	}
}

// pop drains the captured frames.
func (h *harness) pop() [][]byte {
	f := h.frames
	h.frames = nil
	return f
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

// shuttle moves frames between both links, polling the sender with the
// clock advanced by step each round, until the exchange goes quiet.
func shuttle(t *testing.T, a, b *Link, ha, hb *harness, step uint32) {
	t.Helper()
	for i := 0; i < 100; i++ {
		ha.now += step
		hb.now = ha.now
		a.Poll()
		b.Poll()
		fa, fb := ha.pop(), hb.pop()
		if len(fa) == 0 && len(fb) == 0 && !a.Transmitting() && !b.Transmitting() {
			return
		}
		for _, f := range fa {
			b.OnFrame(f)
		}
		for _, f := range fb {
			a.OnFrame(f)
		}
	}
	t.Fatalf("exchange did not settle")
}

func TestLink_SingleFrame(t *testing.T) {
	ha, hb := &harness{}, &harness{}
	pad := byte(0xCC)
	pa := DefaultParams()
	pa.Padding = &pad
	a := NewLink(0x7E0, make([]byte, 64), make([]byte, 64), ha.binding(), pa)
	b := NewLink(0x7E8, make([]byte, 64), make([]byte, 64), hb.binding(), DefaultParams())

	if err := a.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send: %v", err)
	}
	frames := ha.pop()
	if len(frames) != 1 {
		t.Fatalf("want 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if len(f) != 8 {
		t.Fatalf("padded frame should be 8 bytes, got %d", len(f))
	}
	if f[0] != 0x03 || f[7] != pad {
		t.Fatalf("unexpected single frame %X", f)
	}
	if len(ha.txDone) != 1 || ha.txDone[0] != 3 {
		t.Fatalf("OnTxDone = %v, want [3]", ha.txDone)
	}

	b.OnFrame(f)
	if hb.rxSize != 3 || !bytes.Equal(hb.rxData, []byte{1, 2, 3}) {
		t.Fatalf("receive: size=%d data=%X", hb.rxSize, hb.rxData)
	}
}

func TestLink_MultiFrameRoundTrip(t *testing.T) {
	ha, hb := &harness{}, &harness{}
	a := NewLink(0x7E0, make([]byte, 64), make([]byte, 64), ha.binding(), DefaultParams())
	b := NewLink(0x7E8, make([]byte, 64), make([]byte, 64), hb.binding(), DefaultParams())

	payload := pattern(46)
	if err := a.Send(payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !a.Transmitting() {
		t.Fatalf("link should be transmitting after first frame")
	}
	ff := ha.pop()
	if len(ff) != 1 || ff[0][0] != 0x10 || ff[0][1] != 46 {
		t.Fatalf("unexpected first frame %X", ff)
	}

	b.OnFrame(ff[0])
	if !b.Receiving() {
		t.Fatalf("peer should be reassembling")
	}
	fc := hb.pop()
	if len(fc) != 1 || fc[0][0] != 0x30 {
		t.Fatalf("expected flow control, got %X", fc)
	}
	a.OnFrame(fc[0])

	shuttle(t, a, b, ha, hb, 1000)

	if len(ha.txDone) != 1 || ha.txDone[0] != 46 {
		t.Fatalf("OnTxDone = %v, want [46]", ha.txDone)
	}
	if hb.rxSize != 46 || !bytes.Equal(hb.rxData, payload) {
		t.Fatalf("receive: size=%d data=%X", hb.rxSize, hb.rxData)
	}
	if len(ha.errs) != 0 || len(hb.errs) != 0 {
		t.Fatalf("unexpected errors: %v %v", ha.errs, hb.errs)
	}
}

func TestLink_BlockwiseFlowControl(t *testing.T) {
	ha, hb := &harness{}, &harness{}
	pb := DefaultParams()
	pb.BlockSize = 2
	a := NewLink(0x7E0, make([]byte, 64), make([]byte, 64), ha.binding(), DefaultParams())
	b := NewLink(0x7E8, make([]byte, 64), make([]byte, 64), hb.binding(), pb)

	payload := pattern(30) // first frame + 4 consecutive frames
	if err := a.Send(payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	fcCount := 0
	for i := 0; i < 100 && len(ha.txDone) == 0; i++ {
		for _, f := range ha.pop() {
			b.OnFrame(f)
		}
		for _, f := range hb.pop() {
			if f[0]>>4 == 0x3 {
				fcCount++
			}
			a.OnFrame(f)
		}
		ha.now += 1000
		hb.now = ha.now
		a.Poll()
		b.Poll()
	}
	if len(ha.txDone) != 1 || ha.txDone[0] != 30 {
		t.Fatalf("OnTxDone = %v, want [30]", ha.txDone)
	}
	if !bytes.Equal(hb.rxData, payload) {
		t.Fatalf("payload mismatch")
	}
	// Initial flow control plus one at the block boundary after two
	// consecutive frames.
	if fcCount != 2 {
		t.Fatalf("flow control count = %d, want 2", fcCount)
	}
}

func TestLink_STMinPacing(t *testing.T) {
	ha := &harness{}
	a := NewLink(0x7E0, make([]byte, 64), make([]byte, 64), ha.binding(), DefaultParams())

	if err := a.Send(pattern(20)); err != nil {
		t.Fatalf("send: %v", err)
	}
	ha.pop()                            // first frame
	a.OnFrame([]byte{0x30, 0x00, 0x05}) // CTS, no block limit, STmin 5 ms

	a.Poll()
	if got := len(ha.pop()); got != 1 {
		t.Fatalf("first poll should emit exactly one consecutive frame, got %d", got)
	}
	a.Poll()
	if got := len(ha.pop()); got != 0 {
		t.Fatalf("consecutive frame emitted before STmin elapsed")
	}
	ha.now += 5000
	a.Poll()
	if got := len(ha.pop()); got != 1 {
		t.Fatalf("poll after STmin should emit one frame, got %d", got)
	}
}

func TestLink_SendRejections(t *testing.T) {
	h := &harness{}
	l := NewLink(0x7E0, make([]byte, 16), make([]byte, 16), h.binding(), DefaultParams())

	if err := l.Send(pattern(4096)); !errors.Is(err, ErrLengthTooLarge) {
		t.Fatalf("oversize: %v", err)
	}
	if err := l.Send(pattern(17)); !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("buffer overflow: %v", err)
	}
	if err := l.Send(pattern(10)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := l.Send(pattern(10)); !errors.Is(err, ErrInProgress) {
		t.Fatalf("busy: %v", err)
	}
}

func TestLink_WrongSequence(t *testing.T) {
	h := &harness{}
	l := NewLink(0x7E8, make([]byte, 64), make([]byte, 64), h.binding(), DefaultParams())

	l.OnFrame([]byte{0x10, 20, 0, 1, 2, 3, 4, 5})
	h.pop() // flow control
	l.OnFrame([]byte{0x22, 6, 7, 8, 9, 10, 11, 12})

	if len(h.errs) != 1 || !errors.Is(h.errs[0], ErrWrongSequence) {
		t.Fatalf("errors = %v, want wrong sequence", h.errs)
	}
	if l.Receiving() {
		t.Fatalf("reassembly should be reset after sequence error")
	}
}

func TestLink_Timeouts(t *testing.T) {
	t.Run("flow control", func(t *testing.T) {
		h := &harness{}
		l := NewLink(0x7E0, make([]byte, 64), make([]byte, 64), h.binding(), DefaultParams())
		if err := l.Send(pattern(20)); err != nil {
			t.Fatalf("send: %v", err)
		}
		h.now += uint32(time.Second/time.Microsecond) + 1
		l.Poll()
		if len(h.errs) != 1 || !errors.Is(h.errs[0], ErrTimeoutFC) {
			t.Fatalf("errors = %v, want FC timeout", h.errs)
		}
		if l.Transmitting() {
			t.Fatalf("send should be reset after timeout")
		}
	})
	t.Run("consecutive frame", func(t *testing.T) {
		h := &harness{}
		l := NewLink(0x7E8, make([]byte, 64), make([]byte, 64), h.binding(), DefaultParams())
		l.OnFrame([]byte{0x10, 20, 0, 1, 2, 3, 4, 5})
		h.now += uint32(time.Second/time.Microsecond) + 1
		l.Poll()
		if len(h.errs) != 1 || !errors.Is(h.errs[0], ErrTimeoutCF) {
			t.Fatalf("errors = %v, want CF timeout", h.errs)
		}
		if l.Receiving() {
			t.Fatalf("reassembly should be reset after timeout")
		}
	})
}

func TestLink_WaitFramesAndOverflow(t *testing.T) {
	h := &harness{}
	p := DefaultParams()
	p.WaitFrameMax = 2
	l := NewLink(0x7E0, make([]byte, 64), make([]byte, 64), h.binding(), p)

	if err := l.Send(pattern(20)); err != nil {
		t.Fatalf("send: %v", err)
	}
	l.OnFrame([]byte{0x31, 0, 0})
	l.OnFrame([]byte{0x31, 0, 0})
	if len(h.errs) != 0 {
		t.Fatalf("waits within limit should not error: %v", h.errs)
	}
	l.OnFrame([]byte{0x31, 0, 0})
	if len(h.errs) != 1 || !errors.Is(h.errs[0], ErrTooManyWaits) {
		t.Fatalf("errors = %v, want too many waits", h.errs)
	}

	h.errs = nil
	if err := l.Send(pattern(20)); err != nil {
		t.Fatalf("send: %v", err)
	}
	l.OnFrame([]byte{0x32, 0, 0})
	if len(h.errs) != 1 || !errors.Is(h.errs[0], ErrOverflowed) {
		t.Fatalf("errors = %v, want overflow", h.errs)
	}
}

func TestLink_TruncatedReceive(t *testing.T) {
	ha, hb := &harness{}, &harness{}
	a := NewLink(0x7E0, make([]byte, 64), make([]byte, 64), ha.binding(), DefaultParams())
	b := NewLink(0x7E8, make([]byte, 64), make([]byte, 16), hb.binding(), DefaultParams())

	payload := pattern(30)
	if err := a.Send(payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, f := range ha.pop() {
		b.OnFrame(f)
	}
	for _, f := range hb.pop() {
		a.OnFrame(f)
	}
	shuttle(t, a, b, ha, hb, 1000)

	if len(ha.txDone) != 1 || ha.txDone[0] != 30 {
		t.Fatalf("OnTxDone = %v, want [30]", ha.txDone)
	}
	if hb.rxSize != 30 {
		t.Fatalf("declared size = %d, want 30", hb.rxSize)
	}
	if len(hb.rxData) != 16 || !bytes.Equal(hb.rxData, payload[:16]) {
		t.Fatalf("stored prefix mismatch: %X", hb.rxData)
	}
}

func TestDecodeSTMin(t *testing.T) {
	cases := []struct {
		raw  byte
		want time.Duration
	}{
		{0x00, 0},
		{0x05, 5 * time.Millisecond},
		{0x7F, 127 * time.Millisecond},
		{0xF1, 100 * time.Microsecond},
		{0xF9, 900 * time.Microsecond},
		{0x80, 127 * time.Millisecond}, // reserved
		{0xF0, 127 * time.Millisecond}, // reserved
		{0xFA, 127 * time.Millisecond}, // reserved
	}
	for _, tc := range cases {
		if got := decodeSTMin(tc.raw); got != tc.want {
			t.Fatalf("decodeSTMin(0x%02X) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
