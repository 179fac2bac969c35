package can

import (
	"bytes"
	"fmt"
	"testing"
)

func TestFrame_Validate_Marshal_Unmarshal_String(t *testing.T) {
	cases := []struct {
		name    string
		frame   Frame
		wantStr string
		wantErr error
	}{
		{
			name:    "standard frame with data",
			frame:   MustFrame(0x123, []byte{0xDE, 0xAD}),
			wantStr: "123 [2] DE AD",
			wantErr: nil,
		},
		{
			name:    "extended RTR, zero length",
			frame:   Frame{ID: 0x1ABCDEFF, Extended: true, RTR: true, Len: 0},
			wantStr: "1ABCDEFF [0] RTR",
			wantErr: nil,
		},
	}

	for _, tc := range cases {
		// Validate
		if got := tc.frame.Validate(); got != tc.wantErr {
			t.Fatalf("%s: Validate() error = %v, want %v", tc.name, got, tc.wantErr)
		}
		// Marshal/Unmarshal roundtrip
		b, err := tc.frame.MarshalBinary()
		if err != nil {
			t.Fatalf("%s: MarshalBinary() error = %v", tc.name, err)
		}
		var g Frame
		if err := g.UnmarshalBinary(b); err != nil {
			t.Fatalf("%s: UnmarshalBinary() error = %v", tc.name, err)
		}
		if g != tc.frame {
			t.Fatalf("%s: roundtrip mismatch: got %+v want %+v", tc.name, g, tc.frame)
		}
		// String
		if got := g.String(); got != tc.wantStr {
			t.Fatalf("%s: String() = %q, want %q", tc.name, got, tc.wantStr)
		}
	}

	// Invalid cases
	{
		f := Frame{ID: 0x800, Len: 0} // standard, out of range
		if err := f.Validate(); err == nil {
			t.Fatalf("expected invalid standard ID")
		}
	}
	{
		f := Frame{ID: 0x20000000, Extended: true} // extended, out of range
		if err := f.Validate(); err == nil {
			t.Fatalf("expected invalid extended ID")
		}
	}
	{
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("MustFrame should panic for len>8")
			}
		}()
		_ = MustFrame(0x123, make([]byte, 9))
	}
}

func TestFrame_Payload(t *testing.T) {
	f := MustFrame(0x123, []byte{1, 2, 3})
	if !bytes.Equal(f.Payload(), []byte{1, 2, 3}) {
		t.Fatalf("Payload() = %v", f.Payload())
	}
}

func TestLoopbackBus_SendReceive_MultiEndpoint(t *testing.T) {
	bus := NewLoopbackBus()
	defer bus.Close()

	a := bus.Open()
	b := bus.Open()
	c := bus.Open()
	defer a.Close()
	defer b.Close()
	defer c.Close()

	send := MustFrame(0x321, []byte("hello"))

	done := make(chan error, 1)
	go func() { done <- a.Send(send) }()

	gotB, err := b.Receive()
	if err != nil {
		t.Fatalf("receive b: %v", err)
	}
	gotC, err := c.Receive()
	if err != nil {
		t.Fatalf("receive c: %v", err)
	}
	if gotB != send {
		t.Fatalf("b mismatch: got %+v want %+v", gotB, send)
	}
	if gotC != send {
		t.Fatalf("c mismatch: got %+v want %+v", gotC, send)
	}
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotB.String() != "321 [5] 68 65 6C 6C 6F" {
		t.Fatalf("string: got %q", gotB.String())
	}
}

func TestLoopbackBus_CloseBehavior(t *testing.T) {
	bus := NewLoopbackBus()
	a := bus.Open()
	b := bus.Open()

	// Close endpoint and ensure it errors
	_ = a.Close()
	if _, err := a.Receive(); err == nil {
		t.Fatalf("closed endpoint should error on Receive")
	}
	if err := a.Send(MustFrame(0x1, nil)); err == nil {
		t.Fatalf("closed endpoint should error on Send")
	}

	// Close bus and ensure other endpoint errors after close
	_ = bus.Close()
	if _, err := b.Receive(); err == nil {
		t.Fatalf("endpoint should error after bus close")
	}
	if err := b.Send(MustFrame(0x1, nil)); err == nil {
		t.Fatalf("endpoint should error on Send after bus close")
	}
}

func TestFilters_Basics(t *testing.T) {
	f1 := MustFrame(0x100, []byte{1})
	f2 := MustFrame(0x101, []byte{2})
	f3 := Frame{ID: 0x1ABCDEFF, Extended: true, Len: 0}

	if !ByID(0x100)(f1) || ByID(0x100)(f2) {
		t.Fatalf("ByID failure")
	}
	if !(ByIDs(0x100, 0x102)(f1)) || ByIDs(0x100, 0x102)(f2) {
		t.Fatalf("ByIDs failure")
	}
	if !ByRange(0x100, 0x1FF)(f2) || ByRange(0x200, 0x2FF)(f2) {
		t.Fatalf("ByRange failure")
	}
	// Use a mask that distinguishes 0x100 from 0x101 (all 11 std bits)
	if !ByMask(0x100, 0x7FF)(f1) || ByMask(0x100, 0x7FF)(f2) {
		t.Fatalf("ByMask failure")
	}
	if !StandardOnly()(f1) || StandardOnly()(f3) {
		t.Fatalf("StandardOnly failure")
	}
	if !ExtendedOnly()(f3) || ExtendedOnly()(f1) {
		t.Fatalf("ExtendedOnly failure")
	}
	data := f1
	data.RTR = false
	if !DataOnly()(data) {
		t.Fatalf("DataOnly failure")
	}
	rtr := f1
	rtr.RTR = true
	if DataOnly()(rtr) {
		t.Fatalf("DataOnly should reject RTR")
	}
	if !And(ByID(0x100), DataOnly())(data) || And(ByID(0x100), DataOnly())(rtr) {
		t.Fatalf("And failure")
	}
	if !Or(ByID(0x100), ByID(0x999))(f1) || Or(ByID(0x999), ByID(0x998))(f1) {
		t.Fatalf("Or failure")
	}
	if Not(ByID(0x100))(f1) || !Not(ByID(0x999))(f1) {
		t.Fatalf("Not failure")
	}
}

func ExampleLoopbackBus() {
	bus := NewLoopbackBus()
	a := bus.Open()
	b := bus.Open()
	defer a.Close()
	defer b.Close()

	go func() { _ = a.Send(MustFrame(0x123, []byte("hi"))) }()

	f, _ := b.Receive()
	fmt.Println(f.String())
	// Output: 123 [2] 68 69
}
