package engine

import "time"

// Params holds the tunable protocol parameters of a link. The zero value is
// not useful; start from DefaultParams.
type Params struct {
	// BlockSize is the BS value advertised in outgoing flow-control frames:
	// the number of consecutive frames the peer may send before waiting for
	// the next flow control. 0 means no limit.
	BlockSize uint8

	// STMin is the minimum separation time advertised in outgoing
	// flow-control frames, in the raw ISO 15765-2 encoding
	// (0x00..0x7F = milliseconds, 0xF1..0xF9 = 100..900 microseconds).
	STMin uint8

	// WaitFrameMax bounds how many consecutive flow-control WAIT frames
	// from the peer are tolerated before the send aborts. 0 disables WAIT
	// support entirely: the first WAIT aborts.
	WaitFrameMax int

	// FCTimeout is the N_Bs timeout: how long to wait for a flow-control
	// frame after sending a first frame or finishing a block.
	FCTimeout time.Duration

	// CFTimeout is the N_Cr timeout: how long to wait for the next
	// consecutive frame while a reception is in progress.
	CFTimeout time.Duration

	// Padding, when non-nil, pads every transmitted frame to 8 bytes with
	// the given byte. Many classical CAN nodes require fixed-DLC frames.
	Padding *byte
}

// DefaultParams returns the parameter set used when the adapter does not
// override anything: BS 8, no separation time, 4 WAIT frames tolerated,
// one-second protocol timeouts, no padding.
func DefaultParams() Params {
	return Params{
		BlockSize:    8,
		STMin:        0,
		WaitFrameMax: 4,
		FCTimeout:    time.Second,
		CFTimeout:    time.Second,
	}
}

// decodeSTMin converts a raw STmin byte from a received flow-control frame
// into a duration. Reserved values decode to the maximum of 127ms, which is
// what ISO 15765-2 prescribes for unknown encodings.
func decodeSTMin(raw byte) time.Duration {
	switch {
	case raw <= 0x7F:
		return time.Duration(raw) * time.Millisecond
	case raw >= 0xF1 && raw <= 0xF9:
		return time.Duration(raw-0xF0) * 100 * time.Microsecond
	default:
		return 127 * time.Millisecond
	}
}
