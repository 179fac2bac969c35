// Package isotp provides blocking, thread-safe ISO-TP messaging over a
// frame-oriented CAN transport.
//
// A Stack owns one can.Bus for receiving and runs three background tasks: a
// reader that copies inbound frames into a bounded queue, a single
// dispatcher worker that fans each frame out to every matching link's
// protocol engine, and a poll driver that advances protocol timing at a
// fixed interval. Any number of links can share the stack; each link pairs
// a send identifier with a listen identifier and exposes blocking Send and
// Receive calls with explicit timeouts.
//
// The segmentation/reassembly state machine itself lives in the engine
// subpackage; this package is the concurrency adapter around it.
package isotp
