// Package can provides the frame-oriented transport layer underneath the
// ISO-TP adapter.
//
// It includes:
//   - A core Frame type with validation and binary marshaling helpers
//   - The Bus interface every transport driver implements
//   - An in-memory loopback bus for tests and simulations
//   - Composable frame filters used for dispatch matching
//   - A Linux SocketCAN driver (linux-only) via raw syscalls
package can
