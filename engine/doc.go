// Package engine implements the ISO-TP (ISO 15765-2) segmentation,
// reassembly, flow-control and timing state machine for classical CAN.
//
// The engine is callback-driven and non-blocking: it never sleeps and never
// reads from a bus. Frame transmission, clock access and completion
// notification all go through the Binding supplied at construction. Inbound
// frames are pushed in via OnFrame and time-dependent behavior (timeouts,
// STmin-paced consecutive frames) is advanced by calling Poll periodically.
//
// A Link is NOT safe for concurrent use. The caller must guarantee that
// Send, OnFrame and Poll never run concurrently on the same Link; the
// adapter in the parent package serializes them with a per-link guard.
package engine
