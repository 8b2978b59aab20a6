// Package queue provides an unbounded, order-preserving FIFO buffer.
//
// The channel manager uses it twice: for outbound messages that wait for an
// open transport, and for the subscriber dispatch queue that feeds callbacks
// in arrival order. Neither use may drop items, so the buffer grows instead of
// rejecting writes.
package queue
