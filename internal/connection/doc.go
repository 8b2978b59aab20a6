// Package connection implements the session channel manager.
//
// The Manager:
//   - Owns one WebSocket transport bound to one chat session at a time
//   - Queues outbound messages while the transport is not open
//   - Correlates request/response pairs by message id
//   - Fans inbound events out to type and wildcard subscribers
//   - Reconnects with exponential backoff after an abnormal close
//   - Sends a liveness ping on a fixed interval while open
//
// All manager state is owned by a single goroutine. Caller operations,
// transport events and timer firings are serialized through it, so no locks
// guard the state. Subscriber callbacks run on a separate dispatch goroutine
// and may call back into the Manager.
package connection
