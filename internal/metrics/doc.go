// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Channel connection state, connect and reconnect attempts
//   - Reconnect backoff delays
//   - Outbound queue depth and pending request count
//   - Request outcomes and inbound frames by type
//   - Parse errors and subscriber panics
//   - Development server HTTP requests
//
// A nil *Collector is valid and records nothing, so components can take one
// unconditionally.
package metrics
