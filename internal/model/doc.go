// Package model defines the session data shared between the chat service and its clients.
//
// All types mirror the JSON the chat service pushes in "session" snapshots and
// returns from the REST session endpoints.
//
// Conventions:
//   - IDs: string (the service issues UUIDs, but clients treat them as opaque)
//   - Timestamps: RFC 3339 strings as sent by the service
//   - Optional sections (classification, validation) are pointers, nil when absent
package model
