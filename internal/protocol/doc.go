// Package protocol defines the JSON messages exchanged over a session channel.
//
// Client → server messages carry {type, payload, id}; server → client messages
// carry {type, payload, id?, timestamp}. The id of a server message echoes the
// id of the client message it answers, which is how requests are correlated.
package protocol
