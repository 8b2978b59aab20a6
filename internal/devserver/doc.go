// Package devserver implements an in-memory stand-in for the chat service.
//
// It serves the session REST endpoints under /api and the per-session
// WebSocket channel at /api/ws/:id with the same envelopes as the real
// service, answering chat with a scripted echo turn. Nothing is persisted.
package devserver
