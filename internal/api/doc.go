// Package api provides the REST client for the chat service session collaborator.
//
// All paths are relative to the service's REST base, for example
// http://localhost:8000/api:
//   - POST   /sessions                create a session
//   - GET    /sessions                list sessions (limit, offset)
//   - GET    /sessions/{id}           full session state
//   - DELETE /sessions/{id}           delete a session
//   - POST   /sessions/{id}/upload    multipart CSV upload, JSON or event stream
//   - GET    /health                  liveness
//
// Error responses carry a JSON body of the form {"detail": "..."}, surfaced as
// *APIError.
package api
