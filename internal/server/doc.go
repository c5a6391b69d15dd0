// Package server implements the Circe chat server: one session per client
// connection, the request dispatcher, and the process lifecycle around them.
//
// The implementation is organized into specialized files for configuration,
// the session hub, sessions, request handlers, metrics, and the HTTP ops
// endpoint to keep the codebase maintainable and testable as the project
// grows.
package server
