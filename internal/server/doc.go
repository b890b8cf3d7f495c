// Package server implements the LinkRoom group-chat backend: an HTTP API for
// login and group management, a WebSocket gateway for realtime messaging, and
// the in-memory registries that back both.
//
// The implementation is organized into specialized files for configuration,
// the session and group registries, hub management, clients, routing, and
// HTTP handlers to keep the codebase maintainable and testable as the project
// grows.
package server
