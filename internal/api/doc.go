// Package api implements the HTTP REST API and WebSocket server for the IR
// bridge.
//
// This package provides:
//   - REST endpoints to list accessories and read or change characteristics
//   - History endpoints backed by the local SQLite store
//   - WebSocket hub broadcasting every characteristic change
//   - Optional HS256 bearer-token authentication
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - Prometheus metrics on a separate path
//
// # Architecture
//
// The server is an outer surface. It reaches accessories through the
// Registry interface and learns about changes because the Hub is one of
// the refresh notifiers. The accessory engine never depends on it.
//
// # Security
//
// When security.jwt.secret is set every /api/v1 route except /health
// requires a bearer token signed with it. Browsers cannot set headers on a
// WebSocket upgrade, so /api/v1/ws also accepts the token as the
// access_token query parameter.
package api
