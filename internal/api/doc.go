// Package api implements the optional diagnostics HTTP server.
//
// It provides:
//   - A read-only view of the entity store and scheduler state
//   - Runtime, MQTT and vendor quota metrics
//   - A trigger for an immediate device list refresh
//   - A WebSocket stream relaying entity state and availability as the
//     bridge publishes it
//
// The server is disabled by default and binds to localhost. When
// api.jwt_secret is set every route except health requires a bearer token
// issued by the auth package; the refresh trigger needs the control scope.
package api
