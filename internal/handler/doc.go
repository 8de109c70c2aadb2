// Package handler implements the relay's HTTP surface next to the browser
// WebSocket endpoint.
//
// # Endpoints
//
//	GET /api/status         relay mode, target, hardware state, client count
//	GET /api/journal?limit  most recent activity journal entries
//	GET /healthz            process liveness (always 200 while serving)
//
// /metrics is served by the metrics package and the WebSocket endpoint by
// the hub; both are mounted next to these handlers in cmd/server.
//
// # Response Format
//
// Success responses return JSON. Error responses return JSON with an
// {error, details} structure.
//
// # Middleware
//
// Chain composes Recover, CORS and Logger around the mux. The logging
// wrapper keeps http.Hijacker reachable so WebSocket upgrades pass through.
package handler
