// Package api implements the HTTP server of the Z-Wave gateway.
//
// This package provides:
//   - the WebSocket endpoint carrying the JSON rendition of the line protocol
//   - a hub that pushes the UPDATE notification to authenticated sessions
//   - health, status and Prometheus endpoints for monitoring
//   - the middleware stack (request ID, logging, recovery, CORS, metrics)
//
// # Architecture
//
//	client ──text frame "SCENE~ACTIVATE~Evening"──► readPump
//	                                                   │
//	                                          gateway.Dispatch
//	                                                   │
//	client ◄──{"command":"SCENE",...}───── writePump ◄─┘
//
// Each WebSocket connection owns a gateway.Session. When the gateway has a
// token validator, every command but AUTH is refused until AUTH succeeds,
// and UPDATE broadcasts skip unauthenticated sessions.
//
// # Endpoints
//
//	GET /api/v1/health   component health, 503 when any check fails
//	GET /api/v1/status   runtime, registry and session statistics
//	GET /metrics         Prometheus exposition
//	GET /ws              WebSocket upgrade (path configurable)
package api
