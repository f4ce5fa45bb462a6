// Package api implements the HTTP API of the whitelist daemon.
//
// # Endpoints
//
//   - POST   /api/whitelist/add    add a player ({"username": "..."})
//   - DELETE /api/whitelist/remove remove a player
//   - GET    /api/whitelist/status list whitelisted players
//   - GET    /api/audit            query the audit log
//   - GET    /api/health           component health, unauthenticated
//   - GET    /metrics              Prometheus metrics, unauthenticated
//
// # Request Flow
//
//	HTTP Request → access log → body limit → rate limit → API key → Handler → mainloop → Store
//
// Whitelist routes require the X-API-Key header and are rate limited per
// client address. Mutations run on the mutation loop so they are serialized
// with bridge commands.
package api
