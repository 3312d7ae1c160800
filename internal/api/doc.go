// Package api implements the HTTP REST API of the student registry.
//
// This package provides:
//   - authentication endpoints (register, login, me) issuing JWT session tokens
//   - staff management and student CRUD gated by the auth policy engine
//   - an admin-only audit log endpoint
//   - Prometheus metrics on /metrics and dependency health on /api/v1/health
//   - the middleware stack (request ID, logging, recovery, security headers,
//     CORS, body size limit, per-IP rate limit on login and register)
//
// # Identity
//
// identityMiddleware resolves the Authorization bearer token to a staff id
// for every /api/v1 request. A missing or invalid token resolves to
// auth.Unauthenticated rather than being rejected outright; the services
// return auth.ErrUnauthenticated wherever an identity is required, and
// writeServiceError turns that into 401.
//
// # Side effects
//
// Mutations are queued to an audit drain goroutine which writes the audit
// log and publishes staff and student events over MQTT. Both are best
// effort and never fail the request.
package api
