// Package authclient provides the client half of a go-auth deployment: a
// resilient HTTP client with epoch-scoped response caching, a single-flight
// auth orchestrator that owns the identity-check lifecycle, and token
// plumbing for cookie and bearer-header transports.
//
// Auth epochs:
//   - Every login, logout, and token refresh bumps a monotonic epoch before
//     the new AuthState is published. The epoch is part of every cache key,
//     so responses cached under a previous authentication generation can
//     never be served after the generation changes.
//
// Identity-check guard:
//   - Only the Orchestrator may reach the identity-check endpoint. The
//     Client rejects unmarked requests to that path with ErrGuardViolation
//     before any network I/O. Duplicate whoami calls from scattered call
//     sites defeat the single-flight cache and show up as login storms on
//     the backend, so the guard fails loudly during integration instead.
//
// Activity sinks:
//   - ActivitySink mirrors the server-side emitter. Sinks run best-effort
//     (errors are logged) so you can forward login, refresh, and epoch
//     events to telemetry without blocking the request path.
//
// The tv subpackage carries the ambient-surface state machines (scene
// manager and widget scheduler) used by TV/kiosk deployments.
package authclient
