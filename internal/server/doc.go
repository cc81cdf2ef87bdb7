// Package server provides HTTP routing, middleware, and the gateway's
// request handlers.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Handlers
//
// [HealthHandler] answers liveness probes on /healthz.
//
// [ProxyHandler] forwards /api/ requests to the upstream music API through the
// authenticated proxy client. Successful GET responses are stored in the local
// response cache and served from it while they remain fresh. Token acquisition
// failures are translated into the gateway's JSON error contract: configuration
// problems report a fixed misconfiguration message, upstream rejections keep
// their original status and message, and transport or payload failures surface
// as a 502.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
