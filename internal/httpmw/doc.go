// Package httpmw provides HTTP middleware for the registry API server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// request ID, client IP extraction, rate limiting, OTEL tracing, metrics,
// structured logging, and chi router.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually.
package httpmw
