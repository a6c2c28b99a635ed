// Package httpmw provides HTTP middleware for the public bundle listener.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request ID, client IP, rate limiting, OTEL tracing,
// content release headers, metrics, request scoped logging, then the chi
// router.
//
// Query strings, cookies and most headers feed bundle variance, so they are
// kept out of access logs.
package httpmw
