package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Response headers naming the server span, so a bundle fetched in a browser
// can be looked up in the tracing backend.
const (
	TraceIDHeader = "X-Trace-Id"
	SpanIDHeader  = "X-Span-Id"
)

// TraceResponseHeaders echoes the active trace and span IDs. Empty header
// names fall back to TraceIDHeader and SpanIDHeader.
func TraceResponseHeaders(traceHeader, spanHeader string) Middleware {
	if traceHeader == "" {
		traceHeader = TraceIDHeader
	}
	if spanHeader == "" {
		spanHeader = SpanIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				w.Header().Set(traceHeader, sc.TraceID().String())
				w.Header().Set(spanHeader, sc.SpanID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
