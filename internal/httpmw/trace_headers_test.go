package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func spanCtx(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func TestTraceResponseHeaders(t *testing.T) {
	traced, sc := spanCtx(t)
	tests := []struct {
		name              string
		ctx               context.Context
		traceHdr, spanHdr string
		wantTrace         string
		wantSpan          string
	}{
		{name: "valid span defaults", ctx: traced, wantTrace: sc.TraceID().String(), wantSpan: sc.SpanID().String()},
		{name: "custom names", ctx: traced, traceHdr: "Trace", spanHdr: "Span", wantTrace: sc.TraceID().String(), wantSpan: sc.SpanID().String()},
		{name: "no span", ctx: context.Background()},
		{name: "noop span", ctx: trace.ContextWithSpan(context.Background(), trace.SpanFromContext(context.Background()))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := TraceResponseHeaders(tt.traceHdr, tt.spanHdr)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody).WithContext(tt.ctx))

			th, sh := tt.traceHdr, tt.spanHdr
			if th == "" {
				th, sh = TraceIDHeader, SpanIDHeader
			}
			if !called {
				t.Fatal("handler not called")
			}
			if got := rec.Header().Get(th); got != tt.wantTrace {
				t.Errorf("%s = %q, want %q", th, got, tt.wantTrace)
			}
			if got := rec.Header().Get(sh); got != tt.wantSpan {
				t.Errorf("%s = %q, want %q", sh, got, tt.wantSpan)
			}
		})
	}
}
