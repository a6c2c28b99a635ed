package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	ContentReleaseHeader = "X-Content-Release"
	ContentHashHeader    = "X-Content-Hash"

	shortHashLen = 12
)

// ContentInfo identifies the content release currently being served.
type ContentInfo interface {
	ContentVersion() string
	ContentHash() string
}

func shortHash(h string) string {
	if len(h) > shortHashLen {
		return h[:shortHashLen]
	}
	return h
}

// ContentHeaders stamps the active release on every response so a bundle
// can be traced back to the content it was built from. Values are read per
// request since the release can be swapped while serving.
func ContentHeaders(info ContentInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			version, hash := info.ContentVersion(), info.ContentHash()

			var attrs []attribute.KeyValue
			if version != "" {
				w.Header().Set(ContentReleaseHeader, version)
				attrs = append(attrs, attribute.String("content.release", version))
			}
			if hash != "" {
				w.Header().Set(ContentHashHeader, shortHash(hash))
				attrs = append(attrs, attribute.String("content.hash", hash))
			}
			if span := trace.SpanFromContext(r.Context()); len(attrs) > 0 && span.IsRecording() {
				span.SetAttributes(attrs...)
			}
			next.ServeHTTP(w, r)
		})
	}
}
