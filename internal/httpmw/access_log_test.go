package httpmw

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
)

type flusherRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flusherRecorder) Flush() { f.flushed = true }

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

type noHijackRecorder struct {
	*httptest.ResponseRecorder
}

// serveLogged runs h behind AccessLog with rl as the context logger.
func serveLogged(rl *recordingLogger, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req = req.WithContext(log.WithContext(req.Context(), rl))
	AccessLog()(h).ServeHTTP(rec, req)
	return rec
}

func TestResponseWriter_StatusAndBytes(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, ctx: context.Background()}

	if rw.statusCode() != http.StatusOK {
		t.Fatalf("statusCode before write = %d, want 200", rw.statusCode())
	}
	rw.WriteHeader(http.StatusNotModified)
	if rw.status != http.StatusNotModified || rec.Code != http.StatusNotModified {
		t.Fatalf("status = %d, recorder = %d", rw.status, rec.Code)
	}

	rec = httptest.NewRecorder()
	rw = &responseWriter{ResponseWriter: rec, ctx: context.Background()}
	for _, part := range []string{"body{", "color:red", "}"} {
		if _, err := rw.Write([]byte(part)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if rw.status != http.StatusOK {
		t.Fatalf("implicit status = %d, want 200", rw.status)
	}
	if rw.bytes != int64(len("body{color:red}")) {
		t.Fatalf("bytes = %d", rw.bytes)
	}
}

func TestResponseWriter_FlushAndHijack(t *testing.T) {
	t.Parallel()
	fr := &flusherRecorder{ResponseRecorder: httptest.NewRecorder()}
	(&responseWriter{ResponseWriter: fr, ctx: context.Background()}).Flush()
	if !fr.flushed {
		t.Fatal("Flush not delegated")
	}

	hr := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	if _, _, err := (&responseWriter{ResponseWriter: hr, ctx: context.Background()}).Hijack(); err != nil || !hr.hijacked {
		t.Fatalf("Hijack: err=%v hijacked=%v", err, hr.hijacked)
	}

	nh := &noHijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	_, _, err := (&responseWriter{ResponseWriter: nh, ctx: context.Background()}).Hijack()
	if err == nil || !strings.Contains(err.Error(), "http.Hijacker") {
		t.Fatalf("Hijack err = %v", err)
	}
}

func TestResponseWriter_WriteSpanWithoutParent(t *testing.T) {
	t.Parallel()
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), ctx: context.Background()}
	rw.ensureWriteSpan()
	rw.ensureWriteSpan()
	if !rw.spanStarted {
		t.Fatal("spanStarted not set")
	}
	if rw.writeSpan != nil {
		t.Fatal("write span started without a recording parent")
	}
	rw.finishWriteSpan()
}

func TestAccessLog_BundleRequest(t *testing.T) {
	t.Parallel()
	rl := &recordingLogger{}
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(bundleCacheHeader, "hit_l1")
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		_, _ = w.Write([]byte("body{}"))
	})
	serveLogged(rl, h, httptest.NewRequest(http.MethodGet, "/bundles/site-css/0123abcd/de.css", http.NoBody))

	entry := rl.lastInfo(t)
	if entry.msg != "http request" {
		t.Fatalf("msg = %q", entry.msg)
	}
	if v, _ := fieldValue(entry.fields, "http.response.status_code"); v != http.StatusOK {
		t.Errorf("status = %v", v)
	}
	if v, _ := fieldValue(entry.fields, "http.response.body.size"); v != int64(6) {
		t.Errorf("body size = %v", v)
	}
	if v, _ := fieldValue(entry.fields, "bundle.cache"); v != "hit_l1" {
		t.Errorf("bundle.cache = %v", v)
	}
	if d, ok := fieldValue(entry.fields, "http.server.request.duration"); !ok || d.(float64) < 0 {
		t.Errorf("duration = %v", d)
	}
}

func TestAccessLog_NoCacheFieldOutsideBundles(t *testing.T) {
	t.Parallel()
	rl := &recordingLogger{}
	serveLogged(rl, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), httptest.NewRequest(http.MethodGet, "/api/bundles/nope", http.NoBody))

	entry := rl.lastInfo(t)
	if _, ok := fieldValue(entry.fields, "bundle.cache"); ok {
		t.Fatal("bundle.cache set for a non-bundle response")
	}
	if v, _ := fieldValue(entry.fields, "http.response.status_code"); v != http.StatusNotFound {
		t.Fatalf("status = %v", v)
	}
}

func TestAccessLog_Skips(t *testing.T) {
	t.Parallel()
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	for _, p := range []string{"/-/ready", "/-/healthy", "/favicon.ico", "/robots.txt", "/bundles/app-js/abc.js.map", "/x.MAP"} {
		rl := &recordingLogger{}
		serveLogged(rl, ok, httptest.NewRequest(http.MethodGet, p, http.NoBody))
		if rl.infoCount() != 0 {
			t.Errorf("%s should not be logged", p)
		}
	}
	for _, p := range []string{"/bundles/site-css/abc.css", "/bundles/app-js/abc.js", "/api/bundles", "/api/content", "/"} {
		rl := &recordingLogger{}
		serveLogged(rl, ok, httptest.NewRequest(http.MethodGet, p, http.NoBody))
		if rl.infoCount() != 1 {
			t.Errorf("%s should be logged once, got %d", p, rl.infoCount())
		}
	}
}

func TestAccessLog_RequestBodySize(t *testing.T) {
	t.Parallel()
	rl := &recordingLogger{}
	req := httptest.NewRequest(http.MethodPost, "/api/bundles", strings.NewReader("payload"))
	serveLogged(rl, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}), req)

	if v, _ := fieldValue(rl.lastInfo(t).fields, "http.request.body.size"); v != int64(7) {
		t.Fatalf("request body size = %v, want 7", v)
	}
}

func TestAccessLog_Route(t *testing.T) {
	t.Parallel()
	rl := &recordingLogger{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(log.WithContext(req.Context(), rl)))
		})
	})
	r.Use(AccessLog())
	r.Get("/api/bundles/{name}", func(w http.ResponseWriter, _ *http.Request) {})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/bundles/site-css", http.NoBody))

	if v, _ := fieldValue(rl.lastInfo(t).fields, "http.route"); v != "/api/bundles/{name}" {
		t.Fatalf("http.route = %v", v)
	}

	rl2 := &recordingLogger{}
	serveLogged(rl2, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
		httptest.NewRequest(http.MethodGet, "/custom/path", http.NoBody))
	if v, _ := fieldValue(rl2.lastInfo(t).fields, "http.route"); v != "/custom/path" {
		t.Fatalf("fallback http.route = %v", v)
	}
}

func TestAccessLog_NoLoggerInContext(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bundles/x/y.css", http.NoBody))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}

func FuzzAccessLog_Path(f *testing.F) {
	for _, s := range []string{"/", "/bundles/site-css/abc.css", "/-/ready", "/x.map", "", "/../../etc/passwd", "/p\x00q", strings.Repeat("/a", 500)} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, p string) {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.URL.Path = p
		serveLogged(&recordingLogger{}, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}), req)
	})
}
