package httpserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundleapi"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundlecache"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundlehttp"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/catalog"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/combiner"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/content"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/health"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/urlgen"
)

// TestIntegration_FullStack wires httpserver.NewHandler to the bundle handler
// and discovery API over an in-memory content Manager, then walks a client
// through discovery, fetch, revalidation and provider rejection.
func TestIntegration_FullStack(t *testing.T) {
	t.Parallel()

	siteFS := fstest.MapFS{
		bundle.ManifestFile: {Data: []byte(`{"bundles":[
  {"name":"site-css","type":"css","resources":[{"path":"css/base.css"},{"path":"css/lang.css"}],
   "filters":["params"],
   "vary":{"provider":"language","options":{"supported":"en,de"}}},
  {"name":"tenant-js","type":"js","resources":[{"path":"js/tenant.js"}],
   "vary":{"provider":"context","options":{"key":"header.X-Tenant","param":"tenant","allowed":"acme,globex"}}}
]}`)},
		"css/base.css": {Data: []byte("body { color: red; }")},
		"css/lang.css": {Data: []byte(`html::before { content: "{{language}}"; }`)},
		"js/tenant.js": {Data: []byte(`var tenant = "{{tenant}}";`)},
	}
	cat, err := catalog.Compile(siteFS, catalog.Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	mgr := content.NewManager()
	mgr.Set(content.Snapshot{
		FS:      siteFS,
		Catalog: cat,
		Meta:    content.Meta{Version: "v1.0.0", SHA256: "abc123def456", Source: content.SourceSeed},
	})

	cache, err := bundlecache.New(bundlecache.Options{Size: 16})
	if err != nil {
		t.Fatalf("bundlecache.New: %v", err)
	}
	urls := urlgen.New("/bundles")

	bundles, err := bundlehttp.New(bundlehttp.Options{
		Logger:  log.Nop(),
		Content: mgr,
		URLs:    urls,
		Cache:   cache,
		Builder: combiner.New(combiner.Options{}),
	})
	if err != nil {
		t.Fatalf("bundlehttp.New: %v", err)
	}
	api := bundleapi.NewAPI(mgr, urls, log.Nop())

	handler := httpserver.NewHandler(httpserver.Options{
		Logger:       log.Nop(),
		ContentInfo:  mgr,
		APIRoutes:    api.RegisterRoutes,
		BundlePrefix: "/bundles",
		Bundles:      bundles,
	})

	get := func(t *testing.T, target string, hdr ...string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
		for i := 0; i+1 < len(hdr); i += 2 {
			req.Header.Set(hdr[i], hdr[i+1])
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	discover := func(t *testing.T, name string, hdr ...string) bundleapi.BundleResponse {
		t.Helper()
		rec := get(t, "/api/bundles/"+name, hdr...)
		if rec.Code != http.StatusOK {
			t.Fatalf("discover %s: status = %d, body = %s", name, rec.Code, rec.Body.String())
		}
		var resp bundleapi.BundleResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp
	}

	t.Run("discovered url serves the variant", func(t *testing.T) {
		t.Parallel()
		d := discover(t, "site-css", "Accept-Language", "de-DE,de;q=0.9")
		if !strings.HasSuffix(d.URL, "/de.css") {
			t.Fatalf("url = %q", d.URL)
		}

		rec := get(t, d.URL, "Accept-Language", "de-DE")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), `content: "de"`) || !strings.Contains(string(body), "color: red") {
			t.Fatalf("body = %q", body)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
			t.Fatalf("Content-Type = %q", ct)
		}
		if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
			t.Fatalf("Cache-Control = %q, want immutable", cc)
		}
		for _, h := range []string{"Strict-Transport-Security", "X-Content-Type-Options", "X-Request-Id", "X-Content-Hash"} {
			if rec.Header().Get(h) == "" {
				t.Errorf("%s missing on bundle response", h)
			}
		}
	})

	t.Run("etag revalidation", func(t *testing.T) {
		t.Parallel()
		d := discover(t, "site-css")
		first := get(t, d.URL)
		etag := first.Header().Get("ETag")
		if etag == "" {
			t.Fatal("ETag missing")
		}
		rec := get(t, d.URL, "If-None-Match", etag)
		if rec.Code != http.StatusNotModified {
			t.Fatalf("status = %d, want 304", rec.Code)
		}
	})

	t.Run("non-canonical url redirects", func(t *testing.T) {
		t.Parallel()
		d := discover(t, "site-css")
		wrong := strings.Replace(d.URL, "/en.css", "/de.css", 1)
		rec := get(t, wrong, "Accept-Language", "en")
		if rec.Code != http.StatusTemporaryRedirect {
			t.Fatalf("status = %d, want 307", rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != d.URL {
			t.Fatalf("Location = %q, want %q", loc, d.URL)
		}
	})

	t.Run("context variance shares url and is private", func(t *testing.T) {
		t.Parallel()
		acme := discover(t, "tenant-js", "X-Tenant", "acme")
		globex := discover(t, "tenant-js", "X-Tenant", "globex")
		if acme.URL != globex.URL {
			t.Fatalf("urls differ: %q %q", acme.URL, globex.URL)
		}

		a := get(t, acme.URL, "X-Tenant", "acme")
		g := get(t, globex.URL, "X-Tenant", "globex")
		if !strings.Contains(a.Body.String(), `"acme"`) || !strings.Contains(g.Body.String(), `"globex"`) {
			t.Fatalf("bodies = %q %q", a.Body.String(), g.Body.String())
		}
		if a.Header().Get("ETag") == g.Header().Get("ETag") {
			t.Fatal("variants share an ETag")
		}
		if cc := a.Header().Get("Cache-Control"); cc != "private, no-cache" {
			t.Fatalf("Cache-Control = %q", cc)
		}
	})

	t.Run("provider rejection is 400", func(t *testing.T) {
		t.Parallel()
		d := discover(t, "tenant-js", "X-Tenant", "acme")
		rec := get(t, d.URL, "X-Tenant", "initech")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
			t.Fatalf("Cache-Control = %q, want no-store", cc)
		}
	})

	t.Run("unknown bundle is 404", func(t *testing.T) {
		t.Parallel()
		rec := get(t, "/bundles/nope/abc.css")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("post to bundle is 405", func(t *testing.T) {
		t.Parallel()
		d := discover(t, "site-css")
		req := httptest.NewRequest(http.MethodPost, d.URL, http.NoBody)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})
}

func TestIntegration_NoContent(t *testing.T) {
	t.Parallel()

	mgr := content.NewManager()
	cache, err := bundlecache.New(bundlecache.Options{})
	if err != nil {
		t.Fatalf("bundlecache.New: %v", err)
	}
	bundles, err := bundlehttp.New(bundlehttp.Options{
		Content: mgr,
		URLs:    urlgen.New("/bundles"),
		Cache:   cache,
		Builder: combiner.New(combiner.Options{}),
	})
	if err != nil {
		t.Fatalf("bundlehttp.New: %v", err)
	}

	handler := httpserver.NewHandler(httpserver.Options{
		Logger:       log.Nop(),
		Readiness:    health.CheckFunc(func(context.Context) error { return mgr.ReadyErr() }),
		BundlePrefix: "/bundles",
		Bundles:      bundles,
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bundles/site-css/abc.css", http.NoBody))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d, want 503", rec.Code)
	}
}
