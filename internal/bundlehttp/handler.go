package bundlehttp

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundlecache"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/catalog"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/content"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/urlgen"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/vary"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// CacheHeader reports how the artifact was obtained.
const CacheHeader = "X-Bundle-Cache"

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap, ok := h.opts.Content.Get()
	if !ok {
		h.serveUnavailable(w)
		return
	}

	ref, ok := h.opts.URLs.Parse(r.URL.Path)
	if !ok {
		h.serveError(w, http.StatusNotFound)
		return
	}
	entry, ok := snap.Catalog.Get(ref.Name)
	if !ok {
		h.serveError(w, http.StatusNotFound)
		return
	}
	b := entry.Bundle

	L := log.FromContextOr(r.Context(), h.opts.Logger).With("bundle", b.Name)
	ctx := log.WithContext(r.Context(), L)

	res, err := entry.Provider.Derive(vary.NewRequestView(r), b)
	if err != nil {
		var pe *vary.ProviderError
		if xerrors.As(err, &pe) {
			if h.opts.Metrics != nil {
				h.opts.Metrics.IncVarianceError(b.Name)
			}
			L.Debug(ctx, "bundle variance rejected request",
				"provider", pe.Provider,
				"reason", pe.Err,
			)
			h.serveError(w, http.StatusBadRequest)
			return
		}
		L.Error(ctx, err, "bundle variance failed")
		h.serveError(w, http.StatusInternalServerError)
		return
	}

	if !urlgen.Canonical(ref, b, res) {
		target := h.opts.URLs.URL(b, res)
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		return
	}

	art, outcome, err := h.artifact(ctx, snap, entry, res)
	if err != nil {
		L.Error(ctx, err, "bundle build failed",
			"version", b.Version,
			"vary_key", res.Key,
		)
		h.serveError(w, http.StatusInternalServerError)
		return
	}

	otelx.AnnotateBundle(ctx, b.Name, b.Version, res.Key, string(outcome))

	hdr := w.Header()
	hdr.Set("Content-Type", art.ContentType)
	hdr.Set("ETag", art.ETag)
	hdr.Set(CacheHeader, string(outcome))
	hdr.Set("Cache-Control", h.cacheControl(res))

	// ServeContent answers If-None-Match from the ETag set above
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(art.Body))
}

func (h *Handler) artifact(ctx context.Context, snap *content.Snapshot, entry *catalog.Entry, res vary.Result) (*bundlecache.Artifact, bundlecache.Outcome, error) {
	key := bundlecache.Key{Bundle: entry.Bundle.Name, Version: entry.Bundle.Version, Vary: res.Key}
	return h.opts.Cache.GetOrBuild(ctx, key, func(ctx context.Context) (*bundlecache.Artifact, error) {
		return h.opts.Builder.Build(ctx, snap.FS, entry, res)
	})
}

// cacheControl is immutable only when the URL alone identifies the variant.
func (h *Handler) cacheControl(res vary.Result) string {
	if res.Key == "" || urlgen.KeyInURL(res) != "" {
		return h.opts.ImmutableCacheControl
	}
	return h.opts.VariantCacheControl
}

func (h *Handler) serveUnavailable(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	h.serveError(w, http.StatusServiceUnavailable)
}

// error responses are never cached
func (h *Handler) serveError(w http.ResponseWriter, status int) {
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, http.StatusText(status), status)
}
