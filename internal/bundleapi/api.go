// Package bundleapi exposes the active bundle catalog as JSON so pages and
// tooling can look up the URL of a bundle for the current visitor.
package bundleapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/catalog"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/content"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/urlgen"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/vary"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// SnapshotProvider defines the interface for getting content snapshots
type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

// API implements the bundle catalog endpoints
type API struct {
	content SnapshotProvider
	urls    *urlgen.Generator
	logger  log.Logger
	now     func() time.Time
}

func NewAPI(content SnapshotProvider, urls *urlgen.Generator, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if urls == nil {
		urls = urlgen.New("")
	}
	return &API{
		content: content,
		urls:    urls,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes attaches the catalog endpoints to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpmw.Scope("bundleapi"))
		r.Get("/api/bundles", api.HandleList)
		r.Get("/api/bundles/{name}", api.HandleBundle)
		r.Get("/api/content", api.HandleContent)
	})
}

type BundleSummary struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Version      string   `json:"version"`
	Resources    []string `json:"resources"`
	Filters      []string `json:"filters,omitempty"`
	Minifier     string   `json:"minifier"`
	VaryProvider string   `json:"vary_provider"`
	AppendKey    bool     `json:"append_key"`
}

type ListResponse struct {
	Bundles []BundleSummary `json:"bundles"`
	Content string          `json:"content_hash,omitempty"`
}

// BundleResponse describes a bundle as seen by the requesting client.
type BundleResponse struct {
	BundleSummary
	URL     string            `json:"url"`
	VaryKey string            `json:"vary_key,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

type ContentResponse struct {
	Source     content.Source `json:"source"`
	Version    string         `json:"version,omitempty"`
	Hash       string         `json:"hash,omitempty"`
	Signed     bool           `json:"signed"`
	Commit     string         `json:"commit,omitempty"`
	Bundles    int            `json:"bundles"`
	LoadedAt   time.Time      `json:"loaded_at"`
	ServerTime time.Time      `json:"server_time"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Bundle string `json:"bundle,omitempty"`
	Field  string `json:"field,omitempty"`
}

func summarize(e *catalog.Entry) BundleSummary {
	b := e.Bundle
	return BundleSummary{
		Name:         b.Name,
		Type:         string(b.Type),
		Version:      b.Version,
		Resources:    b.ResourcePaths(),
		Filters:      b.Filters,
		Minifier:     e.Minifier.Name(),
		VaryProvider: e.Provider.Name(),
		AppendKey:    e.Provider.AppendKeyToURL(),
	}
}

// HandleList serves every bundle, sorted by name
func (api *API) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, ok := api.content.Get()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "no content loaded"})
		return
	}

	resp := ListResponse{
		Bundles: make([]BundleSummary, 0, snap.Catalog.Len()),
		Content: snap.Meta.SHA256,
	}
	for _, name := range snap.Catalog.Names() {
		e, _ := snap.Catalog.Get(name)
		resp.Bundles = append(resp.Bundles, summarize(e))
	}
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

// HandleBundle derives the variance for this request and returns the URL
// the client should load.
func (api *API) HandleBundle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, ok := api.content.Get()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "no content loaded"})
		return
	}

	name := chi.URLParam(r, "name")
	e, ok := snap.Catalog.Get(name)
	if !ok {
		api.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "unknown bundle", Bundle: name})
		return
	}

	res, err := e.Provider.Derive(vary.NewRequestView(r), e.Bundle)
	if err != nil {
		var pe *vary.ProviderError
		if xerrors.As(err, &pe) {
			api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
				Error:  pe.Err.Error(),
				Bundle: name,
				Field:  pe.Field,
			})
			return
		}
		api.logger.Error(ctx, err, "bundle variance failed", "bundle", name)
		api.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "internal error", Bundle: name})
		return
	}

	resp := BundleResponse{
		BundleSummary: summarize(e),
		URL:           api.urls.URL(e.Bundle, res),
		VaryKey:       res.Key,
	}
	if len(res.Params) > 0 {
		resp.Params = make(map[string]string, len(res.Params))
		for k := range res.Params {
			resp.Params[k], _ = res.Params.String(k)
		}
	}
	// the answer depends on request state, never share it
	w.Header().Set("Vary", "*")
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

// HandleContent serves the identity of the active content release
func (api *API) HandleContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, ok := api.content.Get()
	if !ok {
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "no content loaded"})
		return
	}

	resp := ContentResponse{
		Source:     snap.Meta.Source,
		Version:    snap.Meta.Version,
		Hash:       snap.Meta.SHA256,
		Signed:     snap.Meta.Signed,
		Bundles:    snap.Catalog.Len(),
		LoadedAt:   snap.LoadedAt.UTC().Truncate(time.Second),
		ServerTime: api.now().UTC().Truncate(time.Second),
	}
	if rel := snap.Meta.Release; rel != nil {
		resp.Commit = rel.Commit
	}
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
