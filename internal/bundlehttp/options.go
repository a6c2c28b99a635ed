package bundlehttp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundlecache"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/catalog"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/content"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/log"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/urlgen"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/vary"
)

var ErrInvalidOptions = errors.New("bundlehttp: invalid options")

type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

// ArtifactCache is satisfied by *bundlecache.Cache.
type ArtifactCache interface {
	GetOrBuild(ctx context.Context, key bundlecache.Key, build bundlecache.BuildFunc) (*bundlecache.Artifact, bundlecache.Outcome, error)
}

// Builder is satisfied by *combiner.Engine.
type Builder interface {
	Build(ctx context.Context, fsys fs.FS, entry *catalog.Entry, res vary.Result) (*bundlecache.Artifact, error)
}

// VarianceMetrics counts requests rejected by a variance provider.
type VarianceMetrics interface {
	IncVarianceError(bundle string)
}

type Options struct {
	Logger  log.Logger
	Content SnapshotProvider
	URLs    *urlgen.Generator
	Cache   ArtifactCache
	Builder Builder
	Metrics VarianceMetrics

	// Cache-Control for URLs that fully identify the bytes served
	ImmutableCacheControl string // default: "public, max-age=31536000, immutable"
	// Cache-Control for URLs shared by several variants
	VariantCacheControl string // default: "private, no-cache"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.URLs == nil {
		o.URLs = urlgen.New("")
	}
	if o.ImmutableCacheControl == "" {
		o.ImmutableCacheControl = "public, max-age=31536000, immutable"
	}
	if o.VariantCacheControl == "" {
		o.VariantCacheControl = "private, no-cache"
	}
}

func (o *Options) validate() error {
	if o.Content == nil {
		return fmt.Errorf("%w: Content is nil", ErrInvalidOptions)
	}
	if o.Cache == nil {
		return fmt.Errorf("%w: Cache is nil", ErrInvalidOptions)
	}
	if o.Builder == nil {
		return fmt.Errorf("%w: Builder is nil", ErrInvalidOptions)
	}
	return nil
}
