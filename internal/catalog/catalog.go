// Package catalog compiles the bundle manifest of a content snapshot into the
// immutable set of bundles the server answers for, each paired with its own
// variance provider and processing stages.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/pipeline"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/vary"
)

var ErrNotFound = errors.New("catalog: bundle not found")

// Entry is one compiled bundle.
type Entry struct {
	Bundle   *bundle.Bundle
	Provider *vary.Bound
	Filters  []pipeline.Filter
	Minifier pipeline.Minifier
}

// Catalog is immutable after Compile and safe for concurrent reads.
type Catalog struct {
	entries map[string]*Entry
	names   []string
}

type Options struct {
	Providers *vary.Registry
	Stages    *pipeline.Stages
}

func (o *Options) defaults() {
	if o.Providers == nil {
		o.Providers = vary.DefaultRegistry()
	}
	if o.Stages == nil {
		o.Stages = pipeline.DefaultStages("")
	}
}

// Compile loads the manifest from fsys and resolves every bundle's provider,
// filters and minifier. One provider instance is created per bundle.
func Compile(fsys fs.FS, opts Options) (*Catalog, error) {
	opts.defaults()

	bundles, err := bundle.Load(fsys)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		entries: make(map[string]*Entry, len(bundles)),
		names:   make([]string, 0, len(bundles)),
	}
	for _, b := range bundles {
		e, err := compileOne(b, opts)
		if err != nil {
			return nil, err
		}
		c.entries[b.Name] = e
		c.names = append(c.names, b.Name)
	}
	return c, nil
}

func compileOne(b *bundle.Bundle, opts Options) (*Entry, error) {
	p, err := opts.Providers.New(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bundle.ErrInvalidManifest, err)
	}
	filters, err := opts.Stages.Filters(b.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: bundle %q: %w", bundle.ErrInvalidManifest, b.Name, err)
	}
	m, err := opts.Stages.Minifier(b.Minifier)
	if err != nil {
		return nil, fmt.Errorf("%w: bundle %q: %w", bundle.ErrInvalidManifest, b.Name, err)
	}
	// url() rewriting follows the asset prefix, so it is part of the version
	b.Version = bundle.SaltVersion(b.Version, opts.Stages.Fingerprint(filters, m))
	return &Entry{Bundle: b, Provider: p, Filters: filters, Minifier: m}, nil
}

func (c *Catalog) Get(name string) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.entries[name]
	return e, ok
}

// Names returns bundle names sorted by name. The slice must not be modified.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return c.names
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Provider returns the variance provider bound to the named bundle.
func (c *Catalog) Provider(name string) (*vary.Bound, error) {
	e, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e.Provider, nil
}
