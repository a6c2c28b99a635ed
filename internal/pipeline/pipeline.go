package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/vary"
)

var (
	ErrUnknownFilter   = errors.New("pipeline: unknown filter")
	ErrUnknownMinifier = errors.New("pipeline: unknown minifier")
)

// Stage is what a filter sees for one resource of one bundle variant.
type Stage struct {
	Bundle   *bundle.Bundle
	Resource string
	Params   vary.Params
}

// Filter transforms a single resource before it is combined.
// Filters run in manifest order and must be safe for concurrent use.
type Filter interface {
	Name() string
	Apply(ctx context.Context, in []byte, st Stage) ([]byte, error)
}

// Minifier transforms the combined output of a bundle variant.
type Minifier interface {
	Name() string
	Minify(ctx context.Context, in []byte, t bundle.Type, params vary.Params) ([]byte, error)
}

// Fingerprinter is implemented by stages whose output depends on process
// configuration. The fingerprint changes whenever that output would.
type Fingerprinter interface {
	Fingerprint() string
}

// Stages resolves filter and minifier names used in the manifest.
type Stages struct {
	mu        sync.RWMutex
	filters   map[string]Filter
	minifiers map[string]Minifier
}

func NewStages() *Stages {
	return &Stages{
		filters:   make(map[string]Filter),
		minifiers: make(map[string]Minifier),
	}
}

// DefaultStages registers the built-in filters and minifiers.
// assetPrefix is where rewritten CSS url() references point.
func DefaultStages(assetPrefix string) *Stages {
	s := NewStages()
	s.RegisterFilter(NewCSSURLs(assetPrefix))
	s.RegisterFilter(Substitute{})
	s.RegisterFilter(Banner{})
	s.RegisterMinifier(NoMinify{})
	s.RegisterMinifier(Whitespace{})
	return s
}

func (s *Stages) RegisterFilter(f Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[f.Name()] = f
}

func (s *Stages) RegisterMinifier(m Minifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minifiers[m.Name()] = m
}

func (s *Stages) Filter(name string) (Filter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return f, nil
}

// Minifier resolves name, "" resolves to "none".
func (s *Stages) Minifier(name string) (Minifier, error) {
	if name == "" {
		name = NoMinifyName
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.minifiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMinifier, name)
	}
	return m, nil
}

// Filters resolves all names in order.
func (s *Stages) Filters(names []string) ([]Filter, error) {
	out := make([]Filter, 0, len(names))
	for _, n := range names {
		f, err := s.Filter(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Fingerprint combines the fingerprints of the named filters and minifier,
// or returns "" when none of them depends on process configuration.
func (s *Stages) Fingerprint(filters []Filter, m Minifier) string {
	var parts []string
	for _, f := range filters {
		if fp, ok := f.(Fingerprinter); ok {
			parts = append(parts, f.Name()+"="+fp.Fingerprint())
		}
	}
	if fp, ok := m.(Fingerprinter); ok {
		parts = append(parts, m.Name()+"="+fp.Fingerprint())
	}
	return strings.Join(parts, ";")
}

// Names lists registered filters and minifiers, sorted.
func (s *Stages) Names() (filters, minifiers []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for n := range s.filters {
		filters = append(filters, n)
	}
	for n := range s.minifiers {
		minifiers = append(minifiers, n)
	}
	sort.Strings(filters)
	sort.Strings(minifiers)
	return filters, minifiers
}
