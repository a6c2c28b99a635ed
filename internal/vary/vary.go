package vary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
)

// Context is a read-only view of request and session state.
// Providers only read from it.
type Context interface {
	Value(key string) (string, bool)
}

// MapContext is a Context backed by a plain map.
type MapContext map[string]string

func (m MapContext) Value(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Params are request-scoped values handed to the filters and minifiers
// that run once per variant.
type Params map[string]any

// String returns the value under key formatted as a string.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Clone returns a shallow copy so callers can't mutate a cached result.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Encode renders params as sorted k=v pairs for logs and banners.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		s, _ := p.String(k)
		parts = append(parts, k+"="+s)
	}
	return strings.Join(parts, ",")
}

// Result is the variance derived for one (context, bundle) pair.
type Result struct {
	// Key distinguishes cached variants of the same bundle, "" means no variance
	Key string
	// AppendKeyToURL is the provider policy for embedding Key in public URLs
	AppendKeyToURL bool
	// Params flow into the processing pipeline for this variant
	Params Params
}

// Provider derives cache variance for the single bundle it is registered with.
//
// Derive is called concurrently from many requests and must not mutate shared
// state or block on slow I/O. The same effective context must always produce
// the same Key.
type Provider interface {
	Derive(ctx Context, b *bundle.Bundle) (Result, error)

	// AppendKeyToURL is static per provider instance.
	AppendKeyToURL() bool
}
