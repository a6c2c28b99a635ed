package bundle

import (
	"path"
	"strings"
)

// Type is the kind of resources a bundle combines.
type Type string

const (
	TypeCSS Type = "css"
	TypeJS  Type = "js"
)

// ContentType returns the response Content-Type for the bundle type.
func (t Type) ContentType() string {
	switch t {
	case TypeCSS:
		return "text/css; charset=utf-8"
	case TypeJS:
		return "text/javascript; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Ext returns the file extension used for bundle URLs and resource checks.
func (t Type) Ext() string {
	switch t {
	case TypeCSS:
		return ".css"
	case TypeJS:
		return ".js"
	default:
		return ""
	}
}

// Valid reports whether t is a known bundle type.
func (t Type) Valid() bool {
	return t == TypeCSS || t == TypeJS
}

// acceptsExt reports whether a resource with the given name can be part of a bundle of type t.
func (t Type) acceptsExt(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	switch t {
	case TypeCSS:
		return ext == ".css"
	case TypeJS:
		return ext == ".js" || ext == ".mjs"
	default:
		return false
	}
}

// Resource is a single source file referenced by a bundle.
type Resource struct {
	// slash separated path relative to the content root
	Path string `json:"path"`
}

// ParamsFilter is the filter that writes variance params into bundle output.
const ParamsFilter = "params"

// HasFilter reports whether the bundle's filter chain includes name.
func (b *Bundle) HasFilter(name string) bool {
	for _, f := range b.Filters {
		if f == name {
			return true
		}
	}
	return false
}

// VarySpec names the cache variance provider for a bundle and its options.
type VarySpec struct {
	Provider string            `json:"provider,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

// Bundle is a named, ordered set of resources combined and served as one unit.
// Bundles are immutable once loaded.
type Bundle struct {
	Name      string     `json:"name"`
	Type      Type       `json:"type"`
	Resources []Resource `json:"resources"`
	Filters   []string   `json:"filters,omitempty"`
	Minifier  string     `json:"minifier,omitempty"`
	Vary      VarySpec   `json:"vary,omitempty"`

	// Version is derived from resources, stages and vary spec when the
	// manifest is loaded, and salted with stage fingerprints at compile.
	Version string `json:"-"`
}

// ResourcePaths returns the resource paths in bundle order.
func (b *Bundle) ResourcePaths() []string {
	out := make([]string, len(b.Resources))
	for i, r := range b.Resources {
		out[i] = r.Path
	}
	return out
}

// VaryProvider returns the configured provider name, "none" when unset.
func (b *Bundle) VaryProvider() string {
	if b.Vary.Provider == "" {
		return "none"
	}
	return b.Vary.Provider
}
