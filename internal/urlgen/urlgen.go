// Package urlgen builds and parses public bundle URLs.
//
// Layout: <prefix>/<name>/<version>[/<key>].<ext>
//
// The variance key only appears when the provider's policy allows it; without
// it the URL is the same for every variant of a bundle version.
package urlgen

import (
	"strings"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/vary"
)

const DefaultPrefix = "/bundles"

type Generator struct {
	prefix string
}

// New returns a Generator rooted at prefix, DefaultPrefix when empty.
func New(prefix string) *Generator {
	p := "/" + strings.Trim(prefix, "/")
	if p == "/" {
		p = DefaultPrefix
	}
	return &Generator{prefix: p}
}

// Prefix is the normalized mount path, without trailing slash.
func (g *Generator) Prefix() string { return g.prefix }

// URL returns the public path for bundle b under variance res.
func (g *Generator) URL(b *bundle.Bundle, res vary.Result) string {
	return g.build(b.Name, b.Version, KeyInURL(res), b.Type.Ext())
}

// KeyInURL is the key that belongs in the URL for res, "" when none.
func KeyInURL(res vary.Result) string {
	if !res.AppendKeyToURL {
		return ""
	}
	return res.Key
}

func (g *Generator) build(name, version, key, ext string) string {
	var sb strings.Builder
	sb.Grow(len(g.prefix) + len(name) + len(version) + len(key) + len(ext) + 3)
	sb.WriteString(g.prefix)
	sb.WriteByte('/')
	sb.WriteString(name)
	sb.WriteByte('/')
	sb.WriteString(version)
	if key != "" {
		sb.WriteByte('/')
		sb.WriteString(key)
	}
	sb.WriteString(ext)
	return sb.String()
}

// Ref is a parsed bundle URL.
type Ref struct {
	Name    string
	Version string
	Key     string
	Ext     string
}

// Parse splits a request path into its bundle reference.
// It reports false for paths outside the prefix or with the wrong shape.
func (g *Generator) Parse(path string) (Ref, bool) {
	rest, ok := strings.CutPrefix(path, g.prefix+"/")
	if !ok {
		return Ref{}, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Ref{}, false
	}

	last := parts[len(parts)-1]
	dot := strings.LastIndexByte(last, '.')
	if dot <= 0 {
		return Ref{}, false
	}
	ext := last[dot:]
	if ext != ".css" && ext != ".js" {
		return Ref{}, false
	}
	parts[len(parts)-1] = last[:dot]

	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return Ref{}, false
		}
	}

	r := Ref{Name: parts[0], Version: parts[1], Ext: ext}
	if len(parts) == 3 {
		r.Key = parts[2]
	}
	return r, true
}

// Canonical reports whether ref addresses b's current version and the key
// expected for res, with the extension of b's type.
func Canonical(ref Ref, b *bundle.Bundle, res vary.Result) bool {
	return ref.Version == b.Version && ref.Key == KeyInURL(res) && ref.Ext == b.Type.Ext()
}
