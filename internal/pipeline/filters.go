package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
)

// CSSURLs rewrites relative url() references so they keep working once the
// stylesheet is served from the bundle URL instead of its own directory.
type CSSURLs struct {
	prefix string
}

var cssURLRe = regexp.MustCompile(`url\(\s*(['"]?)([^'")]*?)(['"]?)\s*\)`)

func NewCSSURLs(assetPrefix string) CSSURLs {
	p := "/" + strings.Trim(assetPrefix, "/")
	if p == "/" {
		p = ""
	}
	return CSSURLs{prefix: p}
}

func (CSSURLs) Name() string { return "css-urls" }

// Fingerprint is the asset prefix rewritten urls point under.
func (f CSSURLs) Fingerprint() string { return "prefix:" + f.prefix }

func (f CSSURLs) Apply(_ context.Context, in []byte, st Stage) ([]byte, error) {
	if st.Bundle == nil || st.Bundle.Type != bundle.TypeCSS {
		return in, nil
	}
	dir := path.Dir(st.Resource)
	return cssURLRe.ReplaceAllFunc(in, func(m []byte) []byte {
		sub := cssURLRe.FindSubmatch(m)
		ref := string(sub[2])
		if !isRelativeRef(ref) {
			return m
		}
		// rooted at "/" so ".." can never climb out of the asset prefix
		resolved := f.prefix + path.Join("/", dir, ref)
		if strings.HasSuffix(ref, "/") && !strings.HasSuffix(resolved, "/") {
			resolved += "/"
		}
		return []byte("url(" + string(sub[1]) + resolved + string(sub[3]) + ")")
	}), nil
}

func isRelativeRef(ref string) bool {
	switch {
	case ref == "":
		return false
	case strings.HasPrefix(ref, "/"), strings.HasPrefix(ref, "#"):
		return false
	case strings.HasPrefix(strings.ToLower(ref), "data:"):
		return false
	case strings.Contains(ref, "://"):
		return false
	}
	return true
}

// Substitute replaces {{name}} tokens with variance params.
// Tokens without a matching param are left as they are.
type Substitute struct{}

var tokenRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

func (Substitute) Name() string { return bundle.ParamsFilter }

func (Substitute) Apply(_ context.Context, in []byte, st Stage) ([]byte, error) {
	if len(st.Params) == 0 || !bytes.Contains(in, []byte("{{")) {
		return in, nil
	}
	return tokenRe.ReplaceAllFunc(in, func(m []byte) []byte {
		name := string(tokenRe.FindSubmatch(m)[1])
		v, ok := st.Params.String(name)
		if !ok {
			return m
		}
		return []byte(v)
	}), nil
}

// Banner prefixes each resource with a preserved comment naming its origin.
type Banner struct{}

func (Banner) Name() string { return "banner" }

func (Banner) Apply(_ context.Context, in []byte, st Stage) ([]byte, error) {
	if st.Bundle == nil {
		return in, nil
	}
	line := fmt.Sprintf("%s/%s %s", st.Bundle.Name, st.Resource, st.Bundle.Version)
	if p := st.Params.Encode(); p != "" {
		line += " [" + p + "]"
	}
	line = strings.ReplaceAll(line, "*/", "* /")

	out := make([]byte, 0, len(in)+len(line)+8)
	out = append(out, "/*! "...)
	out = append(out, line...)
	out = append(out, " */\n"...)
	return append(out, in...), nil
}
