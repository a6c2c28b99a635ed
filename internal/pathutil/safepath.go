// Package pathutil validates slash separated paths taken from content
// manifests before they are opened on an fs.FS.
package pathutil

import (
	"io/fs"
	"strings"
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// ResourcePath normalizes a manifest resource path to an fs.FS name.
// A single leading slash is dropped. Backslashes, dot segments, empty
// segments and NUL bytes are rejected.
func ResourcePath(p string) (string, bool) {
	p = strings.TrimPrefix(p, "/")
	if p == "" || strings.ContainsAny(p, "\\\x00") || HasDotSegments(p) {
		return "", false
	}
	if !fs.ValidPath(p) {
		return "", false
	}
	return p, true
}
