package bundlecache

import (
	"strings"
	"time"
)

// Key addresses one cached bundle variant.
type Key struct {
	Bundle  string
	Version string
	// Vary is the sanitized variance key, "" for bundles without variance
	Vary string
}

// String renders bundle:<name>:<version>:<vary>. The no-variance key leaves
// the last segment empty, which no sanitized key can be.
func (k Key) String() string {
	var b strings.Builder
	b.Grow(len("bundle:") + len(k.Bundle) + len(k.Version) + len(k.Vary) + 2)
	b.WriteString("bundle:")
	b.WriteString(k.Bundle)
	b.WriteByte(':')
	b.WriteString(k.Version)
	b.WriteByte(':')
	b.WriteString(k.Vary)
	return b.String()
}

// Artifact is a built bundle variant. It is shared between requests and
// must be treated as read-only.
type Artifact struct {
	Bundle      string    `msgpack:"bundle"`
	Version     string    `msgpack:"version"`
	VaryKey     string    `msgpack:"vary_key"`
	ContentType string    `msgpack:"content_type"`
	Body        []byte    `msgpack:"body"`
	ETag        string    `msgpack:"etag"`
	BuiltAt     time.Time `msgpack:"built_at"`
}
