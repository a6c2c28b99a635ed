// Package webassets embeds the seed content served until the first release
// is loaded.
package webassets

import (
	"embed"
	"io/fs"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
)

//go:embed seed
var embedded embed.FS

// SeedFS returns (fs, true) only if the seed carries a bundle manifest.
func SeedFS() (fs.FS, bool) {
	sub, err := fs.Sub(embedded, "seed")
	if err != nil {
		return nil, false
	}
	if _, err := fs.Stat(sub, bundle.ManifestFile); err != nil {
		return nil, false
	}
	return sub, true
}
