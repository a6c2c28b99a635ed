package content

import (
	"io/fs"
	"time"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/catalog"
)

// Snapshot is one immutable generation of content. Catalog is set by Prepare
// and its providers live exactly as long as the snapshot.
type Snapshot struct {
	FS       fs.FS
	Meta     Meta
	Catalog  *catalog.Catalog
	LoadedAt time.Time
}
