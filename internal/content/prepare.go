package content

import (
	"errors"
	"io/fs"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/catalog"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// Compiler turns a content filesystem into a bundle catalog.
type Compiler func(fsys fs.FS) (*catalog.Catalog, error)

// PrepareOptions controls which checks Prepare performs.
type PrepareOptions struct {
	// MinFiles rejects content with fewer than this many files.
	// 0 disables the check.
	MinFiles int

	// RequireRelease fails preparation if release.json is missing
	RequireRelease bool

	// Compile builds the catalog, catalog.Compile with defaults when nil
	Compile Compiler
}

// Prepare checks a snapshot before it is swapped into the Manager and
// attaches its compiled catalog and release info. A snapshot that fails
// here must never be served.
func Prepare(snap *Snapshot, opts PrepareOptions) error {
	if snap == nil {
		return xerrors.New("prepare: snapshot is nil")
	}
	if snap.FS == nil {
		return xerrors.New("prepare: snapshot has nil filesystem")
	}

	if opts.MinFiles > 0 {
		count, err := countFiles(snap.FS)
		if err != nil {
			return xerrors.Wrap(err, "prepare: counting files")
		}
		if count < opts.MinFiles {
			return xerrors.Newf("prepare: content has %d files, minimum is %d", count, opts.MinFiles)
		}
	}

	rel, err := LoadRelease(snap.FS)
	switch {
	case err == nil:
		snap.Meta.Release = rel
		if snap.Meta.Version == "" {
			snap.Meta.Version = rel.Version
		}
	case errors.Is(err, ErrNoRelease) && !opts.RequireRelease:
	default:
		return xerrors.Wrap(err, "prepare")
	}

	compile := opts.Compile
	if compile == nil {
		compile = func(fsys fs.FS) (*catalog.Catalog, error) {
			return catalog.Compile(fsys, catalog.Options{})
		}
	}
	cat, err := compile(snap.FS)
	if err != nil {
		return xerrors.Wrapf(err, "prepare: compile %s", bundle.ManifestFile)
	}
	snap.Catalog = cat
	return nil
}

// countFiles walks the filesystem and returns the total file count
// (not counting directories).
func countFiles(fsys fs.FS) (int, error) {
	count := 0
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}
