package content

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// LoadDir snapshots a local content directory.
func LoadDir(dir string) (*Snapshot, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "stat content dir %s", dir)
	}
	if !info.IsDir() {
		return nil, xerrors.Newf("content dir %s is not a directory", dir)
	}
	return localSnapshot(os.DirFS(dir), SourceDisk)
}

// SeedSnapshot wraps the embedded seed content.
func SeedSnapshot(fsys fs.FS) (*Snapshot, error) {
	if fsys == nil {
		return nil, xerrors.New("seed filesystem is nil")
	}
	return localSnapshot(fsys, SourceSeed)
}

func localSnapshot(fsys fs.FS, src Source) (*Snapshot, error) {
	sum, err := TreeHash(fsys)
	if err != nil {
		return nil, xerrors.Wrapf(err, "hash %s content", src)
	}
	now := time.Now().UTC()
	return &Snapshot{
		FS: fsys,
		Meta: Meta{
			SHA256:     sum,
			Source:     src,
			VerifiedAt: now,
		},
		LoadedAt: now,
	}, nil
}

// TreeHash is a SHA-256 over every regular file path and body in walk order.
func TreeHash(fsys fs.FS) (string, error) {
	h := sha256.New()
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		f, err := fsys.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, _ = io.WriteString(h, p+"\x00")
		if _, err := io.Copy(h, io.LimitReader(f, maxSingleFile)); err != nil {
			return err
		}
		_, _ = h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
