package content

import (
	"encoding/json"
	"errors"
	"io/fs"
	"time"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// ReleaseFile is the optional release descriptor at the content root.
const ReleaseFile = "release.json"

var ErrNoRelease = errors.New("content: release.json not found")

// Release describes how a content release was produced.
type Release struct {
	Version    string    `json:"version"`
	Commit     string    `json:"commit,omitempty"`
	Repository string    `json:"repository,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// LoadRelease reads release.json from fsys.
func LoadRelease(fsys fs.FS) (*Release, error) {
	data, err := fs.ReadFile(fsys, ReleaseFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoRelease
		}
		return nil, xerrors.Wrapf(err, "read %s", ReleaseFile)
	}

	var r Release
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, xerrors.Wrapf(err, "parse %s", ReleaseFile)
	}
	if r.Version == "" {
		return nil, xerrors.Newf("%s has no version", ReleaseFile)
	}
	return &r, nil
}
