package bundle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// ManifestFile is the bundle definition file expected at the content root.
const ManifestFile = "bundles.json"

const (
	maxManifestSize  = 1 << 20
	maxResourceCount = 256
)

var (
	ErrInvalidManifest = errors.New("bundle: invalid manifest")
	ErrNoManifest      = errors.New("bundle: manifest not found")
)

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// Manifest is the decoded form of bundles.json.
type Manifest struct {
	Bundles []*Bundle `json:"bundles"`
}

// Load reads, validates and versions the bundle manifest from fsys.
// Bundles are returned sorted by name.
func Load(fsys fs.FS) ([]*Bundle, error) {
	f, err := fsys.Open(ManifestFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoManifest
		}
		return nil, xerrors.Wrapf(err, "open %s", ManifestFile)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxManifestSize+1))
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", ManifestFile)
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidManifest, ManifestFile, maxManifestSize)
	}

	m, err := Decode(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(m.Bundles))
	for i, b := range m.Bundles {
		if b == nil {
			return nil, fmt.Errorf("%w: bundles[%d] is null", ErrInvalidManifest, i)
		}
		if err := validate(fsys, b); err != nil {
			return nil, err
		}
		if seen[b.Name] {
			return nil, fmt.Errorf("%w: duplicate bundle name %q", ErrInvalidManifest, b.Name)
		}
		seen[b.Name] = true

		v, err := computeVersion(fsys, b)
		if err != nil {
			return nil, xerrors.Wrapf(err, "version bundle %q", b.Name)
		}
		b.Version = v
	}

	sort.Slice(m.Bundles, func(i, j int) bool { return m.Bundles[i].Name < m.Bundles[j].Name })
	return m.Bundles, nil
}

// Decode parses manifest JSON, rejecting unknown fields.
func Decode(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if len(m.Bundles) == 0 {
		return nil, fmt.Errorf("%w: no bundles defined", ErrInvalidManifest)
	}
	return &m, nil
}

func validate(fsys fs.FS, b *Bundle) error {
	if !nameRe.MatchString(b.Name) {
		return fmt.Errorf("%w: invalid bundle name %q", ErrInvalidManifest, b.Name)
	}
	if !b.Type.Valid() {
		return fmt.Errorf("%w: bundle %q has unknown type %q", ErrInvalidManifest, b.Name, b.Type)
	}
	if len(b.Resources) == 0 {
		return fmt.Errorf("%w: bundle %q has no resources", ErrInvalidManifest, b.Name)
	}
	if len(b.Resources) > maxResourceCount {
		return fmt.Errorf("%w: bundle %q has %d resources (max %d)", ErrInvalidManifest, b.Name, len(b.Resources), maxResourceCount)
	}
	for i, r := range b.Resources {
		p, ok := pathutil.ResourcePath(r.Path)
		if !ok {
			return fmt.Errorf("%w: bundle %q resource %d has unsafe path %q", ErrInvalidManifest, b.Name, i, r.Path)
		}
		if !b.Type.acceptsExt(p) {
			return fmt.Errorf("%w: bundle %q resource %q does not match type %s", ErrInvalidManifest, b.Name, r.Path, b.Type)
		}
		info, err := fs.Stat(fsys, p)
		if err != nil {
			return fmt.Errorf("%w: bundle %q resource %q: %v", ErrInvalidManifest, b.Name, r.Path, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: bundle %q resource %q is not a regular file", ErrInvalidManifest, b.Name, r.Path)
		}
		b.Resources[i].Path = p
	}
	return nil
}

// computeVersion hashes everything that shapes the built output: the type,
// each resource path and body in order, the filter chain, the minifier and
// the variance provider with its options.
func computeVersion(fsys fs.FS, b *Bundle) (string, error) {
	d := xxhash.New()
	field := func(s string) { _, _ = d.WriteString(s + "\x00") }

	field(string(b.Type))
	for _, r := range b.Resources {
		data, err := fs.ReadFile(fsys, r.Path)
		if err != nil {
			return "", err
		}
		field("res:" + r.Path)
		_, _ = d.Write(data)
		field("")
	}
	for _, f := range b.Filters {
		field("filter:" + f)
	}
	field("minifier:" + b.Minifier)
	field("vary:" + b.Vary.Provider)
	keys := make([]string, 0, len(b.Vary.Options))
	for k := range b.Vary.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field("opt:" + k + "=" + b.Vary.Options[k])
	}
	return fmt.Sprintf("%016x", d.Sum64()), nil
}

// SaltVersion mixes a process-level stage fingerprint into a version, so a
// deployment that changes how stages behave also changes every URL.
func SaltVersion(version, salt string) string {
	if salt == "" {
		return version
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(version+"\x00"+salt))
}
