package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

// HashEqual performs constant-time comparison of two hex-encoded hashes.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex computes the SHA-256 hash of data as lowercase hex.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ParseSHA256 normalizes a published digest. Surrounding whitespace, case
// and an optional "sha256:" prefix are accepted.
func ParseSHA256(v string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(v))
	d = strings.TrimPrefix(d, "sha256:")
	if d == "" {
		return "", xerrors.New("digest is empty")
	}
	if len(d) != sha256.Size*2 {
		return "", xerrors.Newf("digest %q is not a sha256 digest", d)
	}
	if _, err := hex.DecodeString(d); err != nil {
		return "", xerrors.Newf("digest %q is not hex", d)
	}
	return d, nil
}
