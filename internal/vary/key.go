package vary

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MaxKeyLen bounds a variance key so it stays usable as a URL segment and cache key part.
const MaxKeyLen = 64

// SanitizeKey maps a provider key to a URL and cache safe token.
//
// Keys made only of [a-z0-9._=-] and no longer than MaxKeyLen are returned
// unchanged. Anything else is reduced to its safe characters and suffixed
// with a hash of the original, so two distinct keys never share a token.
func SanitizeKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= MaxKeyLen && isCleanKey(key) {
		return key
	}

	var b strings.Builder
	b.Grow(len(key))
	var prev byte
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if !isKeyChar(c) {
			c = '-'
		}
		if c == '-' && prev == '-' {
			continue
		}
		b.WriteByte(c)
		prev = c
	}

	const hashLen = 16
	safe := strings.TrimRight(strings.TrimLeft(b.String(), "-."), "-")
	if max := MaxKeyLen - hashLen - 1; len(safe) > max {
		safe = safe[:max]
	}
	sum := fmt.Sprintf("%016x", xxhash.Sum64String(key))
	if safe == "" {
		return sum
	}
	return safe + "-" + sum
}

func isCleanKey(s string) bool {
	// leading dots would read as dot segments in a URL path
	if s[0] == '.' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			return false
		}
		if !isKeyChar(c) {
			return false
		}
	}
	return true
}

func isKeyChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '='
}
