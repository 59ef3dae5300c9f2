package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

const maxReadableSuffix = 40

// FileNameForKey derives the stored name for a cache key. The name is a hash of
// the full key followed by a sanitised copy of the key's last path segment, so
// it is deterministic, filesystem safe, and still recognisable when listing a
// cache directory.
func FileNameForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:16])
	if suffix := readableSuffix(key); suffix != "" {
		name += "_" + suffix
	}
	return name
}

func readableSuffix(key string) string {
	base := key
	if u, err := url.Parse(key); err == nil && u.Path != "" {
		base = u.Path
	}
	base = path.Base(base)

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('+')
		}
		if b.Len() >= maxReadableSuffix {
			break
		}
	}
	return strings.Trim(b.String(), ".+")
}
