package fetcher

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL turns an image reference found in page markup into an absolute
// URL suitable as a cache key. Relative references resolve against base and
// literal spaces are escaped.
func ResolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty url reference")
	}
	ref = strings.ReplaceAll(ref, " ", "%20")

	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	if r.IsAbs() || base == "" {
		return r.String(), nil
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}
