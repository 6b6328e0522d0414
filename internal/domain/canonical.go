package domain

import (
	"net/url"
	"strings"
)

// Canonicalize reduces a URL to host+path, the key snaps are aggregated under.
//
// Scheme, query, fragment and trailing slashes are dropped so that
// http://a.com/x/ and https://a.com/x?ref=1 map to the same key "a.com/x".
// The host is lowercased.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", ErrInvalidURL
	}

	return strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/"), nil
}
