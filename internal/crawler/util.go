package crawler

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var invalidKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SafeKey turns an arbitrary string into an artifact-key fragment.
func SafeKey(raw string) string {
	key := strings.Trim(invalidKeyChars.ReplaceAllString(raw, "_"), "_")
	if key == "" {
		return hashURL(raw)[:12]
	}
	return key
}

// URLSlug derives a readable, collision-resistant key from a URL: its last
// path segment followed by a short digest of the whole URL.
func URLSlug(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return hashURL(raw)[:16]
	}
	p := strings.Trim(u.EscapedPath(), "/")
	if p == "" {
		p = "root"
	}
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		p = p[idx+1:]
	}
	return fmt.Sprintf("%s_%s", SafeKey(p), hashURL(raw)[:8])
}

func hashURL(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
