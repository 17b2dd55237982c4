package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultHost is the origin used for URLs the engine synthesizes.
const DefaultHost = "www.instagram.com"

// NormalizeURL standardizes a URL so the queue can de-duplicate it.
// It lowercases the scheme and host, removes default ports, sorts query
// parameters, drops fragments, and ensures a trailing slash on the path.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// HashtagURL builds the explore page for a search term.
func HashtagURL(term string) string {
	tag := strings.TrimPrefix(strings.TrimSpace(term), "#")
	return fmt.Sprintf("https://%s/explore/tags/%s/", DefaultHost, url.PathEscape(tag))
}

// PostURL builds the canonical URL for a post shortcode on host.
func PostURL(host, shortcode string) string {
	if host == "" {
		host = DefaultHost
	}
	return fmt.Sprintf("https://%s/p/%s/", host, shortcode)
}

// PathSegments splits a URL path into its non-empty segments.
func PathSegments(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	parts := strings.Split(u.Path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
