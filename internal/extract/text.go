package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gramcrawl/internal/page"
)

// firstText returns the cleaned text of the first element, across selectors
// in order, whose text is non-empty.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		var out string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = page.Clean(s.Text())
			return out == ""
		})
		if out != "" {
			return out
		}
	}
	return ""
}

// firstAttr returns the first non-empty attribute value across selectors.
func firstAttr(doc *goquery.Document, attr string, selectors ...string) string {
	for _, sel := range selectors {
		var out string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr(attr)
			out = strings.TrimSpace(v)
			return out == ""
		})
		if out != "" {
			return out
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	return firstAttr(doc, "content", selectors...)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// lastSegment returns the final non-empty path segment of rawURL.
func lastSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			seg, err := url.PathUnescape(parts[i])
			if err != nil {
				return parts[i]
			}
			return seg
		}
	}
	return ""
}

// unwrapRedirect strips the platform's outbound link shim.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasPrefix(u.Host, "l.") {
		if target := u.Query().Get("u"); target != "" {
			return target
		}
	}
	return href
}
