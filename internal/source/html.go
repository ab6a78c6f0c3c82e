package source

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"stocknotify/internal/watch"
)

// Press listings usually render newest-first inside a list or article
// markup; probe the selectors in order and take the first usable anchor.
var listingSelectors = []string{
	"article a[href]",
	"ul.news a[href]",
	"li a[href]",
}

// parseHTMLListing extracts the top entry of an HTML press listing.
// The page URL anchors relative links and doubles as the item id base.
func parseHTMLListing(body []byte, pageURL string) *watch.Item {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	for _, sel := range listingSelectors {
		var found *watch.Item
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			title := strings.TrimSpace(s.Text())
			abs := resolveHref(base, href)
			if title == "" || abs == "" {
				return true
			}
			found = &watch.Item{ID: abs, Title: title, URL: abs}
			return false
		})
		if found != nil {
			return found
		}
	}
	return nil
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
