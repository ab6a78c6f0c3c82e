package source

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"

	"stocknotify/internal/watch"
)

// parseFeed extracts items from an RSS/Atom payload. A payload that is not
// a feed, or an item without a link or title, contributes nothing; partial
// feeds are fine.
func parseFeed(body []byte) []watch.Item {
	// gofeed.Parser keeps per-parse state, so each call gets its own.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil || feed == nil {
		return nil
	}

	items := make([]watch.Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if fi == nil {
			continue
		}
		link := strings.TrimSpace(fi.Link)
		title := strings.TrimSpace(fi.Title)
		if link == "" || title == "" {
			continue
		}
		id := strings.TrimSpace(fi.GUID)
		if id == "" {
			id = link
		}
		it := watch.Item{ID: id, Title: title, URL: link}
		if fi.PublishedParsed != nil {
			it.PublishedAt = *fi.PublishedParsed
		} else if fi.UpdatedParsed != nil {
			it.PublishedAt = *fi.UpdatedParsed
		}
		items = append(items, it)
	}
	return items
}
