package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
)

// summaryMaxChars bounds stored summaries; some feeds ship whole articles
// in the description field.
const summaryMaxChars = 1500

// fetchRSS pulls one RSS/Atom feed and normalizes entries to items.
func (f *Fetcher) fetchRSS(ctx context.Context, source config.FeedSource) ([]*library.Item, error) {
	parser := gofeed.NewParser()
	parser.UserAgent = f.cfg.UserAgent
	parser.Client = &http.Client{Timeout: f.timeout}

	parsed, err := parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	max := f.maxItems()
	items := make([]*library.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if len(items) >= max {
			break
		}

		item := normalizeEntry(entry, source)
		if item == nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// normalizeEntry converts a feed entry to a library item. Entries with
// neither a link nor a GUID have no identity and are dropped.
func normalizeEntry(entry *gofeed.Item, source config.FeedSource) *library.Item {
	title := strings.TrimSpace(entry.Title)
	if title == "" {
		return nil
	}

	link := strings.TrimSpace(entry.Link)
	guid := strings.TrimSpace(entry.GUID)
	if link == "" && strings.HasPrefix(guid, "http") {
		// Many feeds publish the permalink as the GUID
		link = guid
	}
	if link == "" && guid == "" {
		return nil
	}

	item := &library.Item{
		Source:     source.Name,
		Kind:       "rss",
		ExternalID: guid,
		URL:        link,
		Title:      title,
		Summary:    truncate(stripTags(firstNonEmpty(entry.Description, entry.Content)), summaryMaxChars),
		Tags:       source.Tags,
	}

	if entry.PublishedParsed != nil {
		item.Published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		item.Published = *entry.UpdatedParsed
	}

	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			item.Authors = append(item.Authors, a.Name)
		}
	}

	if len(entry.Categories) > 0 {
		item.Metadata = map[string]interface{}{"categories": entry.Categories}
	}
	return item
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// stripTags reduces feed HTML to plain text with collapsed whitespace.
func stripTags(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return collapseWhitespace(s)
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(s)
	}

	var b strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return collapseWhitespace(b.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
