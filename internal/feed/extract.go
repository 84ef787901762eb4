package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// =============================================================================
// FULL-TEXT EXTRACTOR
// =============================================================================

// minArticleChars is the smallest extraction worth keeping. Below this
// the page probably rendered client-side and the fallback chain runs.
const minArticleChars = 500

// fetchBodyLimit caps page downloads.
const fetchBodyLimit = 1 << 20

// extractParallelism bounds concurrent extractions.
const extractParallelism = 4

// Extractor turns item URLs into readable article text. Strategy order:
// direct fetch with HTML reduction, the Apify actor for browser-rendered
// pages, and finally the stored feed summary or abstract.
type Extractor struct {
	client    *http.Client
	userAgent string
	apify     *ApifyClient
	allowed   []string
	blocked   []string
}

// NewExtractor builds the extractor; the Apify fallback activates when a
// token is configured.
func NewExtractor(cfg config.FeedsConfig, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var apify *ApifyClient
	if cfg.Apify.Token != "" {
		apify = NewApifyClient(cfg.Apify)
	}

	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		apify:     apify,
		allowed:   cfg.AllowedDomains,
		blocked:   cfg.BlockedDomains,
	}
}

// ExtractStats summarizes an extraction run.
type ExtractStats struct {
	Processed int
	Extracted int
	Unchanged int
	Failed    int
}

// ExtractItems extracts and stores documents for the given items, a few
// at a time. Unchanged extractions (same content hash) are not
// rewritten, so re-running is cheap. Failures are counted per item.
func (e *Extractor) ExtractItems(ctx context.Context, lib *library.Library, items []*library.Item) (*ExtractStats, error) {
	timer := logging.StartTimer(logging.CategoryExtract, "ExtractItems")
	defer timer.Stop()

	stats := &ExtractStats{}
	if len(items) == 0 {
		return stats, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractParallelism)

	for _, item := range items {
		item := item
		g.Go(func() error {
			text, method, err := e.Extract(gctx, item)

			mu.Lock()
			defer mu.Unlock()
			stats.Processed++
			if err != nil {
				stats.Failed++
				logging.Get(logging.CategoryExtract).Warn("extraction failed for item %s: %v", item.ID, err)
				return nil
			}

			hash := library.ContentHash(text)
			if same, err := lib.HasDocumentWithHash(item.ID, hash); err == nil && same {
				stats.Unchanged++
				logging.ExtractDebug("item %s unchanged, keeping existing document", item.ID)
				return nil
			}

			doc := &library.Document{ItemID: item.ID, Content: text, ExtractedWith: method}
			if err := lib.SaveDocument(doc); err != nil {
				stats.Failed++
				logging.Get(logging.CategoryExtract).Warn("failed to store document for item %s: %v", item.ID, err)
				return nil
			}
			stats.Extracted++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	logging.Extract("extraction run: %d processed, %d extracted, %d unchanged, %d failed",
		stats.Processed, stats.Extracted, stats.Unchanged, stats.Failed)
	return stats, nil
}

// Extract returns article text for an item and the method that produced
// it: readability, apify, or abstract.
func (e *Extractor) Extract(ctx context.Context, item *library.Item) (string, string, error) {
	timer := logging.StartTimer(logging.CategoryExtract, "Extract")
	defer timer.Stop()

	if item.URL != "" {
		if !e.domainAllowed(item.URL) {
			logging.ExtractDebug("domain not allowed, skipping direct fetch: %s", item.URL)
		} else {
			text, err := e.fetchArticle(ctx, item.URL)
			if err != nil {
				logging.Get(logging.CategoryExtract).Warn("direct fetch failed for %s: %v", item.URL, err)
			} else if len(text) >= minArticleChars {
				logging.Extract("extracted %d chars from %s (readability)", len(text), item.URL)
				return text, "readability", nil
			} else {
				logging.ExtractDebug("direct fetch of %s yielded only %d chars", item.URL, len(text))
			}
		}

		if e.apify != nil {
			text, err := e.apify.ScrapeText(ctx, item.URL)
			if err != nil {
				logging.Get(logging.CategoryExtract).Warn("apify fallback failed for %s: %v", item.URL, err)
			} else if len(text) >= minArticleChars {
				logging.Extract("extracted %d chars from %s (apify)", len(text), item.URL)
				return text, "apify", nil
			}
		}
	}

	if summary := strings.TrimSpace(item.Summary); summary != "" {
		logging.Extract("falling back to stored abstract for item %s", item.ID)
		return summary, "abstract", nil
	}

	return "", "", fmt.Errorf("no extractable content for item %s", item.ID)
}

// fetchArticle downloads a page and reduces it to article text.
func (e *Extractor) fetchArticle(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}

	return reduceArticle(doc), nil
}

// domainAllowed applies the block list first, then the allow list.
// An empty allow list permits everything not blocked.
func (e *Extractor) domainAllowed(pageURL string) bool {
	for _, blocked := range e.blocked {
		if strings.Contains(pageURL, blocked) {
			return false
		}
	}

	if len(e.allowed) == 0 {
		return true
	}
	for _, allowed := range e.allowed {
		if strings.Contains(pageURL, allowed) {
			return true
		}
	}
	return false
}

// =============================================================================
// HTML REDUCTION
// =============================================================================

// skipTags never contain article prose.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"nav": true, "header": true, "footer": true, "aside": true,
	"form": true, "button": true, "iframe": true, "svg": true,
}

// blockTags are the prose units collected as paragraphs.
var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"li": true, "blockquote": true, "pre": true,
}

// reduceArticle extracts readable text from a parsed page: pick the most
// article-like container, then collect its prose blocks in order.
func reduceArticle(doc *html.Node) string {
	root := findArticleRoot(doc)

	var paras []string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipTags[n.Data] {
				return
			}
			if blockTags[n.Data] {
				if text := collapseWhitespace(textContent(n)); text != "" {
					paras = append(paras, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(root)

	if len(paras) == 0 {
		return collapseWhitespace(textContent(root))
	}
	return strings.Join(paras, "\n\n")
}

// findArticleRoot picks the container to reduce: article, main, an
// explicit role=main, the paragraph-densest div or section, then body.
func findArticleRoot(doc *html.Node) *html.Node {
	if n := findElement(doc, "article"); n != nil {
		return n
	}
	if n := findElement(doc, "main"); n != nil {
		return n
	}
	if n := findByRole(doc, "main"); n != nil {
		return n
	}
	if n := densestBlock(doc); n != nil {
		return n
	}
	if n := findElement(doc, "body"); n != nil {
		return n
	}
	return doc
}

// findElement returns the first element with the given tag.
func findElement(doc *html.Node, tag string) *html.Node {
	var found *html.Node
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return found
}

// findByRole returns the first element with the given ARIA role.
func findByRole(doc *html.Node, role string) *html.Node {
	var found *html.Node
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key == "role" && attr.Val == role {
					found = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return found
}

// densestBlock finds the div or section with the most direct-paragraph
// text. Scoring direct children only keeps outer wrappers from winning
// just by containing everything.
func densestBlock(doc *html.Node) *html.Node {
	var best *html.Node
	bestScore := 0

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "div" || n.Data == "section") {
			score := 0
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.Data == "p" {
					score += len(textContent(c))
				}
			}
			if score > bestScore {
				bestScore = score
				best = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	if bestScore < 100 {
		return nil
	}
	return best
}

// textContent flattens the text nodes under n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		if node.Type == html.ElementNode && skipTags[node.Data] {
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return strings.TrimSpace(sb.String())
}
