package feed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// =============================================================================
// NCBI E-UTILITIES CLIENT
// =============================================================================

// NCBI allows 3 requests/second without an API key and 10 with one.
const (
	pubmedMinInterval      = 334 * time.Millisecond
	pubmedMinIntervalKeyed = 100 * time.Millisecond
)

// PubMedClient talks to the NCBI E-utilities: esearch resolves a query
// to PMIDs, efetch returns the article records.
type PubMedClient struct {
	baseURL string
	apiKey  string
	tool    string
	client  *http.Client

	// Rate limiting (NCBI bans clients that exceed their tier)
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration

	// retryBackoffBase is overridable so retry tests run fast
	retryBackoffBase time.Duration
}

// NewPubMedClient creates a client. An API key raises the rate tier.
func NewPubMedClient(apiKey string, timeout time.Duration) *PubMedClient {
	minInterval := pubmedMinInterval
	if apiKey != "" {
		minInterval = pubmedMinIntervalKeyed
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &PubMedClient{
		baseURL:          "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		apiKey:           apiKey,
		tool:             "pulsepress",
		client:           &http.Client{Timeout: timeout},
		minInterval:      minInterval,
		retryBackoffBase: time.Second,
	}
}

// rateLimit enforces the minimum interval between requests.
func (c *PubMedClient) rateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
}

// get performs one E-utilities call with rate limiting and 429 retries.
func (c *PubMedClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	params.Set("db", "pubmed")
	params.Set("tool", c.tool)
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	requestURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * c.retryBackoffBase)
		}
		c.rateLimit()

		req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			logging.FeedDebug("ncbi 429 on %s, attempt %d/%d", endpoint, i+1, maxRetries+1)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("ncbi returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Search resolves an E-utilities term to PMIDs, newest first. days > 0
// limits to publications within that many days (reldate on pdat).
func (c *PubMedClient) Search(ctx context.Context, query string, days, retmax int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty pubmed query")
	}
	if retmax <= 0 {
		retmax = 50
	}

	params := url.Values{}
	params.Set("term", query)
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(retmax))
	if days > 0 {
		params.Set("reldate", strconv.Itoa(days))
		params.Set("datetype", "pdat")
	}

	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var res esearchResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse esearch response: %w", err)
	}

	logging.FeedDebug("esearch %q: %s total, %d returned",
		truncate(query, 80), res.Result.Count, len(res.Result.IDList))
	return res.Result.IDList, nil
}

// Fetch retrieves article records for PMIDs and converts them to items.
// Source name and tags are the caller's to fill.
func (c *PubMedClient) Fetch(ctx context.Context, pmids []string) ([]*library.Item, error) {
	if len(pmids) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")

	body, err := c.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse efetch response: %w", err)
	}

	items := make([]*library.Item, 0, len(set.Articles))
	for _, article := range set.Articles {
		item := article.toItem()
		if item == nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// =============================================================================
// E-UTILITIES WIRE TYPES
// =============================================================================

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Sections []abstractSection `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title           string `xml:"Title"`
				ISOAbbreviation string `xml:"ISOAbbreviation"`
				Issue           struct {
					PubDate pubmedDate `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Authors     []pubmedAuthor `xml:"AuthorList>Author"`
			ELocationID []eLocationID  `xml:"ELocationID"`
		} `xml:"Article"`
		MeshTerms []string `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
	} `xml:"MedlineCitation"`
	Data struct {
		ArticleIDs []articleID `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

type abstractSection struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

type pubmedAuthor struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	CollectiveName string `xml:"CollectiveName"`
}

type eLocationID struct {
	Type  string `xml:"EIdType,attr"`
	Value string `xml:",chardata"`
}

type articleID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

type pubmedDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

// toItem converts one PubmedArticle to a library item, or nil when the
// record lacks a PMID or title.
func (a pubmedArticle) toItem() *library.Item {
	pmid := strings.TrimSpace(a.Citation.PMID)
	title := collapseWhitespace(a.Citation.Article.Title)
	if pmid == "" || title == "" {
		return nil
	}

	item := &library.Item{
		Kind:       "pubmed",
		ExternalID: pmid,
		URL:        "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
		Title:      strings.TrimSuffix(title, "."),
		Summary:    a.abstract(),
		Published:  a.Citation.Article.Journal.Issue.PubDate.parse(),
	}

	for _, author := range a.Citation.Article.Authors {
		if name := author.displayName(); name != "" {
			item.Authors = append(item.Authors, name)
		}
	}

	meta := map[string]interface{}{}
	if j := a.Citation.Article.Journal.Title; j != "" {
		meta["journal"] = j
	}
	if doi := a.doi(); doi != "" {
		meta["doi"] = doi
	}
	if len(a.Citation.MeshTerms) > 0 {
		meta["mesh"] = a.Citation.MeshTerms
	}
	if len(meta) > 0 {
		item.Metadata = meta
	}
	return item
}

// abstract joins the labeled abstract sections in order.
func (a pubmedArticle) abstract() string {
	var parts []string
	for _, s := range a.Citation.Article.Abstract.Sections {
		text := collapseWhitespace(s.Text)
		if text == "" {
			continue
		}
		if s.Label != "" {
			text = s.Label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

// doi prefers the Article ELocationID, then the PubmedData id list.
func (a pubmedArticle) doi() string {
	for _, e := range a.Citation.Article.ELocationID {
		if strings.EqualFold(e.Type, "doi") && e.Value != "" {
			return strings.TrimSpace(e.Value)
		}
	}
	for _, id := range a.Data.ArticleIDs {
		if strings.EqualFold(id.Type, "doi") && id.Value != "" {
			return strings.TrimSpace(id.Value)
		}
	}
	return ""
}

func (p pubmedAuthor) displayName() string {
	if p.CollectiveName != "" {
		return collapseWhitespace(p.CollectiveName)
	}
	name := strings.TrimSpace(p.ForeName + " " + p.LastName)
	return name
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// parse resolves a PubDate to a UTC time. Missing month or day default
// to 1. MedlineDate ranges ("2025 Jan-Feb") contribute their year.
func (d pubmedDate) parse() time.Time {
	year := d.Year
	if year == "" && len(d.MedlineDate) >= 4 {
		year = d.MedlineDate[:4]
	}
	y, err := strconv.Atoi(year)
	if err != nil || y == 0 {
		return time.Time{}
	}

	month := time.January
	if m := strings.ToLower(strings.TrimSpace(d.Month)); m != "" {
		if named, ok := monthNames[m]; ok {
			month = named
		} else if n, err := strconv.Atoi(m); err == nil && n >= 1 && n <= 12 {
			month = time.Month(n)
		}
	}

	day := 1
	if n, err := strconv.Atoi(strings.TrimSpace(d.Day)); err == nil && n >= 1 && n <= 31 {
		day = n
	}

	return time.Date(y, month, day, 0, 0, 0, 0, time.UTC)
}
