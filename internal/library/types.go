package library

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Item statuses form the intake lifecycle:
// new -> triaged -> shortlisted|rejected -> indexed
const (
	StatusNew         = "new"
	StatusTriaged     = "triaged"
	StatusShortlisted = "shortlisted"
	StatusRejected    = "rejected"
	StatusIndexed     = "indexed"

	// StatusTriageFailed marks items whose verdict could not be parsed;
	// they stay visible for manual review instead of blocking the run.
	StatusTriageFailed = "triage_failed"
)

// Triage actions
const (
	ActionSkip      = "skip"
	ActionShortlist = "shortlist"
	ActionDeepDive  = "deep_dive"
)

// Draft statuses
const (
	DraftStatusDraft     = "draft"
	DraftStatusApproved  = "approved"
	DraftStatusPublished = "published"
)

// Draft kinds
const (
	KindNewsletter = "newsletter"
	KindThread     = "thread"
	KindLinkedIn   = "linkedin"
	KindCarousel   = "carousel"
	KindExplainer  = "explainer"
)

// Publication channels
const (
	ChannelNotion = "notion"
	ChannelSlack  = "slack"
	ChannelEmail  = "email"
)

// Asset kinds
const (
	AssetChart      = "chart"
	AssetCarousel   = "carousel"
	AssetDiagram    = "diagram"
	AssetScreenshot = "screenshot"
)

// Item is one fetched article or paper.
type Item struct {
	ID         string
	Source     string // feed source name from feeds.yaml
	Kind       string // rss, pubmed
	ExternalID string // RSS guid or PubMed PMID
	URL        string
	Title      string
	Authors    []string
	Summary    string // feed summary or abstract
	Published  time.Time
	Fetched    time.Time
	DedupeKey  string
	Status     string
	Tags       []string
	Metadata   map[string]interface{} // journal, doi, mesh terms, ...
}

// Verdict is the triage decision for one item.
type Verdict struct {
	ItemID    string
	Relevance int    // 0-10
	Action    string // skip, shortlist, deep_dive
	Angle     string // suggested content angle
	Hook      string // one-line hook for the piece
	Audience  string // who this lands with
	Rationale string
	Model     string
	CreatedAt time.Time
}

// Document is the extracted full text for an item.
type Document struct {
	ID            string
	ItemID        string
	Content       string
	ContentHash   string
	WordCount     int
	ExtractedWith string // readability, apify, abstract
	CreatedAt     time.Time
}

// Chunk is one retrieval unit of a document.
type Chunk struct {
	ID         string
	DocumentID string
	ItemID     string
	Seq        int
	Text       string
	TokenCount int
	Indexed    bool
	CreatedAt  time.Time
}

// Draft is one produced piece of content.
type Draft struct {
	ID        string
	Kind      string // newsletter, thread, linkedin, carousel, explainer
	Title     string
	Topic     string // the request that produced it
	Content   string // markdown; carousel drafts hold slide JSON
	ItemIDs   []string
	Citations []Citation
	Model     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Citation ties a draft claim back to a library item.
type Citation struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// Asset is a rendered artifact (chart PNG, carousel slides, diagram SVG).
type Asset struct {
	ID        string
	DraftID   string // empty for standalone renders
	Kind      string // chart, carousel, diagram, screenshot
	Path      string
	Meta      map[string]interface{}
	CreatedAt time.Time
}

// Publication records one delivery of a draft to a channel.
type Publication struct {
	DraftID     string
	Channel     string // notion, slack, email
	ExternalRef string // notion page ID, slack ts, message ID
	PublishedAt time.Time
}

// DedupeKey derives the stable identity key for an item.
// PubMed items dedupe on PMID so the same paper found via RSS and
// E-utilities collapses; everything else falls back to the URL.
func DedupeKey(kind, externalID, url string) string {
	var basis string
	if kind == "pubmed" && externalID != "" {
		basis = "pmid:" + externalID
	} else if externalID != "" {
		basis = "id:" + externalID
	} else {
		basis = "url:" + url
	}
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// ContentHash fingerprints extracted text for idempotent indexing.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
