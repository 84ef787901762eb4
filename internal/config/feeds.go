package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FeedsConfig configures the intake layer.
type FeedsConfig struct {
	// Path to feeds.yaml, relative to the .pulse directory
	Path string `yaml:"path"`

	// MaxItems caps items fetched per source per run
	MaxItems int `yaml:"max_items"`

	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`

	// NCBI E-utilities key (raises the rate limit from 3 to 10 req/s)
	NCBIAPIKey string `yaml:"ncbi_api_key"`

	// AllowedDomains restricts extraction to these domains when set.
	// BlockedDomains always wins.
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`
	BlockedDomains []string `yaml:"blocked_domains,omitempty"`

	// Apify fallback scraper for JS-heavy pages
	Apify ApifyConfig `yaml:"apify"`
}

// ApifyConfig configures the Apify actor used as an extraction fallback.
type ApifyConfig struct {
	Token string `yaml:"token"`
	Actor string `yaml:"actor"`
}

// FeedSource describes one subscription in feeds.yaml.
type FeedSource struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // rss, pubmed

	// URL for rss sources
	URL string `yaml:"url,omitempty"`

	// Query for pubmed sources (E-utilities term syntax)
	Query string `yaml:"query,omitempty"`

	// Days limits pubmed searches to recent publications (reldate)
	Days int `yaml:"days,omitempty"`

	Tags []string `yaml:"tags,omitempty"`

	// Disabled sources are kept in the file but skipped on fetch
	Disabled bool `yaml:"disabled,omitempty"`
}

// FeedList is the parsed contents of feeds.yaml.
type FeedList struct {
	Sources []FeedSource `yaml:"sources"`
}

// Active returns the enabled sources.
func (fl *FeedList) Active() []FeedSource {
	var out []FeedSource
	for _, s := range fl.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// FindSource returns the source with the given name, or nil.
func (fl *FeedList) FindSource(name string) *FeedSource {
	for i := range fl.Sources {
		if fl.Sources[i].Name == name {
			return &fl.Sources[i]
		}
	}
	return nil
}

// Validate checks each source for the fields its kind requires.
func (fl *FeedList) Validate() error {
	seen := make(map[string]bool)
	for _, s := range fl.Sources {
		if s.Name == "" {
			return fmt.Errorf("feed source missing name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate feed source name: %s", s.Name)
		}
		seen[s.Name] = true

		switch s.Kind {
		case "rss":
			if s.URL == "" {
				return fmt.Errorf("rss source %q missing url", s.Name)
			}
		case "pubmed":
			if s.Query == "" {
				return fmt.Errorf("pubmed source %q missing query", s.Name)
			}
		default:
			return fmt.Errorf("source %q has unknown kind %q (valid: rss, pubmed)", s.Name, s.Kind)
		}
	}
	return nil
}

// LoadFeedList loads feeds.yaml. A missing file returns an empty list.
func LoadFeedList(path string) (*FeedList, error) {
	fl := &FeedList{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fl, nil
		}
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}

	if err := yaml.Unmarshal(data, fl); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file: %w", err)
	}

	if err := fl.Validate(); err != nil {
		return nil, err
	}

	return fl, nil
}

// Save writes the feed list back to feeds.yaml.
func (fl *FeedList) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create feeds directory: %w", err)
	}

	data, err := yaml.Marshal(fl)
	if err != nil {
		return fmt.Errorf("failed to marshal feeds: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write feeds file: %w", err)
	}

	return nil
}

// DefaultFeedList returns the starter subscriptions written by `pulse init`.
func DefaultFeedList() *FeedList {
	return &FeedList{
		Sources: []FeedSource{
			{
				Name: "nejm-current",
				Kind: "rss",
				URL:  "https://www.nejm.org/action/showFeed?jc=nejm&type=etoc&feed=rss",
				Tags: []string{"journal", "general-medicine"},
			},
			{
				Name: "bmj-latest",
				Kind: "rss",
				URL:  "https://www.bmj.com/rss/recent.xml",
				Tags: []string{"journal", "general-medicine"},
			},
			{
				Name:  "pubmed-nutrition",
				Kind:  "pubmed",
				Query: `("diet"[MeSH] OR "nutrition therapy"[MeSH]) AND ("randomized controlled trial"[PT] OR "meta-analysis"[PT])`,
				Days:  7,
				Tags:  []string{"pubmed", "nutrition"},
			},
		},
	}
}
