package config

import (
	"path/filepath"
	"testing"
)

func TestFeedList_Validate(t *testing.T) {
	tests := []struct {
		name    string
		list    FeedList
		wantErr bool
	}{
		{
			name: "valid rss and pubmed",
			list: FeedList{Sources: []FeedSource{
				{Name: "a", Kind: "rss", URL: "https://example.org/feed"},
				{Name: "b", Kind: "pubmed", Query: "diabetes[MeSH]"},
			}},
			wantErr: false,
		},
		{
			name:    "missing name",
			list:    FeedList{Sources: []FeedSource{{Kind: "rss", URL: "https://x"}}},
			wantErr: true,
		},
		{
			name: "duplicate name",
			list: FeedList{Sources: []FeedSource{
				{Name: "a", Kind: "rss", URL: "https://x"},
				{Name: "a", Kind: "rss", URL: "https://y"},
			}},
			wantErr: true,
		},
		{
			name:    "rss without url",
			list:    FeedList{Sources: []FeedSource{{Name: "a", Kind: "rss"}}},
			wantErr: true,
		},
		{
			name:    "pubmed without query",
			list:    FeedList{Sources: []FeedSource{{Name: "a", Kind: "pubmed"}}},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			list:    FeedList{Sources: []FeedSource{{Name: "a", Kind: "atomX", URL: "https://x"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.list.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFeedList_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")

	fl := &FeedList{Sources: []FeedSource{
		{Name: "nejm", Kind: "rss", URL: "https://www.nejm.org/feed", Tags: []string{"journal"}},
		{Name: "pm-cardio", Kind: "pubmed", Query: "heart failure[MeSH]", Days: 14},
		{Name: "old", Kind: "rss", URL: "https://old.example/feed", Disabled: true},
	}}

	if err := fl.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFeedList(path)
	if err != nil {
		t.Fatalf("LoadFeedList: %v", err)
	}

	if len(loaded.Sources) != 3 {
		t.Fatalf("loaded %d sources, want 3", len(loaded.Sources))
	}
	if loaded.Sources[1].Days != 14 {
		t.Errorf("Days = %d, want 14", loaded.Sources[1].Days)
	}

	active := loaded.Active()
	if len(active) != 2 {
		t.Errorf("Active() returned %d sources, want 2", len(active))
	}

	if s := loaded.FindSource("pm-cardio"); s == nil || s.Query != "heart failure[MeSH]" {
		t.Errorf("FindSource(pm-cardio) = %+v", s)
	}
	if s := loaded.FindSource("nope"); s != nil {
		t.Errorf("FindSource(nope) should be nil, got %+v", s)
	}
}

func TestLoadFeedList_MissingFile(t *testing.T) {
	fl, err := LoadFeedList(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing feeds file should not error: %v", err)
	}
	if len(fl.Sources) != 0 {
		t.Errorf("expected empty list, got %d sources", len(fl.Sources))
	}
}

func TestDefaultFeedList(t *testing.T) {
	fl := DefaultFeedList()
	if err := fl.Validate(); err != nil {
		t.Fatalf("default feed list should validate: %v", err)
	}
	if len(fl.Active()) == 0 {
		t.Error("default feed list should have active sources")
	}
}
