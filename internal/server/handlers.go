package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pulsepress/internal/library"
	"pulsepress/internal/retrieval"
)

// =============================================================================
// JSON API
// =============================================================================

// itemJSON is the wire form of a library item.
type itemJSON struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Summary   string     `json:"summary,omitempty"`
	Status    string     `json:"status"`
	Tags      []string   `json:"tags,omitempty"`
	Published *time.Time `json:"published_at,omitempty"`
	Fetched   time.Time  `json:"fetched_at"`
}

// draftJSON is the wire form of a draft. Listings leave Content empty so
// the payload stays small; the detail endpoint fills it in.
type draftJSON struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Title     string             `json:"title"`
	Topic     string             `json:"topic,omitempty"`
	Status    string             `json:"status"`
	Model     string             `json:"model,omitempty"`
	Content   string             `json:"content,omitempty"`
	ItemIDs   []string           `json:"item_ids,omitempty"`
	Citations []library.Citation `json:"citations,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// resultJSON is the wire form of one search hit.
type resultJSON struct {
	ChunkID  string  `json:"chunk_id"`
	ItemID   string  `json:"item_id"`
	Title    string  `json:"title"`
	URL      string  `json:"url,omitempty"`
	Source   string  `json:"source,omitempty"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Reranked bool    `json:"reranked"`
}

func toItemJSON(item *library.Item) itemJSON {
	out := itemJSON{
		ID:      item.ID,
		Source:  item.Source,
		Kind:    item.Kind,
		Title:   item.Title,
		URL:     item.URL,
		Summary: item.Summary,
		Status:  item.Status,
		Tags:    item.Tags,
		Fetched: item.Fetched,
	}
	if !item.Published.IsZero() {
		published := item.Published
		out.Published = &published
	}
	return out
}

func toDraftJSON(draft *library.Draft, detail bool) draftJSON {
	out := draftJSON{
		ID:        draft.ID,
		Kind:      draft.Kind,
		Title:     draft.Title,
		Topic:     draft.Topic,
		Status:    draft.Status,
		Model:     draft.Model,
		CreatedAt: draft.CreatedAt,
		UpdatedAt: draft.UpdatedAt,
	}
	if detail {
		out.Content = draft.Content
		out.ItemIDs = draft.ItemIDs
		out.Citations = draft.Citations
	}
	return out
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleItems(c *gin.Context) {
	items, err := s.lib.ListItems(c.Query("status"), queryInt(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]itemJSON, 0, len(items))
	for _, item := range items {
		out = append(out, toItemJSON(item))
	}
	c.JSON(http.StatusOK, gin.H{"items": out, "count": len(out)})
}

func (s *Server) handleDrafts(c *gin.Context) {
	drafts, err := s.lib.ListDrafts(c.Query("status"), queryInt(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]draftJSON, 0, len(drafts))
	for _, draft := range drafts {
		out = append(out, toDraftJSON(draft, false))
	}
	c.JSON(http.StatusOK, gin.H{"drafts": out, "count": len(out)})
}

func (s *Server) handleDraft(c *gin.Context) {
	draft, err := s.lib.GetDraft(c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, library.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toDraftJSON(draft, true))
}

func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing q parameter"})
		return
	}
	if s.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "search is not available: embeddings are not configured (set OPENAI_API_KEY or embedding.api_key_env and restart)",
		})
		return
	}

	results, err := s.search.Search(c.Request.Context(), query, retrieval.Options{Limit: queryInt(c, "limit", 0)})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]resultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, resultJSON{
			ChunkID:  r.ChunkID,
			ItemID:   r.ItemID,
			Title:    r.Title,
			URL:      r.URL,
			Source:   r.Source,
			Text:     r.Text,
			Score:    r.Score,
			Reranked: r.Reranked,
		})
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": out, "count": len(out)})
}

func (s *Server) handleStats(c *gin.Context) {
	st, err := s.lib.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items_by_status": st.ItemsByStatus,
		"documents":       st.Documents,
		"chunks":          st.Chunks,
		"chunks_indexed":  st.ChunksIndexed,
		"drafts":          st.Drafts,
		"publications":    st.Publications,
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
