// Package writer drafts publishable content from shortlisted items. Each
// draft kind has a template scaffold; the prompt carries retrieved
// passages as numbered sources, and the citations attached to the saved
// draft are the sources the model actually referenced.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/llm"
	"pulsepress/internal/logging"
	"pulsepress/internal/retrieval"
)

// Retriever is the slice of the hybrid searcher the writer needs.
type Retriever interface {
	Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error)
}

// =============================================================================
// WRITER
// =============================================================================

// Writer runs the drafting pipeline.
type Writer struct {
	lib      *library.Library
	client   llm.Client
	search   Retriever
	audience string
	tone     string
	language string

	contextChunks   int
	maxPostChars    int
	slideCount      int
	requireEvidence bool
}

// NewWriter builds a writer from the loaded configuration. The client
// should already be set to the writer model.
func NewWriter(lib *library.Library, client llm.Client, search Retriever, cfg *config.Config) *Writer {
	w := &Writer{
		lib:             lib,
		client:          client,
		search:          search,
		audience:        cfg.Writer.Audience,
		tone:            cfg.Writer.Tone,
		language:        cfg.Writer.Language,
		contextChunks:   cfg.Writer.ContextChunks,
		maxPostChars:    cfg.Writer.MaxThreadChars,
		slideCount:      cfg.Writer.CarouselSlides,
		requireEvidence: cfg.Writer.RequireEvidence,
	}
	if w.language == "" {
		w.language = "English"
	}
	if w.contextChunks <= 0 {
		w.contextChunks = 8
	}
	if w.maxPostChars <= 0 {
		w.maxPostChars = 280
	}
	if w.slideCount <= 0 {
		w.slideCount = 7
	}
	return w
}

// Request selects what to draft.
type Request struct {
	Kind   string
	ItemID string // draft from a library item (uses its verdict angle)
	Topic  string // or from a free-form topic
}

// source is one numbered entry in the prompt's source block.
type source struct {
	ItemID string
	Title  string
	URL    string
}

// Draft runs the full pipeline for one request and saves the result.
func (w *Writer) Draft(ctx context.Context, req Request) (*library.Draft, error) {
	timer := logging.StartTimer(logging.CategoryWriter, "Draft")
	defer timer.Stop()

	if _, ok := kindTemplates[req.Kind]; !ok {
		return nil, fmt.Errorf("unknown draft kind: %s (valid: newsletter, thread, linkedin, carousel, explainer)", req.Kind)
	}

	topic, hook, item, err := w.resolveSubject(req)
	if err != nil {
		return nil, err
	}

	sources, block, err := w.gatherSources(ctx, topic)
	if err != nil {
		return nil, err
	}

	system, user, err := w.buildPrompts(req.Kind, topic, hook, block)
	if err != nil {
		return nil, err
	}

	logging.Writer("drafting %s: %q (%d sources)", req.Kind, truncate(topic, 60), len(sources))
	response, err := w.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("drafting request failed: %w", err)
	}

	content, err := w.postProcess(ctx, req.Kind, response)
	if err != nil {
		return nil, err
	}

	draft := &library.Draft{
		Kind:      req.Kind,
		Title:     deriveTitle(req.Kind, content, topic),
		Topic:     topic,
		Content:   content,
		Citations: citedSources(content, sources),
		Model:     w.client.GetModel(),
		Status:    library.DraftStatusDraft,
	}
	draft.ItemIDs = collectItemIDs(item, draft.Citations)

	if err := w.lib.SaveDraft(draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	logging.Writer("draft saved: %s [%s] %q (%d citations)",
		draft.ID, draft.Kind, truncate(draft.Title, 60), len(draft.Citations))
	return draft, nil
}

// resolveSubject turns the request into the topic the writer drafts
// about. Item requests prefer the verdict's angle over the raw title.
func (w *Writer) resolveSubject(req Request) (topic, hook string, item *library.Item, err error) {
	if req.ItemID != "" {
		item, err = w.lib.GetItem(req.ItemID)
		if err != nil {
			return "", "", nil, err
		}

		topic = item.Title
		verdict, err := w.lib.GetVerdict(req.ItemID)
		if err == nil && verdict != nil {
			if verdict.Angle != "" {
				topic = verdict.Angle
			}
			hook = verdict.Hook
		}
		return topic, hook, item, nil
	}

	topic = strings.TrimSpace(req.Topic)
	if topic == "" {
		return "", "", nil, fmt.Errorf("nothing to draft about: provide an item or a topic")
	}
	return topic, "", nil, nil
}

// gatherSources retrieves supporting passages and renders the numbered
// source block. Retrieval trouble only fails the draft when the config
// demands evidence.
func (w *Writer) gatherSources(ctx context.Context, topic string) ([]source, string, error) {
	results, err := w.search.Search(ctx, topic, retrieval.Options{Limit: w.contextChunks})
	if err != nil {
		if w.requireEvidence {
			return nil, "", fmt.Errorf("retrieval failed and evidence is required: %w", err)
		}
		logging.Get(logging.CategoryWriter).Warn("retrieval failed, drafting without sources: %v", err)
		results = nil
	}
	if len(results) == 0 && w.requireEvidence {
		return nil, "", fmt.Errorf("no indexed evidence found for %q (require_evidence is on)", topic)
	}

	sources, block := buildSourceBlock(results)
	return sources, block, nil
}

// buildSourceBlock numbers the distinct items behind the results and
// lists each with its retrieved excerpts.
func buildSourceBlock(results []retrieval.Result) ([]source, string) {
	if len(results) == 0 {
		return nil, "Sources: none retrieved. Write only what the topic itself states, and say that the claim base is thin."
	}

	var sources []source
	numberOf := make(map[string]int)
	excerpts := make(map[int][]string)

	for _, r := range results {
		n, ok := numberOf[r.ItemID]
		if !ok {
			sources = append(sources, source{ItemID: r.ItemID, Title: r.Title, URL: r.URL})
			n = len(sources)
			numberOf[r.ItemID] = n
		}
		excerpts[n] = append(excerpts[n], r.Text)
	}

	var sb strings.Builder
	sb.WriteString("Sources:\n")
	for i, src := range sources {
		n := i + 1
		fmt.Fprintf(&sb, "[%d] %s", n, src.Title)
		if src.URL != "" {
			fmt.Fprintf(&sb, " (%s)", src.URL)
		}
		sb.WriteString("\n")
		for _, ex := range excerpts[n] {
			fmt.Fprintf(&sb, "    %s\n", strings.TrimSpace(ex))
		}
	}
	return sources, strings.TrimRight(sb.String(), "\n")
}

// buildPrompts renders the system scaffold and the kind scaffold.
func (w *Writer) buildPrompts(kind, topic, hook, sourceBlock string) (system, user string, err error) {
	data := promptData{
		Audience:     w.audience,
		Tone:         w.tone,
		Language:     w.language,
		Topic:        topic,
		Hook:         hook,
		Sources:      sourceBlock,
		SlideCount:   w.slideCount,
		MaxPostChars: w.maxPostChars,
	}

	var sysBuf bytes.Buffer
	if err := systemTemplate.Execute(&sysBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to render system scaffold: %w", err)
	}

	var userBuf bytes.Buffer
	if err := kindTemplates[kind].Execute(&userBuf, data); err != nil {
		return "", "", fmt.Errorf("failed to render %s scaffold: %w", kind, err)
	}
	return sysBuf.String(), userBuf.String(), nil
}

// postProcess applies the per-kind output contract.
func (w *Writer) postProcess(ctx context.Context, kind, response string) (string, error) {
	switch kind {
	case library.KindThread:
		return splitThread(response, w.maxPostChars), nil
	case library.KindCarousel:
		return w.processCarousel(ctx, response)
	default:
		return strings.TrimSpace(response), nil
	}
}

// =============================================================================
// CITATIONS
// =============================================================================

var citationRef = regexp.MustCompile(`\[(\d{1,2})\]`)

// citedSources keeps the sources whose bracket numbers appear in the
// content, in source order.
func citedSources(content string, sources []source) []library.Citation {
	if len(sources) == 0 {
		return nil
	}

	cited := make(map[int]bool)
	for _, m := range citationRef.FindAllStringSubmatch(content, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 1 && n <= len(sources) {
			cited[n] = true
		}
	}

	var citations []library.Citation
	for i, src := range sources {
		if cited[i+1] {
			citations = append(citations, library.Citation{
				ItemID: src.ItemID,
				Title:  src.Title,
				URL:    src.URL,
			})
		}
	}
	return citations
}

// collectItemIDs gathers the primary item plus every cited item, deduped.
func collectItemIDs(item *library.Item, citations []library.Citation) []string {
	seen := make(map[string]bool)
	var ids []string

	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if item != nil {
		add(item.ID)
	}
	for _, c := range citations {
		add(c.ItemID)
	}
	return ids
}

// =============================================================================
// TITLES
// =============================================================================

// deriveTitle pulls a display title out of the produced content.
func deriveTitle(kind, content, topic string) string {
	switch kind {
	case library.KindCarousel:
		var script CarouselScript
		if err := llm.ExtractJSONInto(content, &script); err == nil && script.Hook != "" {
			return truncate(script.Hook, 120)
		}
	case library.KindThread:
		first := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
		if post := strings.TrimSpace(threadNumbering.ReplaceAllString(first, "")); post != "" {
			return truncate(post, 120)
		}
	default:
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "#") {
				return truncate(strings.TrimSpace(strings.TrimLeft(line, "# ")), 120)
			}
			return truncate(line, 120)
		}
	}
	return truncate(topic, 120)
}

// truncate shortens s for titles and log lines, marking the cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
