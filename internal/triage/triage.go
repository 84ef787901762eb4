// Package triage scores fetched items against the configured niche and
// decides which ones are worth drafting about. Verdicts come back from
// the LLM as JSON; responses that cannot be parsed get one reformat
// retry before the item is parked as triage_failed.
package triage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/llm"
	"pulsepress/internal/logging"
)

// promptSummaryMax bounds the summary passed to the model. PubMed
// abstracts routinely run past a thousand characters.
const promptSummaryMax = 2000

const triageSystemPrompt = `You are the triage editor for a medical content pipeline. Judge each item strictly against the stated niche and audience.

Respond with a single JSON object and no other text:
{
  "relevance": <integer 0-10>,
  "action": "skip" | "shortlist" | "deep_dive",
  "angle": "<suggested content angle, one sentence>",
  "hook": "<one-line hook for the piece>",
  "audience_match": "<who this lands with>",
  "rationale": "<why, leading with the evidence level: meta-analysis, RCT, observational, preprint, or opinion>"
}

Scoring guide: 0-3 off-niche or weak evidence, 4-5 marginal, 6-7 solid and on-niche, 8-10 must-cover. Use deep_dive only when the full text deserves a long-form explainer.`

const reformatSystemPrompt = `Your previous reply could not be parsed. Re-emit it as a single valid JSON object with keys relevance, action, angle, hook, audience_match, rationale. No code fences, no commentary.`

// =============================================================================
// TRIAGER
// =============================================================================

// Triager runs LLM verdicts over new items.
type Triager struct {
	lib         *library.Library
	client      llm.Client
	niche       string
	audience    string
	minScore    int
	parallelism int
}

// NewTriager builds a triager from the loaded configuration. The client
// should already be set to the triage model.
func NewTriager(lib *library.Library, client llm.Client, cfg *config.Config) *Triager {
	parallelism := cfg.Triage.Parallelism
	if parallelism <= 0 {
		parallelism = 3
	}

	return &Triager{
		lib:         lib,
		client:      client,
		niche:       cfg.Triage.Niche,
		audience:    cfg.Writer.Audience,
		minScore:    cfg.Triage.MinScore,
		parallelism: parallelism,
	}
}

// Stats aggregates one triage run.
type Stats struct {
	Processed   int
	Shortlisted int
	Rejected    int
	Failed      int
}

// TriageBatch triages up to limit new items concurrently. A failing
// item is counted, not fatal, so one bad response cannot sink the run.
func (t *Triager) TriageBatch(ctx context.Context, limit int) (*Stats, error) {
	timer := logging.StartTimer(logging.CategoryTriage, "TriageBatch")
	defer timer.Stop()

	items, err := t.lib.ListItems(library.StatusNew, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list new items: %w", err)
	}

	stats := &Stats{}
	if len(items) == 0 {
		return stats, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallelism)

	for _, item := range items {
		item := item
		g.Go(func() error {
			verdict, err := t.TriageItem(gctx, item)

			mu.Lock()
			defer mu.Unlock()
			stats.Processed++
			if err != nil {
				stats.Failed++
				logging.Get(logging.CategoryTriage).Warn("triage failed for %q: %v", item.Title, err)
				return nil
			}
			if verdict.Action == library.ActionSkip {
				stats.Rejected++
			} else {
				stats.Shortlisted++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	logging.Triage("triage run: %d processed, %d shortlisted, %d rejected, %d failed",
		stats.Processed, stats.Shortlisted, stats.Rejected, stats.Failed)
	return stats, nil
}

// TriageItem produces and persists the verdict for one item. Transport
// failures leave the item in `new` for the next run; a verdict that
// stays unparseable after the reformat retry parks it as triage_failed.
func (t *Triager) TriageItem(ctx context.Context, item *library.Item) (*library.Verdict, error) {
	response, err := t.client.CompleteWithSystem(ctx, triageSystemPrompt, t.buildPrompt(item))
	if err != nil {
		return nil, fmt.Errorf("verdict request failed: %w", err)
	}

	payload, parseErr := parseVerdict(response)
	if parseErr != nil {
		logging.TriageDebug("unparseable verdict for %s, asking for reformat: %v", item.ID, parseErr)
		reformatted, err := t.client.CompleteWithSystem(ctx, reformatSystemPrompt, response)
		if err == nil {
			payload, parseErr = parseVerdict(reformatted)
		}
	}
	if parseErr != nil {
		if err := t.lib.UpdateItemStatus(item.ID, library.StatusTriageFailed); err != nil {
			logging.Get(logging.CategoryTriage).Warn("failed to park item %s: %v", item.ID, err)
		}
		return nil, fmt.Errorf("verdict unparseable after reformat retry: %w", parseErr)
	}

	verdict := t.toVerdict(item, payload)
	if err := t.lib.SaveVerdict(verdict); err != nil {
		return nil, fmt.Errorf("failed to save verdict: %w", err)
	}

	logging.Triage("%q: relevance %d, action %s", truncate(item.Title, 60), verdict.Relevance, verdict.Action)
	return verdict, nil
}

// buildPrompt renders the item card the model judges.
func (t *Triager) buildPrompt(item *library.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Niche: %s\n", t.niche)
	fmt.Fprintf(&sb, "Audience: %s\n\n", t.audience)

	sb.WriteString("Item to triage:\n")
	fmt.Fprintf(&sb, "Title: %s\n", item.Title)
	fmt.Fprintf(&sb, "Source: %s (%s)\n", item.Source, item.Kind)
	if !item.Published.IsZero() {
		fmt.Fprintf(&sb, "Published: %s\n", item.Published.Format("2006-01-02"))
	}
	if journal, ok := item.Metadata["journal"].(string); ok && journal != "" {
		fmt.Fprintf(&sb, "Journal: %s\n", journal)
	}
	if summary := strings.TrimSpace(item.Summary); summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", truncate(summary, promptSummaryMax))
	}
	return sb.String()
}

// =============================================================================
// VERDICT PARSING
// =============================================================================

// verdictPayload is the JSON shape the model is asked for.
type verdictPayload struct {
	Relevance     int    `json:"relevance"`
	Action        string `json:"action"`
	Angle         string `json:"angle"`
	Hook          string `json:"hook"`
	AudienceMatch string `json:"audience_match"`
	Rationale     string `json:"rationale"`
}

func parseVerdict(response string) (*verdictPayload, error) {
	var p verdictPayload
	if err := llm.ExtractJSONInto(response, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// toVerdict maps the model payload onto a stored verdict, normalizing
// the action and applying the relevance floor.
func (t *Triager) toVerdict(item *library.Item, p *verdictPayload) *library.Verdict {
	relevance := p.Relevance
	if relevance < 0 {
		relevance = 0
	}
	if relevance > 10 {
		relevance = 10
	}

	action := normalizeAction(p.Action)
	if action != library.ActionSkip && relevance < t.minScore {
		action = library.ActionSkip
	}

	return &library.Verdict{
		ItemID:    item.ID,
		Relevance: relevance,
		Action:    action,
		Angle:     strings.TrimSpace(p.Angle),
		Hook:      strings.TrimSpace(p.Hook),
		Audience:  strings.TrimSpace(p.AudienceMatch),
		Rationale: strings.TrimSpace(p.Rationale),
		Model:     t.client.GetModel(),
	}
}

// normalizeAction maps model phrasing onto the canonical actions.
// Anything unrecognized becomes skip.
func normalizeAction(action string) string {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(action)), " ", "_") {
	case library.ActionShortlist:
		return library.ActionShortlist
	case library.ActionDeepDive, "deepdive":
		return library.ActionDeepDive
	default:
		return library.ActionSkip
	}
}

// truncate shortens s for prompts and log lines, marking the cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
