package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// slackSectionLimit keeps each markdown section under Slack's 3000 char
// text cap with headroom for escaping.
const slackSectionLimit = 2900

// digestItems is how many shortlisted items the triage digest lists.
const digestItems = 5

// slackAPI is the slice of the Slack client the channel uses.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// =============================================================================
// SLACK CHANNEL
// =============================================================================

// slackChannel posts drafts and triage digests as Block Kit messages.
// Carousel drafts get their rendered slides uploaded into the thread.
type slackChannel struct {
	lib *library.Library
	cfg *config.Config
	api slackAPI // built lazily from config; tests inject a fake
}

func newSlackChannel(lib *library.Library, cfg *config.Config) *slackChannel {
	return &slackChannel{lib: lib, cfg: cfg}
}

func (s *slackChannel) Name() string { return library.ChannelSlack }

func (s *slackChannel) client() (slackAPI, error) {
	if s.api != nil {
		return s.api, nil
	}
	sc := s.cfg.Publish.Slack
	if !sc.IsConfigured() {
		return nil, errors.New("slack is not configured (set publish.slack.token and channel, or SLACK_BOT_TOKEN)")
	}
	s.api = slack.New(sc.Token)
	return s.api, nil
}

func (s *slackChannel) Publish(ctx context.Context, draft *library.Draft, dryRun bool) (*Receipt, error) {
	markdown, err := draftMarkdown(draft)
	if err != nil {
		return nil, err
	}
	blocks := draftBlocks(draft, markdown)
	slides := s.carouselSlides(draft)

	if dryRun {
		return &Receipt{
			Channel: s.Name(),
			DryRun:  true,
			Summary: fmt.Sprintf("slack: would post %d blocks to %s (%d slide uploads)",
				len(blocks), s.cfg.Publish.Slack.Channel, len(slides)),
		}, nil
	}

	api, err := s.client()
	if err != nil {
		return nil, err
	}
	channelID, ts, err := api.PostMessageContext(ctx, s.cfg.Publish.Slack.Channel,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(draft.Title, false),
	)
	if err != nil {
		return nil, fmt.Errorf("post to slack: %w", err)
	}

	// Slide uploads ride in the message thread. A failed upload keeps the
	// delivery: the message itself already landed.
	for _, path := range slides {
		if err := uploadPNG(ctx, api, channelID, ts, path); err != nil {
			logging.PublishWarn("Slide upload failed for %s: %v", path, err)
		}
	}

	logging.Publish("Slack message %s posted for draft %s", ts, draft.ID)
	return &Receipt{
		Channel:     s.Name(),
		ExternalRef: ts,
		Summary:     fmt.Sprintf("slack: posted to %s (ts %s)", s.cfg.Publish.Slack.Channel, ts),
	}, nil
}

// draftBlocks lays a draft out as Block Kit: header, markdown sections,
// then citations as context links.
func draftBlocks(draft *library.Draft, markdown string) []slack.Block {
	title := draft.Title
	if title == "" {
		title = draft.Topic
	}
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, clip(title, 150), false, false)),
	}
	for _, chunk := range splitSections(markdown, slackSectionLimit) {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, chunk, false, false), nil, nil))
	}
	if len(draft.Citations) > 0 {
		var refs []string
		for i, c := range draft.Citations {
			label := clip(c.Title, 60)
			if label == "" {
				label = c.URL
			}
			if c.URL != "" {
				refs = append(refs, fmt.Sprintf("<%s|[%d] %s>", c.URL, i+1, label))
			} else {
				refs = append(refs, fmt.Sprintf("[%d] %s", i+1, label))
			}
		}
		blocks = append(blocks,
			slack.NewDividerBlock(),
			slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType, strings.Join(refs, "  "), false, false)),
		)
	}
	return blocks
}

// splitSections packs paragraphs into chunks under limit runes. A single
// paragraph over the limit splits mid-text; everything else breaks on
// paragraph boundaries.
func splitSections(markdown string, limit int) []string {
	var sections []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			sections = append(sections, cur.String())
			cur.Reset()
		}
	}
	for _, para := range strings.Split(strings.TrimSpace(markdown), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for utf8.RuneCountInString(para) > limit {
			flush()
			runes := []rune(para)
			sections = append(sections, string(runes[:limit]))
			para = string(runes[limit:])
		}
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+2+utf8.RuneCountInString(para) > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return sections
}

// carouselSlides returns the slide PNGs of the draft's newest carousel
// render, if one exists.
func (s *slackChannel) carouselSlides(draft *library.Draft) []string {
	if draft.Kind != library.KindCarousel {
		return nil
	}
	assets, err := s.lib.ListAssets(draft.ID)
	if err != nil {
		logging.PublishWarn("Asset lookup failed for draft %s: %v", draft.ID, err)
		return nil
	}
	for _, a := range assets {
		if a.Kind != library.AssetCarousel {
			continue
		}
		var paths []string
		if files, ok := a.Meta["files"].([]interface{}); ok {
			for _, f := range files {
				if p, ok := f.(string); ok {
					paths = append(paths, p)
				}
			}
		}
		return paths // assets list newest first
	}
	return nil
}

func uploadPNG(ctx context.Context, api slackAPI, channelID, threadTS, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	_, err = api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:  channelID,
		File:     path,
		Filename: filepath.Base(path),
		FileSize: int(info.Size()),
		Title:    filepath.Base(path),
		ThreadTs: threadTS,
	})
	return err
}

// =============================================================================
// TRIAGE DIGEST
// =============================================================================

// Digest posts the pipeline status: item counts per stage and the newest
// shortlisted items with their triage angles.
func (s *slackChannel) Digest(ctx context.Context, dryRun bool) (*Receipt, error) {
	stats, err := s.lib.Stats()
	if err != nil {
		return nil, err
	}
	items, err := s.lib.ListItems(library.StatusShortlisted, digestItems)
	if err != nil {
		return nil, err
	}

	blocks := s.digestBlocks(stats, items)
	if dryRun {
		return &Receipt{
			Channel: s.Name(),
			DryRun:  true,
			Summary: fmt.Sprintf("slack: would post digest (%d shortlisted, %d drafts) to %s",
				stats.ItemsByStatus[library.StatusShortlisted], stats.Drafts, s.cfg.Publish.Slack.Channel),
		}, nil
	}

	api, err := s.client()
	if err != nil {
		return nil, err
	}
	_, ts, err := api.PostMessageContext(ctx, s.cfg.Publish.Slack.Channel,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText("Pulse triage digest", false),
	)
	if err != nil {
		return nil, fmt.Errorf("post digest to slack: %w", err)
	}
	logging.Publish("Digest posted to %s (ts %s)", s.cfg.Publish.Slack.Channel, ts)
	return &Receipt{
		Channel:     s.Name(),
		ExternalRef: ts,
		Summary:     fmt.Sprintf("slack: digest posted to %s", s.cfg.Publish.Slack.Channel),
	}, nil
}

func (s *slackChannel) digestBlocks(stats *library.Stats, items []*library.Item) []slack.Block {
	counts := fmt.Sprintf("*%d* new, *%d* shortlisted, *%d* rejected, *%d* indexed. %d drafts, %d published.",
		stats.ItemsByStatus[library.StatusNew],
		stats.ItemsByStatus[library.StatusShortlisted],
		stats.ItemsByStatus[library.StatusRejected],
		stats.ItemsByStatus[library.StatusIndexed],
		stats.Drafts,
		stats.Publications)
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Pulse triage digest", false, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, counts, false, false), nil, nil),
	}
	if len(items) == 0 {
		return blocks
	}

	var lines []string
	for _, item := range items {
		line := fmt.Sprintf("- <%s|%s> (%s)", item.URL, clip(item.Title, 80), item.Source)
		if item.URL == "" {
			line = fmt.Sprintf("- %s (%s)", clip(item.Title, 80), item.Source)
		}
		if v, err := s.lib.GetVerdict(item.ID); err == nil && v != nil && v.Angle != "" {
			line += "\n    " + clip(v.Angle, 120)
		}
		lines = append(lines, line)
	}
	blocks = append(blocks,
		slack.NewDividerBlock(),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
			"*Shortlisted*\n"+strings.Join(lines, "\n"), false, false), nil, nil),
	)
	return blocks
}
