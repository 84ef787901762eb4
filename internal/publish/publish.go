// Package publish delivers approved drafts to Notion, Slack and email and
// posts triage digests to Slack. Deliveries are idempotent per draft and
// channel: a recorded publication refuses a resend unless forced, and a
// successful delivery flips the draft to published.
package publish

import (
	"context"
	"fmt"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// Options modify a single publish call.
type Options struct {
	// DryRun builds the full payload and reports what would go out
	// without touching the channel API or recording anything.
	DryRun bool

	// Force resends even when the draft already went to this channel.
	Force bool
}

// Receipt reports one delivery.
type Receipt struct {
	Channel     string
	ExternalRef string // notion page ID, slack ts, email message ID
	URL         string // where the content landed, when the channel has one
	DryRun      bool
	Summary     string
}

// channel is one delivery target. Implementations build their payload
// before asking for credentials so dry runs work unconfigured.
type channel interface {
	Name() string
	Publish(ctx context.Context, draft *library.Draft, dryRun bool) (*Receipt, error)
}

// =============================================================================
// PUBLISHER
// =============================================================================

// Publisher routes drafts to their delivery channels and keeps the
// publication log.
type Publisher struct {
	lib      *library.Library
	channels map[string]channel
	slack    *slackChannel // digest entry point
}

// NewPublisher wires all three channels. Unconfigured channels stay
// registered; they fail with a setup hint only when a real send needs
// credentials.
func NewPublisher(lib *library.Library, cfg *config.Config) *Publisher {
	slack := newSlackChannel(lib, cfg)
	return &Publisher{
		lib:   lib,
		slack: slack,
		channels: map[string]channel{
			library.ChannelNotion: newNotionChannel(cfg),
			library.ChannelSlack:  slack,
			library.ChannelEmail:  newEmailChannel(cfg),
		},
	}
}

// Publish delivers one draft to one channel. Real sends require the draft
// to be approved and refuse a repeat delivery unless opts.Force is set;
// dry runs skip both gates so a payload can be inspected at any stage.
func (p *Publisher) Publish(ctx context.Context, draftID, channelName string, opts Options) (*Receipt, error) {
	ch, ok := p.channels[channelName]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q (notion, slack or email)", channelName)
	}
	draft, err := p.lib.GetDraft(draftID)
	if err != nil {
		return nil, err
	}

	if !opts.DryRun {
		if draft.Status != library.DraftStatusApproved && draft.Status != library.DraftStatusPublished {
			return nil, fmt.Errorf("draft %s is %s; approve it first (pulse drafts approve %s)",
				draft.ID, draft.Status, draft.ID)
		}
		existing, err := p.lib.GetPublication(draft.ID, channelName)
		if err != nil {
			return nil, err
		}
		if existing != nil && !opts.Force {
			return nil, fmt.Errorf("draft %s already went to %s on %s (ref %s); use --force to resend",
				draft.ID, channelName, existing.PublishedAt.Format("2006-01-02"), existing.ExternalRef)
		}
	}

	receipt, err := ch.Publish(ctx, draft, opts.DryRun)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		logging.Publish("Dry run: %s", receipt.Summary)
		return receipt, nil
	}

	if err := p.lib.RecordPublication(&library.Publication{
		DraftID:     draft.ID,
		Channel:     channelName,
		ExternalRef: receipt.ExternalRef,
	}); err != nil {
		return nil, fmt.Errorf("record publication: %w", err)
	}
	if draft.Status != library.DraftStatusPublished {
		if err := p.lib.UpdateDraftStatus(draft.ID, library.DraftStatusPublished); err != nil {
			return nil, fmt.Errorf("mark draft published: %w", err)
		}
	}
	logging.Publish("Draft %s -> %s (ref %s)", draft.ID, channelName, receipt.ExternalRef)
	return receipt, nil
}

// Notify posts the triage digest to the configured Slack channel.
func (p *Publisher) Notify(ctx context.Context, dryRun bool) (*Receipt, error) {
	return p.slack.Digest(ctx, dryRun)
}
