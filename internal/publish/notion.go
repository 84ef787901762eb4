package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jomei/notionapi"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/logging"
)

// Property names the content calendar database is expected to carry.
const (
	notionTitleProp  = "Name"
	notionStatusProp = "Status"
	notionTagsProp   = "Tags"
	notionURLProp    = "Source"
)

// notionBatchLimit caps block children per API call; longer drafts append
// the remainder in batches.
const notionBatchLimit = 100

// notionAPI is the slice of the Notion client the channel uses.
type notionAPI interface {
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	AppendBlocks(ctx context.Context, id notionapi.BlockID, req *notionapi.AppendBlockChildrenRequest) (*notionapi.AppendBlockChildrenResponse, error)
}

type notionClient struct {
	c *notionapi.Client
}

func (n notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return n.c.Page.Create(ctx, req)
}

func (n notionClient) AppendBlocks(ctx context.Context, id notionapi.BlockID, req *notionapi.AppendBlockChildrenRequest) (*notionapi.AppendBlockChildrenResponse, error) {
	return n.c.Block.AppendChildren(ctx, id, req)
}

// =============================================================================
// NOTION CHANNEL
// =============================================================================

// notionChannel files drafts as pages in a Notion database.
type notionChannel struct {
	cfg *config.Config
	api notionAPI // built lazily from config; tests inject a fake
}

func newNotionChannel(cfg *config.Config) *notionChannel {
	return &notionChannel{cfg: cfg}
}

func (n *notionChannel) Name() string { return library.ChannelNotion }

func (n *notionChannel) client() (notionAPI, error) {
	if n.api != nil {
		return n.api, nil
	}
	nc := n.cfg.Publish.Notion
	if !nc.IsConfigured() {
		return nil, errors.New("notion is not configured (set publish.notion.token and database_id, or NOTION_TOKEN)")
	}
	n.api = notionClient{c: notionapi.NewClient(notionapi.Token(nc.Token),
		notionapi.WithHTTPClient(&http.Client{Timeout: n.cfg.GetPublishTimeout()}))}
	return n.api, nil
}

// Publish creates a database page titled after the draft with the body
// converted to blocks. The create call carries the first hundred blocks;
// anything beyond that appends afterwards.
func (n *notionChannel) Publish(ctx context.Context, draft *library.Draft, dryRun bool) (*Receipt, error) {
	markdown, err := draftMarkdown(draft)
	if err != nil {
		return nil, err
	}
	blocks := markdownBlocks(markdown)

	if dryRun {
		return &Receipt{
			Channel: n.Name(),
			DryRun:  true,
			Summary: fmt.Sprintf("notion: would create page %q with %d blocks in database %s",
				draft.Title, len(blocks), n.cfg.Publish.Notion.DatabaseID),
		}, nil
	}

	api, err := n.client()
	if err != nil {
		return nil, err
	}

	first := blocks
	var rest []notionapi.Block
	if len(blocks) > notionBatchLimit {
		first, rest = blocks[:notionBatchLimit], blocks[notionBatchLimit:]
	}

	page, err := api.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(n.cfg.Publish.Notion.DatabaseID),
		},
		Properties: pageProperties(draft),
		Children:   first,
	})
	if err != nil {
		return nil, fmt.Errorf("create notion page: %w", err)
	}

	for len(rest) > 0 {
		batch := rest
		if len(batch) > notionBatchLimit {
			batch = batch[:notionBatchLimit]
		}
		rest = rest[len(batch):]
		if _, err := api.AppendBlocks(ctx, notionapi.BlockID(page.ID), &notionapi.AppendBlockChildrenRequest{
			Children: batch,
		}); err != nil {
			return nil, fmt.Errorf("append notion blocks: %w", err)
		}
	}

	logging.Publish("Notion page %s created for draft %s (%d blocks)", page.ID, draft.ID, len(blocks))
	return &Receipt{
		Channel:     n.Name(),
		ExternalRef: string(page.ID),
		URL:         page.URL,
		Summary:     fmt.Sprintf("notion: created %s", page.URL),
	}, nil
}

func pageProperties(draft *library.Draft) notionapi.Properties {
	title := draft.Title
	if title == "" {
		title = draft.Topic
	}
	props := notionapi.Properties{
		notionTitleProp: notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
		},
		notionStatusProp: notionapi.SelectProperty{
			Select: notionapi.Option{Name: "Published"},
		},
		notionTagsProp: notionapi.MultiSelectProperty{
			MultiSelect: []notionapi.Option{{Name: draft.Kind}},
		},
	}
	if len(draft.Citations) > 0 && draft.Citations[0].URL != "" {
		props[notionURLProp] = notionapi.URLProperty{URL: draft.Citations[0].URL}
	}
	return props
}
