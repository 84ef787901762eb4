package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/slack-go/slack"
	"github.com/wneessen/go-mail"

	"pulsepress/internal/config"
	"pulsepress/internal/library"
	"pulsepress/internal/writer"
)

func openPublishLibrary(t *testing.T) *library.Library {
	t.Helper()
	lib, err := library.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func publishConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Publish.Notion.DatabaseID = "db-1"
	cfg.Publish.Slack.Channel = "#content"
	cfg.Publish.Email.Host = "smtp.example.org"
	cfg.Publish.Email.From = "pulse@example.org"
	cfg.Publish.Email.To = []string{"team@example.org"}
	cfg.Publish.Email.SubjectPrefix = "[Pulse]"
	return cfg
}

func seedDraft(t *testing.T, lib *library.Library, status string) *library.Draft {
	t.Helper()
	draft := &library.Draft{
		Kind:  library.KindNewsletter,
		Title: "GLP-1 agonists and kidney outcomes",
		Topic: "semaglutide kidney trial",
		Content: "# This week\n\nSemaglutide slowed kidney disease progression in FLOW.\n\n" +
			"- eGFR decline halved\n- 24% fewer major kidney events",
		Citations: []library.Citation{
			{ItemID: "it-1", Title: "FLOW trial results", URL: "https://example.org/flow"},
		},
		Status: status,
	}
	if err := lib.SaveDraft(draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	return draft
}

// =============================================================================
// CHANNEL FAKES
// =============================================================================

type fakeNotion struct {
	creates []*notionapi.PageCreateRequest
	appends []*notionapi.AppendBlockChildrenRequest
}

func (f *fakeNotion) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.creates = append(f.creates, req)
	return &notionapi.Page{ID: "page-123", URL: "https://notion.so/page-123"}, nil
}

func (f *fakeNotion) AppendBlocks(_ context.Context, _ notionapi.BlockID, req *notionapi.AppendBlockChildrenRequest) (*notionapi.AppendBlockChildrenResponse, error) {
	f.appends = append(f.appends, req)
	return &notionapi.AppendBlockChildrenResponse{}, nil
}

type slackPost struct {
	channel string
	options []slack.MsgOption
}

type fakeSlack struct {
	posts   []slackPost
	uploads []slack.UploadFileV2Parameters
}

func (f *fakeSlack) PostMessageContext(_ context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.posts = append(f.posts, slackPost{channel: channelID, options: options})
	return "C123", fmt.Sprintf("1724560000.%06d", len(f.posts)), nil
}

func (f *fakeSlack) UploadFileV2Context(_ context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	f.uploads = append(f.uploads, params)
	return &slack.FileSummary{ID: "F123"}, nil
}

// testPublisher wires a publisher with fake channel clients so no test
// touches the network.
func testPublisher(t *testing.T) (*Publisher, *library.Library, *fakeNotion, *fakeSlack, *[]*mail.Msg) {
	t.Helper()
	lib := openPublishLibrary(t)
	p := NewPublisher(lib, publishConfig())

	notion := &fakeNotion{}
	p.channels[library.ChannelNotion].(*notionChannel).api = notion

	slackFake := &fakeSlack{}
	p.slack.api = slackFake

	var sent []*mail.Msg
	p.channels[library.ChannelEmail].(*emailChannel).send =
		func(_ context.Context, _ config.EmailConfig, msg *mail.Msg) error {
			sent = append(sent, msg)
			return nil
		}
	return p, lib, notion, slackFake, &sent
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

func TestPublish_NotionCreatesPageAndRecords(t *testing.T) {
	p, lib, notion, _, _ := testPublisher(t)
	draft := seedDraft(t, lib, library.DraftStatusApproved)

	receipt, err := p.Publish(context.Background(), draft.ID, library.ChannelNotion, Options{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if receipt.ExternalRef != "page-123" {
		t.Errorf("ExternalRef = %q, want page-123", receipt.ExternalRef)
	}
	if receipt.URL != "https://notion.so/page-123" {
		t.Errorf("URL = %q", receipt.URL)
	}

	if len(notion.creates) != 1 {
		t.Fatalf("creates = %d, want 1", len(notion.creates))
	}
	req := notion.creates[0]
	if req.Parent.DatabaseID != "db-1" {
		t.Errorf("database = %q, want db-1", req.Parent.DatabaseID)
	}
	title := req.Properties[notionTitleProp].(notionapi.TitleProperty)
	if got := title.Title[0].Text.Content; got != draft.Title {
		t.Errorf("page title = %q, want %q", got, draft.Title)
	}
	if len(req.Children) == 0 {
		t.Error("page created without body blocks")
	}

	pub, err := lib.GetPublication(draft.ID, library.ChannelNotion)
	if err != nil || pub == nil {
		t.Fatalf("GetPublication = %v, %v", pub, err)
	}
	if pub.ExternalRef != "page-123" {
		t.Errorf("recorded ref = %q", pub.ExternalRef)
	}

	got, err := lib.GetDraft(draft.ID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if got.Status != library.DraftStatusPublished {
		t.Errorf("draft status = %s, want published", got.Status)
	}
}

func TestPublish_RefusesUnapprovedDraft(t *testing.T) {
	p, lib, notion, _, _ := testPublisher(t)
	draft := seedDraft(t, lib, library.DraftStatusDraft)

	_, err := p.Publish(context.Background(), draft.ID, library.ChannelNotion, Options{})
	if err == nil {
		t.Fatal("expected error for unapproved draft")
	}
	if !strings.Contains(err.Error(), "approve it first") {
		t.Errorf("error = %v", err)
	}
	if len(notion.creates) != 0 {
		t.Errorf("channel was called despite refusal")
	}
}

func TestPublish_DryRunSkipsGatesAndRecording(t *testing.T) {
	// No fakes: a dry run must work without credentials or clients.
	lib := openPublishLibrary(t)
	p := NewPublisher(lib, publishConfig())
	draft := seedDraft(t, lib, library.DraftStatusDraft)

	receipt, err := p.Publish(context.Background(), draft.ID, library.ChannelNotion, Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !receipt.DryRun {
		t.Error("receipt not marked dry run")
	}
	if !strings.Contains(receipt.Summary, "would create page") {
		t.Errorf("summary = %q", receipt.Summary)
	}

	pub, err := lib.GetPublication(draft.ID, library.ChannelNotion)
	if err != nil {
		t.Fatalf("GetPublication: %v", err)
	}
	if pub != nil {
		t.Error("dry run recorded a publication")
	}
	got, _ := lib.GetDraft(draft.ID)
	if got.Status != library.DraftStatusDraft {
		t.Errorf("dry run changed draft status to %s", got.Status)
	}
}

func TestPublish_RefusesRepeatWithoutForce(t *testing.T) {
	p, lib, notion, _, _ := testPublisher(t)
	draft := seedDraft(t, lib, library.DraftStatusApproved)
	ctx := context.Background()

	if _, err := p.Publish(ctx, draft.ID, library.ChannelNotion, Options{}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	_, err := p.Publish(ctx, draft.ID, library.ChannelNotion, Options{})
	if err == nil {
		t.Fatal("expected refusal on repeat publish")
	}
	if !strings.Contains(err.Error(), "--force") {
		t.Errorf("error = %v", err)
	}
	if len(notion.creates) != 1 {
		t.Errorf("creates = %d after refused repeat, want 1", len(notion.creates))
	}
}

func TestPublish_ForceResends(t *testing.T) {
	p, lib, notion, _, _ := testPublisher(t)
	draft := seedDraft(t, lib, library.DraftStatusApproved)
	ctx := context.Background()

	if _, err := p.Publish(ctx, draft.ID, library.ChannelNotion, Options{}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if _, err := p.Publish(ctx, draft.ID, library.ChannelNotion, Options{Force: true}); err != nil {
		t.Fatalf("forced publish: %v", err)
	}
	if len(notion.creates) != 2 {
		t.Errorf("creates = %d, want 2", len(notion.creates))
	}

	pubs, err := lib.ListPublications(draft.ID)
	if err != nil {
		t.Fatalf("ListPublications: %v", err)
	}
	if len(pubs) != 1 {
		t.Errorf("publication rows = %d, want 1 (resend overwrites)", len(pubs))
	}
}

func TestPublish_UnknownChannel(t *testing.T) {
	p, lib, _, _, _ := testPublisher(t)
	draft := seedDraft(t, lib, library.DraftStatusApproved)

	_, err := p.Publish(context.Background(), draft.ID, "pigeon", Options{})
	if err == nil || !strings.Contains(err.Error(), "unknown channel") {
		t.Errorf("error = %v", err)
	}
}

func TestPublish_MissingDraft(t *testing.T) {
	p, _, _, _, _ := testPublisher(t)

	_, err := p.Publish(context.Background(), "nope", library.ChannelNotion, Options{})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v", err)
	}
}

// =============================================================================
// NOTION
// =============================================================================

func TestPublish_NotionBatchesLongDrafts(t *testing.T) {
	p, lib, notion, _, _ := testPublisher(t)

	var b strings.Builder
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "Paragraph %d of the long explainer.\n\n", i+1)
	}
	draft := &library.Draft{
		Kind:    library.KindExplainer,
		Title:   "A very long explainer",
		Content: b.String(),
		Status:  library.DraftStatusApproved,
	}
	if err := lib.SaveDraft(draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	if _, err := p.Publish(context.Background(), draft.ID, library.ChannelNotion, Options{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(notion.creates) != 1 {
		t.Fatalf("creates = %d", len(notion.creates))
	}
	if got := len(notion.creates[0].Children); got != notionBatchLimit {
		t.Errorf("create carried %d blocks, want %d", got, notionBatchLimit)
	}
	if len(notion.appends) != 1 {
		t.Fatalf("appends = %d, want 1", len(notion.appends))
	}
	if got := len(notion.appends[0].Children); got != 20 {
		t.Errorf("append carried %d blocks, want 20", got)
	}
}

// =============================================================================
// SLACK
// =============================================================================

func TestPublish_SlackPostsAndUploadsSlides(t *testing.T) {
	p, lib, _, slackFake, _ := testPublisher(t)

	script := writer.CarouselScript{
		Hook: "Five numbers on GLP-1 access",
		Slides: []writer.Slide{
			{Title: "Spending doubled", Body: "US spending on GLP-1s doubled in two years."},
			{Title: "Coverage lags", Body: "Fewer than half of state programs cover obesity use."},
		},
		CTA: "Follow for weekly evidence.",
	}
	content, _ := json.Marshal(script)
	draft := &library.Draft{
		Kind:    library.KindCarousel,
		Title:   "Five numbers on GLP-1 access",
		Content: string(content),
		Status:  library.DraftStatusApproved,
	}
	if err := lib.SaveDraft(draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	dir := t.TempDir()
	var files []interface{}
	for i := 1; i <= 2; i++ {
		path := filepath.Join(dir, fmt.Sprintf("slide-%02d.png", i))
		if err := os.WriteFile(path, []byte("png bytes"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		files = append(files, path)
	}
	if err := lib.SaveAsset(&library.Asset{
		DraftID: draft.ID,
		Kind:    library.AssetCarousel,
		Path:    dir,
		Meta:    map[string]interface{}{"files": files},
	}); err != nil {
		t.Fatalf("SaveAsset: %v", err)
	}

	receipt, err := p.Publish(context.Background(), draft.ID, library.ChannelSlack, Options{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if receipt.ExternalRef == "" {
		t.Error("no message ts recorded")
	}

	if len(slackFake.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(slackFake.posts))
	}
	if slackFake.posts[0].channel != "#content" {
		t.Errorf("channel = %q", slackFake.posts[0].channel)
	}
	if len(slackFake.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(slackFake.uploads))
	}
	up := slackFake.uploads[0]
	if up.ThreadTs != receipt.ExternalRef {
		t.Errorf("upload thread = %q, want %q", up.ThreadTs, receipt.ExternalRef)
	}
	if up.FileSize == 0 {
		t.Error("upload missing file size")
	}
	if up.Filename != "slide-01.png" {
		t.Errorf("upload filename = %q", up.Filename)
	}
}

// =============================================================================
// EMAIL
// =============================================================================

func TestPublish_EmailSendsAndRecords(t *testing.T) {
	p, lib, _, _, sent := testPublisher(t)
	draft := seedDraft(t, lib, library.DraftStatusApproved)

	receipt, err := p.Publish(context.Background(), draft.ID, library.ChannelEmail, Options{})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if receipt.ExternalRef == "" {
		t.Error("no message ID on receipt")
	}
	if len(*sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(*sent))
	}

	msg := (*sent)[0]
	subjects := msg.GetGenHeader(mail.HeaderSubject)
	if len(subjects) == 0 || subjects[0] != "[Pulse] GLP-1 agonists and kidney outcomes" {
		t.Errorf("subject = %v", subjects)
	}
	recipients, err := msg.GetRecipients()
	if err != nil {
		t.Fatalf("GetRecipients: %v", err)
	}
	if len(recipients) != 1 || recipients[0] != "team@example.org" {
		t.Errorf("recipients = %v", recipients)
	}

	pub, err := lib.GetPublication(draft.ID, library.ChannelEmail)
	if err != nil || pub == nil {
		t.Fatalf("GetPublication = %v, %v", pub, err)
	}
	if pub.ExternalRef != receipt.ExternalRef {
		t.Errorf("recorded ref %q does not match receipt %q", pub.ExternalRef, receipt.ExternalRef)
	}
}

// =============================================================================
// DIGEST
// =============================================================================

func TestNotify_PostsDigest(t *testing.T) {
	p, lib, _, slackFake, _ := testPublisher(t)

	for i, title := range []string{"FLOW kidney outcomes", "SELECT cardiovascular results"} {
		item := &library.Item{
			Source: "nejm",
			Kind:   "rss",
			URL:    fmt.Sprintf("https://example.org/item-%d", i+1),
			Title:  title,
			Status: library.StatusShortlisted,
		}
		if _, err := lib.UpsertItem(item); err != nil {
			t.Fatalf("UpsertItem: %v", err)
		}
		if i == 0 {
			if err := lib.SaveVerdict(&library.Verdict{
				ItemID: item.ID,
				Action: library.ActionShortlist,
				Angle:  "Kidney protection is the new headline claim",
			}); err != nil {
				t.Fatalf("SaveVerdict: %v", err)
			}
		}
	}

	receipt, err := p.Notify(context.Background(), false)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if receipt.Channel != library.ChannelSlack {
		t.Errorf("channel = %s", receipt.Channel)
	}
	if receipt.ExternalRef == "" {
		t.Error("no ts on digest receipt")
	}
	if len(slackFake.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(slackFake.posts))
	}
}

func TestNotify_DryRunNeedsNoClient(t *testing.T) {
	lib := openPublishLibrary(t)
	p := NewPublisher(lib, publishConfig())

	receipt, err := p.Notify(context.Background(), true)
	if err != nil {
		t.Fatalf("Notify dry run: %v", err)
	}
	if !receipt.DryRun || !strings.Contains(receipt.Summary, "digest") {
		t.Errorf("receipt = %+v", receipt)
	}
}
