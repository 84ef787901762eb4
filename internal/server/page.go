package server

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"

	"pulsepress/internal/library"
	"pulsepress/internal/writer"
)

// =============================================================================
// DRAFT PREVIEW PAGE
// =============================================================================

// draftPage is the rendered preview shell. The stylesheet stays inline so
// the page works as a screenshot target with no follow-up requests.
var draftPage = template.Must(template.New("draft").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { margin: 0; padding: 48px 24px; background: #f6f8fa; color: #1f2328;
         font: 17px/1.65 Georgia, 'Times New Roman', serif; }
  main { max-width: 680px; margin: 0 auto; background: #ffffff; padding: 40px 48px;
         border: 1px solid #d0d7de; border-radius: 8px; }
  h1, h2, h3 { line-height: 1.25; }
  a { color: #0969da; }
  blockquote { margin: 0; padding-left: 16px; border-left: 4px solid #d0d7de; color: #57606a; }
  code, pre { font-family: ui-monospace, 'SF Mono', monospace; font-size: 14px; background: #f6f8fa; }
  pre { padding: 12px 16px; overflow-x: auto; border-radius: 6px; }
  .meta { color: #57606a; font: 13px/1.5 system-ui, sans-serif;
          text-transform: uppercase; letter-spacing: 0.06em; margin-bottom: 24px; }
  ol.sources { color: #57606a; font-size: 15px; }
</style>
</head>
<body>
<main>
<p class="meta">{{.Kind}} &middot; {{.Status}}</p>
{{.Body}}
{{if .Citations}}<hr>
<p class="meta">Sources</p>
<ol class="sources">
{{range .Citations}}<li><a href="{{.URL}}">{{if .Title}}{{.Title}}{{else}}{{.URL}}{{end}}</a></li>
{{end}}</ol>
{{end}}</main>
</body>
</html>
`))

type draftPageData struct {
	Title     string
	Kind      string
	Status    string
	Body      template.HTML
	Citations []library.Citation
}

// handleDraftPage serves a draft as a styled HTML page. Carousel drafts
// hold slide JSON, so they flatten to headed sections first.
func (s *Server) handleDraftPage(c *gin.Context) {
	draft, err := s.lib.GetDraft(c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, library.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.String(status, "%v", err)
		return
	}

	markdown := draft.Content
	if draft.Kind == library.KindCarousel {
		if script, err := writer.ParseCarousel(draft.Content); err == nil {
			markdown = script.Markdown()
		}
	}

	var body bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &body); err != nil {
		c.String(http.StatusInternalServerError, "render draft: %v", err)
		return
	}

	title := draft.Title
	if title == "" {
		title = draft.Topic
	}
	var page bytes.Buffer
	if err := draftPage.Execute(&page, draftPageData{
		Title:     title,
		Kind:      draft.Kind,
		Status:    draft.Status,
		Body:      template.HTML(body.String()),
		Citations: draft.Citations,
	}); err != nil {
		c.String(http.StatusInternalServerError, "render page: %v", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page.Bytes())
}
