package writer

import "text/template"

// promptData is what every scaffold renders with.
type promptData struct {
	Audience     string
	Tone         string
	Language     string
	Topic        string // the drafting request (item angle or free-form topic)
	Hook         string // verdict hook when drafting from an item
	Sources      string // numbered source block
	SlideCount   int
	MaxPostChars int
}

const systemScaffold = `You are the staff writer for a medical content pipeline. You turn peer-reviewed evidence into clear, accurate content.

Audience: {{.Audience}}
Tone: {{.Tone}}
Language: {{.Language}}

Rules:
- Ground every factual claim in the numbered sources and cite it with the source number in brackets, like [1] or [2].
- Never invent findings, effect sizes, or citations. If the sources do not support a claim, leave it out.
- State evidence levels plainly (meta-analysis, RCT, observational) instead of hedging with vague qualifiers.
- No medical advice framing. Describe what the evidence shows, not what the reader should do.`

var kindScaffolds = map[string]string{
	"newsletter": `Write a newsletter issue about: {{.Topic}}
{{if .Hook}}Suggested hook: {{.Hook}}
{{end}}
Structure: a # title line, a short opening that earns attention, 2-4 sections with ## headings walking through the evidence, and a closing takeaway. Aim for 600-900 words of markdown.

{{.Sources}}`,

	"thread": `Write an X/Twitter thread about: {{.Topic}}
{{if .Hook}}Suggested hook: {{.Hook}}
{{end}}
Each post must stand alone and fit in {{.MaxPostChars}} characters. Open with the strongest finding, one idea per post, end with the caveat or limitation worth knowing. Separate posts with blank lines. Do not number the posts.

{{.Sources}}`,

	"linkedin": `Write a LinkedIn post about: {{.Topic}}
{{if .Hook}}Suggested hook: {{.Hook}}
{{end}}
Open with a one-line hook, then short paragraphs (1-2 sentences each) walking through what the evidence found and why it matters professionally. 150-300 words, no hashtag walls (3 at most, at the end).

{{.Sources}}`,

	"carousel": `Write a carousel slide script about: {{.Topic}}
{{if .Hook}}Suggested hook: {{.Hook}}
{{end}}
Respond with a single JSON object and no other text:
{
  "hook": "<cover slide line that stops the scroll>",
  "slides": [{"title": "<short slide headline>", "body": "<the point, 1-3 short sentences>"}, ...],
  "cta": "<closing call to action>"
}

Use about {{.SlideCount}} content slides. One finding per slide, building to the takeaway. Keep slide titles under 80 characters and bodies under 350.

{{.Sources}}`,

	"explainer": `Write a long-form explainer about: {{.Topic}}
{{if .Hook}}Suggested hook: {{.Hook}}
{{end}}
Structure: a # title line, what question the evidence answers, how the studies were designed, what they found (with numbers), what the limitations are, and what remains open. Write for a reader who wants the mechanism, not just the headline. Markdown, 1000-1500 words.

{{.Sources}}`,
}

var (
	systemTemplate *template.Template
	kindTemplates  = make(map[string]*template.Template)
)

func init() {
	systemTemplate = template.Must(template.New("system").Parse(systemScaffold))
	for kind, scaffold := range kindScaffolds {
		kindTemplates[kind] = template.Must(template.New(kind).Parse(scaffold))
	}
}
