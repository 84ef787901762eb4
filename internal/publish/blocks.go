package publish

import (
	"regexp"
	"strings"

	"github.com/jomei/notionapi"
)

// notionTextLimit is the API cap on a single rich text content string.
const notionTextLimit = 2000

var (
	headingLine  = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	numberedItem = regexp.MustCompile(`^\d+[.)]\s+`)
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
)

// =============================================================================
// MARKDOWN -> NOTION BLOCKS
// =============================================================================

// markdownBlocks converts the markdown subset the writers emit into Notion
// blocks: headings, paragraphs, bulleted and numbered lists, quotes,
// dividers and fenced code. Notion has no heading levels past three, so
// deeper headings flatten to heading 3. A bare # without a following space
// is a hashtag, not a heading, and stays in its paragraph.
func markdownBlocks(markdown string) []notionapi.Block {
	var blocks []notionapi.Block
	var para []string
	var quote []string

	flushPara := func() {
		if len(para) == 0 {
			return
		}
		blocks = append(blocks, paragraphBlock(strings.Join(para, " ")))
		para = nil
	}
	flushQuote := func() {
		if len(quote) == 0 {
			return
		}
		blocks = append(blocks, quoteBlock(strings.Join(quote, "\n")))
		quote = nil
	}
	flush := func() {
		flushPara()
		flushQuote()
	}

	lines := strings.Split(markdown, "\n")
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])

		if strings.HasPrefix(trimmed, "```") {
			flush()
			lang := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			var code []string
			for i++; i < len(lines); i++ {
				if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
					break
				}
				code = append(code, lines[i])
			}
			blocks = append(blocks, codeBlock(strings.Join(code, "\n"), lang))
			continue
		}

		switch {
		case trimmed == "":
			flush()
		case trimmed == "---" || trimmed == "***" || trimmed == "___":
			flush()
			blocks = append(blocks, dividerBlock())
		case headingLine.MatchString(trimmed):
			flush()
			m := headingLine.FindStringSubmatch(trimmed)
			blocks = append(blocks, headingBlock(len(m[1]), strings.TrimSpace(m[2])))
		case strings.HasPrefix(trimmed, "> "):
			flushPara()
			quote = append(quote, strings.TrimPrefix(trimmed, "> "))
		case trimmed == ">":
			flushPara()
			quote = append(quote, "")
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "+ "):
			flush()
			blocks = append(blocks, bulletBlock(strings.TrimSpace(trimmed[2:])))
		case numberedItem.MatchString(trimmed):
			flush()
			blocks = append(blocks, numberBlock(numberedItem.ReplaceAllString(trimmed, "")))
		default:
			flushQuote()
			para = append(para, trimmed)
		}
	}
	flush()
	return blocks
}

// richText splits markdown links out of text so they become Notion link
// spans, chunking everything at the API's per-span limit.
func richText(text string) []notionapi.RichText {
	var spans []notionapi.RichText
	rest := text
	for {
		loc := markdownLink.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		if before := rest[:loc[0]]; before != "" {
			spans = append(spans, plainSpans(before)...)
		}
		label := rest[loc[2]:loc[3]]
		url := rest[loc[4]:loc[5]]
		spans = append(spans, notionapi.RichText{
			Text: &notionapi.Text{
				Content: label,
				Link:    &notionapi.Link{Url: url},
			},
		})
		rest = rest[loc[1]:]
	}
	if rest != "" {
		spans = append(spans, plainSpans(rest)...)
	}
	if len(spans) == 0 {
		spans = plainSpans("")
	}
	return spans
}

func plainSpans(text string) []notionapi.RichText {
	runes := []rune(text)
	if len(runes) <= notionTextLimit {
		return []notionapi.RichText{{Text: &notionapi.Text{Content: text}}}
	}
	var spans []notionapi.RichText
	for len(runes) > 0 {
		n := notionTextLimit
		if len(runes) < n {
			n = len(runes)
		}
		spans = append(spans, notionapi.RichText{Text: &notionapi.Text{Content: string(runes[:n])}})
		runes = runes[n:]
	}
	return spans
}

// =============================================================================
// BLOCK CONSTRUCTORS
// =============================================================================

func basicBlock(t notionapi.BlockType) notionapi.BasicBlock {
	return notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: t}
}

func paragraphBlock(text string) notionapi.Block {
	return notionapi.ParagraphBlock{
		BasicBlock: basicBlock(notionapi.BlockTypeParagraph),
		Paragraph:  notionapi.Paragraph{RichText: richText(text)},
	}
}

func headingBlock(level int, text string) notionapi.Block {
	rich := richText(text)
	switch level {
	case 1:
		return notionapi.Heading1Block{
			BasicBlock: basicBlock(notionapi.BlockTypeHeading1),
			Heading1:   notionapi.Heading{RichText: rich},
		}
	case 2:
		return notionapi.Heading2Block{
			BasicBlock: basicBlock(notionapi.BlockTypeHeading2),
			Heading2:   notionapi.Heading{RichText: rich},
		}
	default:
		return notionapi.Heading3Block{
			BasicBlock: basicBlock(notionapi.BlockTypeHeading3),
			Heading3:   notionapi.Heading{RichText: rich},
		}
	}
}

func bulletBlock(text string) notionapi.Block {
	return notionapi.BulletedListItemBlock{
		BasicBlock:       basicBlock(notionapi.BlockTypeBulletedListItem),
		BulletedListItem: notionapi.ListItem{RichText: richText(text)},
	}
}

func numberBlock(text string) notionapi.Block {
	return notionapi.NumberedListItemBlock{
		BasicBlock:       basicBlock(notionapi.BlockTypeNumberedListItem),
		NumberedListItem: notionapi.ListItem{RichText: richText(text)},
	}
}

func quoteBlock(text string) notionapi.Block {
	return notionapi.QuoteBlock{
		BasicBlock: basicBlock(notionapi.BlockTypeQuote),
		Quote:      notionapi.Quote{RichText: richText(text)},
	}
}

func dividerBlock() notionapi.Block {
	return notionapi.DividerBlock{
		BasicBlock: basicBlock(notionapi.BlockTypeDivider),
	}
}

func codeBlock(code, language string) notionapi.Block {
	if language == "" {
		language = "plain text"
	}
	return notionapi.CodeBlock{
		BasicBlock: basicBlock(notionapi.BlockTypeCode),
		Code: notionapi.Code{
			RichText: plainSpans(code),
			Language: language,
		},
	}
}
