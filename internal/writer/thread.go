package writer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// threadNumbering matches the post numbering the model sometimes adds
// despite instructions ("1/ ", "2. ", "3) "). The trailing space is
// required so dose-style openers like "3.5 mg" survive.
var threadNumbering = regexp.MustCompile(`^\s*\d+\s*[/.)]\s+`)

// splitThread turns the model response into numbered posts that each fit
// the per-post character cap. Paragraphs are posts; oversized ones split
// at sentence boundaries, and an oversized sentence splits at the last
// word that fits.
func splitThread(response string, maxChars int) string {
	// Room for the "NN/ " prefix
	budget := maxChars - 4
	if budget < 20 {
		budget = 20
	}

	var posts []string
	for _, para := range strings.Split(strings.TrimSpace(response), "\n\n") {
		para = strings.TrimSpace(threadNumbering.ReplaceAllString(strings.TrimSpace(para), ""))
		if para == "" {
			continue
		}
		para = strings.Join(strings.Fields(para), " ")

		if utf8.RuneCountInString(para) <= budget {
			posts = append(posts, para)
			continue
		}
		posts = append(posts, packSentences(splitSentences(para), budget)...)
	}

	for i, post := range posts {
		posts[i] = fmt.Sprintf("%d/ %s", i+1, post)
	}
	return strings.Join(posts, "\n\n")
}

// packSentences greedily fills posts up to the budget.
func packSentences(sentences []string, budget int) []string {
	var posts []string
	var current string

	flush := func() {
		if current != "" {
			posts = append(posts, current)
			current = ""
		}
	}

	for _, s := range sentences {
		if utf8.RuneCountInString(s) > budget {
			flush()
			posts = append(posts, splitAtWords(s, budget)...)
			continue
		}
		joined := s
		if current != "" {
			joined = current + " " + s
		}
		if utf8.RuneCountInString(joined) > budget {
			flush()
			current = s
		} else {
			current = joined
		}
	}
	flush()
	return posts
}

// splitSentences breaks text after sentence-ending punctuation.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)

	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if runes[i+1] == ' ' {
				sentences = append(sentences, strings.TrimSpace(string(runes[start:i+1])))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// splitAtWords hard-splits an oversized sentence, preferring word
// boundaries and falling back to a clean rune cut.
func splitAtWords(s string, budget int) []string {
	var parts []string
	words := strings.Fields(s)
	var current string

	for _, word := range words {
		for utf8.RuneCountInString(word) > budget {
			runes := []rune(word)
			parts = appendPart(parts, &current, string(runes[:budget]))
			word = string(runes[budget:])
		}

		joined := word
		if current != "" {
			joined = current + " " + word
		}
		if utf8.RuneCountInString(joined) > budget {
			parts = appendPart(parts, &current, "")
			current = word
		} else {
			current = joined
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}

func appendPart(parts []string, current *string, extra string) []string {
	if *current != "" {
		parts = append(parts, *current)
		*current = ""
	}
	if extra != "" {
		parts = append(parts, extra)
	}
	return parts
}
