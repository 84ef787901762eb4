package retrieval

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase terms for sparse scoring.
// Punctuation separates terms, hyphens and digits survive inside them
// (glp-1, covid-19, hba1c), and stopwords are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// stopwords are prose terms too common to carry signal. Medical
// vocabulary stays in: "trial", "risk", or "patients" are exactly the
// words queries are made of.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "at": true, "by": true, "from": true, "as": true,
	"into": true, "through": true, "during": true, "before": true, "after": true,
	"above": true, "below": true, "up": true, "down": true, "out": true,
	"and": true, "but": true, "or": true, "nor": true, "so": true, "yet": true,
	"if": true, "then": true, "else": true, "when": true, "where": true,
	"why": true, "how": true, "all": true, "each": true, "every": true,
	"both": true, "few": true, "more": true, "most": true, "other": true,
	"some": true, "such": true, "no": true, "not": true, "only": true,
	"own": true, "same": true, "than": true, "too": true, "very": true,
	"can": true, "just": true, "now": true,
	"this": true, "that": true, "these": true, "those": true,
	"it": true, "its": true, "we": true, "they": true, "their": true,
	"there": true, "here": true, "also": true, "between": true, "among": true,
	"our": true, "which": true, "who": true, "whom": true, "what": true,
}
