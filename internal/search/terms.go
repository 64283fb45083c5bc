package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minTermLen = 3

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "can": {}, "companies": {}, "company": {}, "do": {}, "does": {},
	"find": {}, "for": {}, "from": {}, "give": {}, "has": {}, "have": {}, "how": {},
	"i": {}, "in": {}, "into": {}, "is": {}, "it": {}, "list": {}, "me": {}, "my": {},
	"of": {}, "on": {}, "or": {}, "people": {}, "show": {}, "some": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"to": {}, "was": {}, "what": {}, "which": {}, "who": {}, "with": {}, "work": {},
	"works": {}, "working": {}, "you": {}, "your": {},
}

// Fold strips diacritics and lowercases s, collapsing runs of whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// ExtractTerms returns the distinct lowercase search terms of query: tokens
// of at least three characters that are not stop words, plus capitalized
// words of any length (proper nouns and acronyms such as "AI").
func ExtractTerms(query string) []string {
	seen := map[string]struct{}{}
	var terms []string
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}

	for _, raw := range tokenize(query) {
		folded := Fold(raw)
		if folded == "" {
			continue
		}
		if _, stop := stopWords[folded]; stop {
			continue
		}
		r := []rune(raw)
		proper := len(r) >= 2 && unicode.IsUpper(r[0])
		if len([]rune(folded)) >= minTermLen || proper {
			add(folded)
		}
	}
	return terms
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
