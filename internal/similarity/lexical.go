package similarity

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"this": true, "that": true, "these": true, "those": true, "it": true,
}

// Tokenize lowercases text and splits it on anything that is not a letter,
// digit or underscore. Stopwords and single-character tokens are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// Lexical returns the fraction of distinct query tokens that occur in text,
// in [0, 1]. A query without usable tokens scores 0 against everything.
func Lexical(text, query string) float64 {
	q := Tokenize(query)
	if len(q) == 0 {
		return 0
	}
	present := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		present[tok] = struct{}{}
	}
	seen := make(map[string]struct{}, len(q))
	matched := 0
	for _, tok := range q {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := present[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(seen))
}

// Hybrid blends a lexical and a vector score. weight is the lexical share.
func Hybrid(lexical, vector, weight float64) float64 {
	return weight*lexical + (1-weight)*vector
}

// MetadataText joins every string value found in a decoded JSON document,
// descending into arrays and objects. Hybrid search scores this text.
func MetadataText(doc any) string {
	var b strings.Builder
	collectText(&b, doc)
	return b.String()
}

func collectText(b *strings.Builder, v any) {
	switch x := v.(type) {
	case string:
		b.WriteString(x)
		b.WriteByte(' ')
	case []any:
		for _, el := range x {
			collectText(b, el)
		}
	case map[string]any:
		for _, el := range x {
			collectText(b, el)
		}
	}
}
