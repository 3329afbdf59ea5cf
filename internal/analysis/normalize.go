package analysis

import "strings"

// stopTerms mirrors the generic/stop word list in the extraction prompt. A
// topic reduced to nothing but stop terms is dropped entirely.
var stopTerms = map[string]bool{
	"good": true, "bad": true, "nice": true, "great": true, "love": true,
	"hate": true, "use": true, "using": true, "because": true, "from": true,
	"thing": true, "stuff": true, "help": true, "thanks": true, "thank": true,
	"issue": true, "problem": true, "very": true, "really": true, "quite": true,
	"just": true, "also": true, "but": true, "and": true, "the": true,
	"this": true, "that": true, "have": true, "has": true, "get": true,
	"got": true, "make": true, "made": true, "work": true, "works": true,
	"working": true,
}

// NormalizeTopic canonicalizes a topic string: lowercase, punctuation
// stripped except internal apostrophes, stop terms removed, at most two
// tokens. Returns "" when nothing meaningful remains. The ledger's dedup
// only works if every caller routes topics through here.
func NormalizeTopic(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '\'':
			// keep only internal apostrophes: letter on both sides
			if i > 0 && i < len(runes)-1 && isLetter(runes[i-1]) && isLetter(runes[i+1]) {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(' ')
		}
	}

	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if stopTerms[tok] {
			continue
		}
		tokens = append(tokens, tok)
		if len(tokens) == 2 {
			break
		}
	}

	return strings.Join(tokens, " ")
}

// NormalizeTopics normalizes each entry, dropping empties and duplicates
// while preserving order.
func NormalizeTopics(topics []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range topics {
		n := NormalizeTopic(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func isLetter(r rune) bool {
	return r >= 'a' && r <= 'z'
}
