package chunk

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenRunes is the shortest token kept in a feature set.
const MinTokenRunes = 3

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Features is the cheap text signal a chunk carries: its token set plus
// simple length counts. No embedding is computed.
type Features struct {
	Tokens []string // sorted, unique
	Chars  int
	Words  int
}

// Normalize trims, lowercases, and collapses internal whitespace.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// Extract derives Features from raw text.
func Extract(text string) Features {
	norm := Normalize(text)
	return Features{
		Tokens: Tokens(norm),
		Chars:  CountChars(text),
		Words:  len(strings.Fields(norm)),
	}
}

// Tokens splits text into a sorted set of lowercase alphanumeric tokens,
// dropping anything shorter than MinTokenRunes.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < MinTokenRunes {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// charsPerToken is the rough rune count of one model token.
const charsPerToken = 4

// EstimateTokens estimates the token count as chars/4, rounded up.
func EstimateTokens(text string) int {
	return estimate(CountChars(text))
}

// EstimatedTokens is EstimateTokens for the extracted text.
func (f Features) EstimatedTokens() int {
	return estimate(f.Chars)
}

func estimate(chars int) int {
	return (chars + charsPerToken - 1) / charsPerToken
}

// Overlap returns |a ∩ b| for two sorted token sets.
func Overlap(a, b []string) int {
	i, j, n := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}

// Jaccard returns |a ∩ b| / |a ∪ b| for two sorted token sets.
// Two empty sets are identical.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := Overlap(a, b)
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
