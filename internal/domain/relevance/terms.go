package relevance

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Terms returns lowercased word tokens of text whose rune length is at least minLen.
// Order and duplicates are kept.
func Terms(text string, minLen int) []string {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	out := words[:0]
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minLen {
			out = append(out, w)
		}
	}
	return out
}

// TermSet returns the distinct terms of text with rune length >= minLen.
func TermSet(text string, minLen int) map[string]struct{} {
	terms := Terms(text, minLen)
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// Words splits text on whitespace after lowercasing.
func Words(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// QueryLength counts whitespace-separated tokens of a query.
func QueryLength(query string) int { return len(strings.Fields(query)) }
