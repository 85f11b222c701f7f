package textutil

import (
	"regexp"
	"sort"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Collapse trims s and replaces every whitespace run with a single space.
func Collapse(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// SortedTokens lowercases a name and sorts its words so that "GLORIA CHANGWONY"
// and "Changwony Gloria" produce the same string.
func SortedTokens(name string) string {
	tokens := strings.Fields(strings.ToLower(name))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
