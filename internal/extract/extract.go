// Package extract pulls structured license records out of the markup
// returned by the PPB portal. Every field is matched on its own: a field
// that cannot be located is left empty and the caller decides whether the
// record is complete enough to use.
package extract

import (
	"regexp"
	"strings"

	"ppbverify/lib/textutil"
)

type field struct {
	name    string
	pattern *regexp.Regexp
	// collapse internal whitespace runs of the captured value to single spaces.
	collapse bool
}

func (f field) find(text string) (string, bool) {
	return firstGroup(f.pattern, text, f.collapse)
}

func firstGroup(re *regexp.Regexp, text string, collapse bool) (string, bool) {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	value := strings.TrimSpace(m[1])
	if collapse {
		value = textutil.Collapse(value)
	}
	if value == "" {
		return "", false
	}
	return value, true
}

// matchAll runs every field against text and calls set for each field found.
func matchAll(fields []field, text string, set func(name, value string)) {
	for _, f := range fields {
		if value, ok := f.find(text); ok {
			set(f.name, value)
		}
	}
}
