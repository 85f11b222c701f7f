package extract

import (
	"encoding/json"
	"fmt"
	"regexp"

	"ppbverify/lib/htmlutil"
)

var relPattern = regexp.MustCompile(`rel='([^']+)'`)

type tokenTier struct {
	name string
	find func(markup string) (string, bool)
}

var tokenTiers = []tokenTier{
	{name: "rel_attribute", find: func(markup string) (string, bool) {
		return firstGroup(relPattern, markup, false)
	}},
	{name: "anchor_rel", find: func(markup string) (string, bool) {
		doc, err := htmlutil.Parse(markup)
		if err != nil {
			return "", false
		}
		return htmlutil.FirstAttr(doc.Find("a[rel]"), "rel")
	}},
}

// RecordToken returns the opaque record token the portal places in the
// rel attribute of a result row's "View Details" anchor.
func RecordToken(markup string) (string, bool) {
	for _, tier := range tokenTiers {
		if token, ok := tier.find(markup); ok {
			return token, true
		}
	}
	return "", false
}

// FacilitySearch is the DataTables payload of a facility search.
type FacilitySearch struct {
	Data [][]any `json:"data"`
}

// Rows is the number of matched facilities.
func (s FacilitySearch) Rows() int {
	return len(s.Data)
}

// Token extracts the record token from the 5th column of the first row.
func (s FacilitySearch) Token() (string, bool) {
	if len(s.Data) == 0 || len(s.Data[0]) <= 4 || s.Data[0][4] == nil {
		return "", false
	}
	snippet, ok := s.Data[0][4].(string)
	if !ok {
		snippet = fmt.Sprint(s.Data[0][4])
	}
	if snippet == "" {
		return "", false
	}
	return RecordToken(snippet)
}

func ParseFacilitySearch(body []byte) (FacilitySearch, error) {
	var out FacilitySearch
	if err := json.Unmarshal(body, &out); err != nil {
		return FacilitySearch{}, fmt.Errorf("decode facility search: %w", err)
	}
	return out, nil
}
