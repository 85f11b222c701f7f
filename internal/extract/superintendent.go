package extract

import (
	"regexp"
	"strings"
)

type Superintendent struct {
	Name             string `json:"name"`
	Cadre            string `json:"cadre"`
	EnrollmentNumber string `json:"enrollment_number"`
}

// SuperintendentTier is one strategy for locating the superintendent.
// Tiers are tried in order and the first one to return a value wins.
type SuperintendentTier struct {
	Name    string
	Extract func(markup string) (*Superintendent, bool)
}

const (
	TierCommentAnchor   = "comment_anchor"
	TierLabeledText     = "labeled_text"
	TierIsolatedComment = "isolated_comment"
)

// the portal uses "Enrollment Number" for hospital and retail records and
// "Registration Number" for manufacturers and wholesalers.
var (
	commentAnchorPattern = regexp.MustCompile(
		`(?is)<!--\s*<a class="list-group-item text-boldest"\s*>\s*Superintendent\s*:\s*([^<]+?)\s*<br\s*\/?>\s*Cadre:\s*([^<]+?)\s*<br\s*\/?>\s*(?:Enrollment Number|Registration Number):\s*([^<]+?)\s*<\/a>\s*-->`,
	)
	labeledTextPattern = regexp.MustCompile(
		`(?i)Superintendent\s*:\s*([^\n<]+)[\s\S]{0,200}?Cadre:\s*([^\n<]+)[\s\S]{0,200}?(?:Enrollment Number|Registration Number):\s*([^\n<]+)`,
	)
	superintendentCommentPattern = regexp.MustCompile(`(?is)<!--.*?Superintendent.*?-->`)
	superintendentNamePattern    = regexp.MustCompile(`(?i)Superintendent\s*:\s*([^\n<]+)`)
	superintendentCadrePattern   = regexp.MustCompile(`(?i)Cadre:\s*([^\n<]+)`)
	superintendentNumberPattern  = regexp.MustCompile(`(?i)(?:Enrollment Number|Registration Number):\s*([^\n<]+)`)
)

func tripleFrom(re *regexp.Regexp, markup string) (*Superintendent, bool) {
	m := re.FindStringSubmatch(markup)
	if len(m) < 4 {
		return nil, false
	}
	return &Superintendent{
		Name:             strings.TrimSpace(m[1]),
		Cadre:            strings.TrimSpace(m[2]),
		EnrollmentNumber: strings.TrimSpace(m[3]),
	}, true
}

func commentAnchor(markup string) (*Superintendent, bool) {
	return tripleFrom(commentAnchorPattern, markup)
}

func labeledText(markup string) (*Superintendent, bool) {
	return tripleFrom(labeledTextPattern, markup)
}

func isolatedComment(markup string) (*Superintendent, bool) {
	comment := superintendentCommentPattern.FindString(markup)
	if comment == "" {
		return nil, false
	}
	name, okName := firstGroup(superintendentNamePattern, comment, false)
	cadre, okCadre := firstGroup(superintendentCadrePattern, comment, false)
	number, okNumber := firstGroup(superintendentNumberPattern, comment, false)
	if !okName || !okCadre || !okNumber {
		return nil, false
	}
	return &Superintendent{Name: name, Cadre: cadre, EnrollmentNumber: number}, true
}

// SuperintendentTiers is the ordered fallback list. New layout variants
// are supported by appending a tier.
var SuperintendentTiers = []SuperintendentTier{
	{Name: TierCommentAnchor, Extract: commentAnchor},
	{Name: TierLabeledText, Extract: labeledText},
	{Name: TierIsolatedComment, Extract: isolatedComment},
}

// ExtractSuperintendent returns the superintendent and the name of the tier
// that found it, or nil when the facility has none.
func ExtractSuperintendent(markup string) (*Superintendent, string) {
	for _, tier := range SuperintendentTiers {
		if s, ok := tier.Extract(markup); ok {
			return s, tier.Name
		}
	}
	return nil, ""
}
