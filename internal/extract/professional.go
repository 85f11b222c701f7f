package extract

import (
	"regexp"
	"strings"

	"ppbverify/lib/htmlutil"
)

// Professional is a pharmacist or pharmtech record. Name and LicenseNumber
// come from the search row, the other fields from the details page.
type Professional struct {
	FullName              string `json:"full_name,omitempty"`
	Name                  string `json:"name,omitempty"`
	PracticeLicenseNumber string `json:"practice_license_number,omitempty"`
	LicenseNumber         string `json:"license_number,omitempty"`
	Status                string `json:"status,omitempty"`
	ValidTill             string `json:"valid_till,omitempty"`
	PhotoURL              string `json:"photo_url,omitempty"`
	VerifiedAt            string `json:"verified_at,omitempty"`
}

// License number prefixes per register.
const (
	PrefixPharmacist = "P"
	PrefixPharmtech  = "PT"
)

// LicenseFormat is the license number grammar shared by both registers:
// prefix, a year from 2023 to 2029, one letter, five digits.
var LicenseFormat = regexp.MustCompile(`(?i)^(P|PT)20(2[3-9])[A-Z]\d{5}$`)

// LicenseFormatFor is the grammar restricted to one register.
func LicenseFormatFor(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(prefix) + `202[3-9][A-Z]\d{5}$`)
}

const noRecordsMarker = "No records found"

// NoRecords reports whether a register search returned nothing.
func NoRecords(markup string) bool {
	return strings.TrimSpace(markup) == "" || strings.Contains(markup, noRecordsMarker)
}

// ProfessionalParser parses the search row and details page of one register.
type ProfessionalParser struct {
	prefix       string
	searchFields []field
	detailFields []field
}

func ciField(name, pattern string) field {
	return field{name: name, pattern: regexp.MustCompile(`(?i)` + pattern)}
}

var professionalDetailFields = []field{
	ciField("full_name", `<b style="font-size:30px;">\s*([^<]+)\s*</b>`),
	ciField("practice_license_number", `Practice License Number:\s*([^<]+)`),
	ciField("status", `Status:\s*([^<]+)</span>`),
	ciField("valid_till", `Valid Till:\s*([\d-]+)`),
	ciField("photo_url", `<img src="([^"]+)"\s+width="200"`),
}

func NewProfessionalParser(prefix string) ProfessionalParser {
	quoted := regexp.QuoteMeta(prefix)
	return ProfessionalParser{
		prefix: prefix,
		searchFields: []field{
			ciField("name", `<td[^>]*>([^<]+)</td>\s*<td[^>]*>`+quoted),
			ciField("license_number", `<td[^>]*>(`+quoted+`\d+[A-Z]\d+)</td>`),
			ciField("status", `Status:\s*([^<]+)`),
			{name: "valid_till", pattern: regexp.MustCompile(`&nbsp;\s*([\d-]+)</td>`)},
		},
		detailFields: professionalDetailFields,
	}
}

func (p ProfessionalParser) Prefix() string {
	return p.prefix
}

func (p Professional) set(name, value string) Professional {
	switch name {
	case "full_name":
		p.FullName = value
	case "name":
		p.Name = value
	case "practice_license_number":
		p.PracticeLicenseNumber = value
	case "license_number":
		p.LicenseNumber = value
	case "status":
		p.Status = value
	case "valid_till":
		p.ValidTill = value
	case "photo_url":
		p.PhotoURL = value
	}
	return p
}

// ParseSearchRow extracts the name, license number, status and expiry
// from the positional cells of a register search result row.
func (p ProfessionalParser) ParseSearchRow(markup string) Professional {
	var out Professional
	matchAll(p.searchFields, markup, func(name, value string) {
		out = out.set(name, value)
	})
	return out
}

// ParseDetail extracts the fields of a details page. The photo is the
// image rendered exactly 200px wide.
func (p ProfessionalParser) ParseDetail(markup string) Professional {
	var out Professional
	matchAll(p.detailFields, markup, func(name, value string) {
		out = out.set(name, value)
	})
	if out.PhotoURL != "" && out.FullName != "" {
		return out
	}

	doc, err := htmlutil.Parse(markup)
	if err != nil {
		return out
	}
	if out.PhotoURL == "" {
		if src, ok := htmlutil.FirstAttr(doc.Find(`img[width="200"]`), "src"); ok {
			out.PhotoURL = src
		}
	}
	if out.FullName == "" {
		out.FullName = htmlutil.CleanText(doc.Find(`b[style*="font-size:30px"]`))
	}
	return out
}

// Merge overlays the details page fields onto the search row fields.
func Merge(search, detail Professional) Professional {
	out := search
	pick := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}
	pick(&out.FullName, detail.FullName)
	pick(&out.Name, detail.Name)
	pick(&out.PracticeLicenseNumber, detail.PracticeLicenseNumber)
	pick(&out.LicenseNumber, detail.LicenseNumber)
	pick(&out.Status, detail.Status)
	pick(&out.ValidTill, detail.ValidTill)
	pick(&out.PhotoURL, detail.PhotoURL)
	pick(&out.VerifiedAt, detail.VerifiedAt)
	return out
}

// Complete reports whether the record carries a license number.
func (p Professional) Complete() bool {
	return p.PracticeLicenseNumber != "" || p.LicenseNumber != ""
}
