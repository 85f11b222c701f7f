package extract

import (
	"regexp"
	"strings"
)

type Facility struct {
	FacilityName       string          `json:"facility_name,omitempty"`
	RegistrationNumber string          `json:"registration_number,omitempty"`
	LicenseNumber      string          `json:"license_number,omitempty"`
	Ownership          string          `json:"ownership,omitempty"`
	LicenseType        string          `json:"license_type,omitempty"`
	EstablishmentYear  string          `json:"establishment_year,omitempty"`
	Street             string          `json:"street,omitempty"`
	County             string          `json:"county,omitempty"`
	LicenseStatus      string          `json:"license_status,omitempty"`
	ValidTill          string          `json:"valid_till,omitempty"`
	Superintendent     *Superintendent `json:"superintendent,omitempty"`
	VerifiedAt         string          `json:"verified_at,omitempty"`
}

// FacilityDetailMarkers must all appear in a facility details page.
var FacilityDetailMarkers = []string{
	"Facility Registration Number:",
	"License Number:",
	"Licence Status:",
}

var facilityMarkerPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(FacilityDetailMarkers))
	for i, marker := range FacilityDetailMarkers {
		out[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker))
	}
	return out
}()

// FacilityDetailValid reports whether markup looks like a facility details
// page rather than an error or challenge page.
func FacilityDetailValid(markup string) bool {
	if strings.TrimSpace(markup) == "" {
		return false
	}
	for _, re := range facilityMarkerPatterns {
		if !re.MatchString(markup) {
			return false
		}
	}
	return true
}

func facilityField(name, pattern string) field {
	return field{name: name, pattern: regexp.MustCompile(`(?i)` + pattern), collapse: true}
}

var facilityFields = []field{
	facilityField("facility_name", `<b style="font-size:20px;">\s*([^<]+)\s*</b>`),
	facilityField("registration_number", `Facility Registration Number:\s*([^<]+)`),
	facilityField("license_number", `License Number:\s*([^<]+)`),
	facilityField("ownership", `Ownership\s*:\s*([^<]+)`),
	facilityField("license_type", `License Type:\s*([^<]+)`),
	facilityField("establishment_year", `Establishment Year\s*:\s*([^<]+)`),
	facilityField("street", `Street:\s*([^<]+)`),
	facilityField("county", `County\s*:\s*([^<]+)`),
	facilityField("license_status", `Licence Status:\s*([A-Z]+)`),
	facilityField("valid_till", `Valid Till:\s*([\d-]+)`),
}

// ParseFacility extracts every facility field it can find in a details
// page, including the superintendent hidden in an HTML comment.
func ParseFacility(markup string) Facility {
	var out Facility
	matchAll(facilityFields, markup, func(name, value string) {
		switch name {
		case "facility_name":
			out.FacilityName = value
		case "registration_number":
			out.RegistrationNumber = value
		case "license_number":
			out.LicenseNumber = value
		case "ownership":
			out.Ownership = value
		case "license_type":
			out.LicenseType = value
		case "establishment_year":
			out.EstablishmentYear = value
		case "street":
			out.Street = value
		case "county":
			out.County = value
		case "license_status":
			out.LicenseStatus = value
		case "valid_till":
			out.ValidTill = value
		}
	})
	if s, _ := ExtractSuperintendent(markup); s != nil {
		out.Superintendent = s
	}
	return out
}
