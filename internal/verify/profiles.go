package verify

import (
	"context"
	"fmt"

	"ppbverify/internal/components/telemetry"
	"ppbverify/internal/extract"
	"ppbverify/internal/scrapers/ppb"
)

const report_name_agreement = "profile.name-agreement"

// Cache key prefixes of the redis backend, one namespace per record type.
const (
	FacilityCachePrefix   = "ppb:v1:"
	PharmacistCachePrefix = "ppb:pharmacist:v1:"
	PharmtechCachePrefix  = "ppb:pharmtech:v1:"
)

// Portal is the part of the portal client the profiles use.
type Portal interface {
	SearchFacilities(ctx context.Context, term string) ([]byte, error)
	FacilityDetail(ctx context.Context, token string) (string, error)
	SearchRegister(ctx context.Context, register ppb.Register, term string) (string, error)
	ProfessionalDetail(ctx context.Context, register ppb.Register, token string) (string, error)
}

func FacilityProfile(portal Portal) Profile[extract.Facility] {
	return Profile[extract.Facility]{
		Kind:          KindFacility,
		IdentifierKey: KeyPPBNumber,
		CachePrefix:   FacilityCachePrefix,
		Messages: Messages{
			InvalidInput: "Invalid PPB number format",
			NotFound:     "Facility with PPB number '%s' not found in registry",
			DetailFailed: "Failed to retrieve detailed facility information",
			Incomplete:   "Failed to extract complete facility information",
			Success:      "Complete license verification successful",
		},
		Normalize: trimOnly,
		Search: func(ctx context.Context, identifier string) (string, extract.Facility, bool, error) {
			body, err := portal.SearchFacilities(ctx, identifier)
			if err != nil {
				return "", extract.Facility{}, false, err
			}
			search, err := extract.ParseFacilitySearch(body)
			if err != nil {
				return "", extract.Facility{}, false, err
			}
			if search.Rows() == 0 {
				return "", extract.Facility{}, false, nil
			}
			token, ok := search.Token()
			return token, extract.Facility{}, ok, nil
		},
		Detail: portal.FacilityDetail,
		Parse: func(_ extract.Facility, markup string) extract.Facility {
			return extract.ParseFacility(markup)
		},
		Complete: func(record extract.Facility) bool {
			return record.LicenseNumber != ""
		},
		Stamp: func(record *extract.Facility, verifiedAt string) {
			record.VerifiedAt = verifiedAt
		},
	}
}

func professionalProfile(
	kind Kind,
	register ppb.Register,
	prefix string,
	cachePrefix string,
	messages Messages,
	portal Portal,
	tel telemetry.API,
) Profile[extract.Professional] {
	parser := extract.NewProfessionalParser(prefix)
	tel = telemetry.NewScopedAPI(string(kind), tel)

	return Profile[extract.Professional]{
		Kind:          kind,
		IdentifierKey: KeyLicenseNumber,
		CachePrefix:   cachePrefix,
		Messages:      messages,
		Normalize:     trimUpper,
		Format:        extract.LicenseFormatFor(prefix),
		Search: func(ctx context.Context, identifier string) (string, extract.Professional, bool, error) {
			markup, err := portal.SearchRegister(ctx, register, identifier)
			if err != nil {
				return "", extract.Professional{}, false, err
			}
			if extract.NoRecords(markup) {
				return "", extract.Professional{}, false, nil
			}
			token, ok := extract.RecordToken(markup)
			if !ok {
				return "", extract.Professional{}, false, nil
			}
			return token, parser.ParseSearchRow(markup), true, nil
		},
		Detail: func(ctx context.Context, token string) (string, error) {
			return portal.ProfessionalDetail(ctx, register, token)
		},
		Parse: func(seed extract.Professional, markup string) extract.Professional {
			record := extract.Merge(seed, parser.ParseDetail(markup))
			if seed.Name != "" && record.FullName != "" {
				similarity := extract.NameAgreement(seed.Name, record.FullName)
				if similarity < extract.NameAgreementThreshold {
					tel.ReportWarning(
						report_name_agreement,
						fmt.Errorf("search row name %q does not match details page name %q", seed.Name, record.FullName),
						similarity,
					)
				}
			}
			return record
		},
		Complete: extract.Professional.Complete,
		Stamp: func(record *extract.Professional, verifiedAt string) {
			record.VerifiedAt = verifiedAt
		},
	}
}

func PharmacistProfile(portal Portal, tel telemetry.API) Profile[extract.Professional] {
	return professionalProfile(
		KindPharmacist,
		ppb.RegisterPharmacist,
		extract.PrefixPharmacist,
		PharmacistCachePrefix,
		Messages{
			InvalidInput:  "Invalid license number format",
			InvalidFormat: "Invalid license number format. Expected format: PYYYYXNNNNN (e.g., P2025D00463)",
			NotFound:      "Pharmacist license '%s' not found in registry",
			DetailFailed:  "Failed to retrieve detailed pharmacist information",
			Incomplete:    "Failed to extract complete pharmacist information",
			Success:       "Pharmacist verification successful",
		},
		portal,
		tel,
	)
}

func PharmtechProfile(portal Portal, tel telemetry.API) Profile[extract.Professional] {
	return professionalProfile(
		KindPharmtech,
		ppb.RegisterPharmtech,
		extract.PrefixPharmtech,
		PharmtechCachePrefix,
		Messages{
			InvalidInput:  "Invalid license number format",
			InvalidFormat: "Invalid license number format. Expected format: PTYYYYXNNNNN (e.g., PT2025D05614)",
			NotFound:      "PharmTech license '%s' not found in registry",
			DetailFailed:  "Failed to retrieve detailed pharmtech information",
			Incomplete:    "Failed to extract complete pharmtech information",
			Success:       "PharmTech verification successful",
		},
		portal,
		tel,
	)
}
