package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"ppbverify/internal/cache"
	"ppbverify/internal/components/chrono"
	"ppbverify/internal/components/telemetry"
	"ppbverify/internal/extract"
	"ppbverify/internal/scrapers/ppb"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var fixedClock = chrono.FixedImpl{At: time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)}

type professionalEnvelope = Envelope[extract.Professional]
type facilityEnvelope = Envelope[extract.Facility]

func newPharmtechService(portal Portal, cached bool) (*Service[extract.Professional], *outcomes, *telemetry.Recorder) {
	rec := &telemetry.Recorder{}
	obs := &outcomes{}
	var store cache.Cache[professionalEnvelope]
	if cached {
		store = cache.NewMemory[professionalEnvelope](10, time.Hour, rec)
	}
	return New(PharmtechProfile(portal, rec), store, time.Hour, fixedClock, rec, WithObserver(obs)), obs, rec
}

func newFacilityService(portal Portal) (*Service[extract.Facility], *outcomes) {
	rec := &telemetry.Recorder{}
	obs := &outcomes{}
	store := cache.NewMemory[facilityEnvelope](10, time.Hour, rec)
	return New(FacilityProfile(portal), store, time.Hour, fixedClock, rec, WithObserver(obs)), obs
}

func TestVerifyPharmtech(t *testing.T) {
	portal := pharmtechPortal(t)
	service, obs, _ := newPharmtechService(portal, true)

	env := service.Verify(t.Context(), "PT2025D05614", true)
	require.True(t, env.Success, env.Message)
	require.Equal(t, "PT2025D05614", env.Identifier)
	require.Equal(t, KeyLicenseNumber, env.IdentifierKey)
	require.Equal(t, "PharmTech verification successful", env.Message)
	require.False(t, env.FromCache)
	require.GreaterOrEqual(t, env.ProcessingTimeMS, 0.0)

	expected := &extract.Professional{
		FullName:              "Changwony Gloria",
		Name:                  "GLORIA CHANGWONY",
		PracticeLicenseNumber: "PT2025D05614",
		LicenseNumber:         "PT2025D05614",
		Status:                "Active",
		ValidTill:             "2025-12-31",
		PhotoURL:              "http://rhris.pharmacyboardkenya.org/photos/d4383c55f6b74dc528d9.JPG",
		VerifiedAt:            "2025-10-01T08:00:00Z",
	}
	if diff := cmp.Diff(expected, env.Data); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, OutcomeSuccess, obs.last())
}

func TestInvalidFormatMakesNoRequests(t *testing.T) {
	testCases := []struct {
		identifier string
		normalized string
		message    string
	}{
		{identifier: "INVALID", normalized: "INVALID", message: "Invalid license number format. Expected format: PTYYYYXNNNNN (e.g., PT2025D05614)"},
		{identifier: "PT2022D05614", normalized: "PT2022D05614", message: "Invalid license number format. Expected format: PTYYYYXNNNNN (e.g., PT2025D05614)"},
		{identifier: "p2025d00463", normalized: "P2025D00463", message: "Invalid license number format. Expected format: PTYYYYXNNNNN (e.g., PT2025D05614)"},
		{identifier: "   ", normalized: "", message: "Invalid license number format"},
	}
	for _, tc := range testCases {
		t.Run(tc.identifier, func(t *testing.T) {
			portal := pharmtechPortal(t)
			service, obs, _ := newPharmtechService(portal, true)

			start := time.Now()
			env := service.Verify(t.Context(), tc.identifier, true)
			require.Less(t, time.Since(start), 100*time.Millisecond)

			require.False(t, env.Success)
			require.Nil(t, env.Data)
			require.Equal(t, tc.normalized, env.Identifier)
			require.Equal(t, tc.message, env.Message)
			require.Contains(t, strings.ToLower(env.Message), "format")

			searches, details := portal.calls()
			require.Zero(t, searches)
			require.Zero(t, details)
			require.Contains(t, []string{string(InvalidFormat), string(InvalidInput)}, obs.last())
		})
	}
}

func TestMalformedIdentifiersNeverReachPortal(t *testing.T) {
	portal := pharmtechPortal(t)
	service, _, _ := newPharmtechService(portal, false)

	rapid.Check(t, func(t *rapid.T) {
		identifier := rapid.String().Draw(t, "identifier")
		if service.profile.Format.MatchString(service.profile.Normalize(identifier)) {
			t.Skip("well formed")
		}
		env := service.Verify(context.Background(), identifier, true)
		if env.Success {
			t.Fatalf("%q verified", identifier)
		}
		if searches, _ := portal.calls(); searches != 0 {
			t.Fatalf("%q reached the portal", identifier)
		}
	})
}

func TestVerifyIsIdempotentWithCache(t *testing.T) {
	portal := pharmtechPortal(t)
	service, obs, _ := newPharmtechService(portal, true)

	first := service.Verify(t.Context(), "PT2025D05614", true)
	require.True(t, first.Success)
	second := service.Verify(t.Context(), "PT2025D05614", true)
	require.True(t, second.Success)

	require.False(t, first.FromCache)
	require.True(t, second.FromCache)
	require.Equal(t, first.ProcessingTimeMS, second.ProcessingTimeMS)
	if diff := cmp.Diff(first.Data, second.Data); diff != "" {
		t.Fatalf("cached record differs (-first +second):\n%s", diff)
	}

	searches, details := portal.calls()
	require.Equal(t, 1, searches)
	require.Equal(t, 1, details)
	require.Equal(t, []bool{false, true}, obs.lookups)
	require.Equal(t, OutcomeCacheHit, obs.last())
}

func TestVerifyBypassesCache(t *testing.T) {
	portal := pharmtechPortal(t)
	service, obs, _ := newPharmtechService(portal, true)

	require.True(t, service.Verify(t.Context(), "PT2025D05614", true).Success)
	env := service.Verify(t.Context(), "PT2025D05614", false)
	require.True(t, env.Success)
	require.False(t, env.FromCache)

	searches, _ := portal.calls()
	require.Equal(t, 2, searches)
	require.Equal(t, []bool{false}, obs.lookups)
}

func TestVerifyWithCacheDisabled(t *testing.T) {
	portal := pharmtechPortal(t)
	service, _, _ := newPharmtechService(portal, false)

	for range 2 {
		env := service.Verify(t.Context(), "PT2025D05614", true)
		require.True(t, env.Success)
		require.False(t, env.FromCache)
	}
	searches, _ := portal.calls()
	require.Equal(t, 2, searches)

	require.False(t, service.ClearCache(t.Context()))
	encoded, err := json.Marshal(service.CacheStats(t.Context()))
	require.NoError(t, err)
	require.JSONEq(t, `{"cache_enabled": false}`, string(encoded))
}

func TestNormalizedIdentifiersShareCacheEntry(t *testing.T) {
	portal := pharmtechPortal(t)
	service, _, _ := newPharmtechService(portal, true)

	first := service.Verify(t.Context(), "pt2025d09630", true)
	second := service.Verify(t.Context(), " PT2025D09630 ", true)

	require.True(t, first.Success, first.Message)
	require.Equal(t, "PT2025D09630", first.Identifier)
	require.Equal(t, "PT2025D09630", second.Identifier)
	require.Equal(t, "PT2025D09630", first.Data.PracticeLicenseNumber)
	require.True(t, second.FromCache)

	searches, _ := portal.calls()
	require.Equal(t, 1, searches)
}

func TestNormalizationProperty(t *testing.T) {
	profile := PharmtechProfile(&fakePortal{}, &telemetry.Recorder{})

	rapid.Check(t, func(t *rapid.T) {
		year := rapid.IntRange(2023, 2029).Draw(t, "year")
		letter := rapid.RuneFrom([]rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")).Draw(t, "letter")
		serial := rapid.IntRange(0, 99999).Draw(t, "serial")
		prefix := rapid.SampledFrom([]string{"PT", "pt", "Pt", "pT"}).Draw(t, "prefix")
		pad := rapid.SampledFrom([]string{"", " ", "\t", "  \n"}).Draw(t, "pad")

		raw := fmt.Sprintf("%s%s%d%c%05d%s", pad, prefix, year, letter, serial, pad)
		canonical := strings.ToUpper(strings.TrimSpace(raw))

		normalized := profile.Normalize(raw)
		if normalized != canonical {
			t.Fatalf("normalize(%q) = %q", raw, normalized)
		}
		if !profile.Format.MatchString(normalized) {
			t.Fatalf("%q rejected", normalized)
		}
		if CacheKey(normalized) != "detailed:"+canonical {
			t.Fatalf("cache key of %q is %q", raw, CacheKey(normalized))
		}
	})
}

func TestNotFoundIsNeverCached(t *testing.T) {
	testCases := []struct {
		name   string
		markup string
	}{
		{name: "no records marker", markup: "<tr><td colspan='4'>No records found</td></tr>"},
		{name: "empty body", markup: ""},
		{name: "row without token", markup: "<tr><td>GLORIA CHANGWONY</td><td>PT2025D05614</td></tr>"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			portal := &fakePortal{
				registerSearch: func(ppb.Register, string) (string, error) {
					return tc.markup, nil
				},
			}
			service, obs, _ := newPharmtechService(portal, true)

			for range 2 {
				env := service.Verify(t.Context(), "PT2025D05614", true)
				require.False(t, env.Success)
				require.False(t, env.FromCache)
				require.Equal(t, "PharmTech license 'PT2025D05614' not found in registry", env.Message)
				require.Contains(t, env.Message, "not found")
			}

			searches, details := portal.calls()
			require.Equal(t, 2, searches)
			require.Zero(t, details)
			require.Equal(t, string(NotFound), obs.last())
			require.Zero(t, service.CacheStats(t.Context()).Size)
		})
	}
}

func TestVerifyFacility(t *testing.T) {
	service, _ := newFacilityService(facilityPortal(t))

	env := service.Verify(t.Context(), "  PPB/C/0123 ", true)
	require.True(t, env.Success, env.Message)
	require.Equal(t, "PPB/C/0123", env.Identifier)
	require.Equal(t, "Complete license verification successful", env.Message)
	require.Equal(t, "PPB/F/2025/00451", env.Data.LicenseNumber)
	require.Equal(t, &extract.Superintendent{
		Name:             "KELVIN KIPCHIRCHIR",
		Cadre:            "PHARMTECH",
		EnrollmentNumber: "10858",
	}, env.Data.Superintendent)
	require.Equal(t, "2025-10-01T08:00:00Z", env.Data.VerifiedAt)

	encoded, err := json.Marshal(env)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(encoded),
		`{"success":true,"ppb_number":"PPB/C/0123","message":"Complete license verification successful","processing_time_ms":`,
	), string(encoded))

	var decoded facilityEnvelope
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	if diff := cmp.Diff(env, decoded); diff != "" {
		t.Fatalf("decoded envelope differs (-want +got):\n%s", diff)
	}
}

func TestVerifyFacilityFailures(t *testing.T) {
	detail := readFixture(t, "facility_detail.html")
	okSearch := func(string) ([]byte, error) { return []byte(facilitySearchBody), nil }
	okDetail := func(string) (string, error) { return detail, nil }

	testCases := []struct {
		name    string
		search  func(string) ([]byte, error)
		detail  func(string) (string, error)
		kind    FailureKind
		message string
	}{
		{
			name:    "search transport error",
			search:  func(string) ([]byte, error) { return nil, errors.New("dial tcp: connection refused") },
			kind:    UpstreamUnreachable,
			message: "Failed to connect to PPB portal: dial tcp: connection refused",
		},
		{
			name:    "search returns html",
			search:  func(string) ([]byte, error) { return []byte("<html>Service Unavailable</html>"), nil },
			kind:    UpstreamUnreachable,
			message: "Failed to connect to PPB portal: decode facility search",
		},
		{
			name:    "empty data",
			search:  func(string) ([]byte, error) { return []byte(`{"data": []}`), nil },
			kind:    NotFound,
			message: "Facility with PPB number 'PPB/C/0123' not found in registry",
		},
		{
			name:    "row without token",
			search:  func(string) ([]byte, error) { return []byte(`{"data": [["1", "X", "Y", "Z", "View"]]}`), nil },
			kind:    NotFound,
			message: "Facility with PPB number 'PPB/C/0123' not found in registry",
		},
		{
			name:    "detail unavailable",
			search:  okSearch,
			detail:  func(string) (string, error) { return "", ppb.ErrDetailUnavailable },
			kind:    DetailFetchFailed,
			message: "Failed to retrieve detailed facility information",
		},
		{
			name:    "detail without license number",
			search:  okSearch,
			detail:  func(string) (string, error) { return "Facility Registration Number: PPB/C/0123", nil },
			kind:    IncompleteData,
			message: "Failed to extract complete facility information",
		},
		{
			name:    "panic",
			search:  func(string) ([]byte, error) { panic("boom") },
			detail:  okDetail,
			kind:    Unexpected,
			message: "Unexpected error: boom",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			portal := &fakePortal{facilitySearch: tc.search, facilityDetail: tc.detail}
			if portal.facilityDetail == nil {
				portal.facilityDetail = okDetail
			}
			service, obs := newFacilityService(portal)

			env := service.Verify(t.Context(), "PPB/C/0123", true)
			require.False(t, env.Success)
			require.False(t, env.FromCache)
			require.Nil(t, env.Data)
			require.Equal(t, "PPB/C/0123", env.Identifier)
			require.True(t, strings.HasPrefix(env.Message, tc.message), env.Message)
			require.Equal(t, string(tc.kind), obs.last())
			require.Zero(t, service.CacheStats(t.Context()).Size)

			encoded, err := json.Marshal(env)
			require.NoError(t, err)
			require.True(t, strings.HasSuffix(string(encoded), `"from_cache":false,"data":null}`), string(encoded))
		})
	}
}

func TestEmptyFacilityNumber(t *testing.T) {
	portal := facilityPortal(t)
	service, obs := newFacilityService(portal)

	env := service.Verify(t.Context(), "   ", true)
	require.False(t, env.Success)
	require.Equal(t, "Invalid PPB number format", env.Message)
	require.Equal(t, string(InvalidInput), obs.last())
	searches, _ := portal.calls()
	require.Zero(t, searches)
}

func TestNameDisagreementIsReported(t *testing.T) {
	portal := pharmtechPortal(t)
	detail := readFixture(t, "pharmtech_detail.html")
	portal.professionalDetail = func(ppb.Register, string) (string, error) {
		return strings.ReplaceAll(detail, "Changwony Gloria", "Otieno Brian"), nil
	}
	service, _, rec := newPharmtechService(portal, false)

	env := service.Verify(t.Context(), "PT2025D05614", false)
	require.True(t, env.Success)
	require.Equal(t, "Otieno Brian", env.Data.FullName)
	require.True(t, rec.Has("warning", report_name_agreement))
}

func TestClearCache(t *testing.T) {
	portal := pharmtechPortal(t)
	service, _, _ := newPharmtechService(portal, true)

	require.True(t, service.Verify(t.Context(), "PT2025D05614", true).Success)
	stats := service.CacheStats(t.Context())
	require.True(t, stats.Enabled)
	require.Equal(t, cache.BackendMemory, stats.Backend)
	require.Equal(t, 1, stats.Size)

	require.True(t, service.ClearCache(t.Context()))
	require.Zero(t, service.CacheStats(t.Context()).Size)

	env := service.Verify(t.Context(), "PT2025D05614", true)
	require.False(t, env.FromCache)
	searches, _ := portal.calls()
	require.Equal(t, 2, searches)
}

func TestBuild(t *testing.T) {
	rec := &telemetry.Recorder{}
	verifier, err := Build(t.Context(), KindPharmtech, pharmtechPortal(t), CacheOptions{
		Enabled: true,
		Config:  cache.Config{Backend: cache.BackendMemory, MaxSize: 10, DefaultTTL: time.Minute},
	}, fixedClock, rec)
	require.NoError(t, err)
	require.Equal(t, KindPharmtech, verifier.Kind())
	require.Equal(t, KeyLicenseNumber, verifier.IdentifierKey())

	summary := verifier.VerifyResult(t.Context(), "PT2025D05614", true).Summary()
	require.True(t, summary.Success)
	require.IsType(t, &extract.Professional{}, summary.Data)
	require.True(t, verifier.VerifyResult(t.Context(), "PT2025D05614", true).Summary().FromCache)
	require.Zero(t, verifier.CleanupExpired())
	require.NoError(t, verifier.Close())

	_, err = Build(t.Context(), KindFacility, facilityPortal(t), CacheOptions{
		Enabled: true,
		Config:  cache.Config{Backend: "memcached"},
	}, fixedClock, rec)
	require.ErrorIs(t, err, cache.ErrUnknownBackend)

	_, err = Build(t.Context(), Kind("dentist"), facilityPortal(t), CacheOptions{}, fixedClock, rec)
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("PharmTech")
	require.NoError(t, err)
	require.Equal(t, KindPharmtech, kind)

	_, err = ParseKind("dentist")
	require.Error(t, err)
}
