package verify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ppbverify/internal/scrapers/ppb"

	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(content)
}

// fakePortal serves canned responses and counts the requests it receives.
type fakePortal struct {
	mu       sync.Mutex
	searches int
	details  int

	facilitySearch     func(term string) ([]byte, error)
	facilityDetail     func(token string) (string, error)
	registerSearch     func(register ppb.Register, term string) (string, error)
	professionalDetail func(register ppb.Register, token string) (string, error)
}

func (p *fakePortal) countSearch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searches++
}

func (p *fakePortal) countDetail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.details++
}

func (p *fakePortal) calls() (searches, details int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.searches, p.details
}

func (p *fakePortal) SearchFacilities(_ context.Context, term string) ([]byte, error) {
	p.countSearch()
	return p.facilitySearch(term)
}

func (p *fakePortal) FacilityDetail(_ context.Context, token string) (string, error) {
	p.countDetail()
	return p.facilityDetail(token)
}

func (p *fakePortal) SearchRegister(_ context.Context, register ppb.Register, term string) (string, error) {
	p.countSearch()
	return p.registerSearch(register, term)
}

func (p *fakePortal) ProfessionalDetail(_ context.Context, register ppb.Register, token string) (string, error) {
	p.countDetail()
	return p.professionalDetail(register, token)
}

// pharmtechPortal answers every well formed license number with the
// Changwony Gloria fixtures rewritten to that license number.
func pharmtechPortal(t *testing.T) *fakePortal {
	search := readFixture(t, "pharmtech_search.html")
	detail := readFixture(t, "pharmtech_detail.html")
	var mu sync.Mutex
	lastTerm := ""

	return &fakePortal{
		registerSearch: func(register ppb.Register, term string) (string, error) {
			if register != ppb.RegisterPharmtech {
				return "", nil
			}
			mu.Lock()
			lastTerm = term
			mu.Unlock()
			return strings.ReplaceAll(search, "PT2025D05614", term), nil
		},
		professionalDetail: func(_ ppb.Register, token string) (string, error) {
			if token != "MjI4NTk=" {
				return "", ppb.ErrDetailUnavailable
			}
			mu.Lock()
			defer mu.Unlock()
			return strings.ReplaceAll(detail, "PT2025D05614", lastTerm), nil
		},
	}
}

const facilitySearchBody = `{"draw": 1, "data": [["1", "GALAXY PHARMACY LIMITED", "PPB/C/0123", "NAIROBI", "<a class=\"popStatus\" href=\"#\" rel='MTIzNDU='>View</a>"]]}`

func facilityPortal(t *testing.T) *fakePortal {
	detail := readFixture(t, "facility_detail.html")
	return &fakePortal{
		facilitySearch: func(term string) ([]byte, error) {
			if term != "PPB/C/0123" {
				return []byte(`{"draw": 1, "data": []}`), nil
			}
			return []byte(facilitySearchBody), nil
		},
		facilityDetail: func(token string) (string, error) {
			if token != "MTIzNDU=" {
				return "", ppb.ErrDetailUnavailable
			}
			return detail, nil
		},
	}
}

// outcomes records what the service reports to its Observer.
type outcomes struct {
	mu       sync.Mutex
	verified []string
	lookups  []bool
}

func (o *outcomes) ObserveVerification(_ Kind, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verified = append(o.verified, outcome)
}

func (o *outcomes) ObserveCacheLookup(_ Kind, hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups = append(o.lookups, hit)
}

func (o *outcomes) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.verified) == 0 {
		return ""
	}
	return o.verified[len(o.verified)-1]
}
