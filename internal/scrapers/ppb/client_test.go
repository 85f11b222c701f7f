package ppb

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ppbverify/internal/components/chrono"
	"ppbverify/internal/components/telemetry"
	"ppbverify/internal/httpclient"
	"ppbverify/internal/ratelimit"

	"github.com/stretchr/testify/require"
)

const validFacilityPage = `<b style="font-size:20px;">GALAXY PHARMACY</b>
Facility Registration Number: PPB/C/0123<br>License Number: PPB/F/2025/00451<br>Licence Status: ACTIVE`

var testClock = chrono.FixedImpl{At: time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)}

func newTestClient(t *testing.T, handler http.Handler, limiter *ratelimit.Limiter) (*Client, *telemetry.Recorder) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec := &telemetry.Recorder{}
	hc, err := httpclient.New(httpclient.Options{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 1,
		Backoff:    time.Millisecond,
	}, rec)
	require.NoError(t, err)

	if limiter == nil {
		limiter = ratelimit.New(0, rec)
	}
	return New(srv.URL, hc, limiter, testClock, rec), rec
}

type capture struct {
	mu       sync.Mutex
	requests []*http.Request
	forms    []url.Values
}

func (c *capture) record(r *http.Request) {
	_ = r.ParseForm()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, r)
	c.forms = append(c.forms, r.PostForm)
}

func (c *capture) get(i int) (*http.Request, url.Values) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[i], c.forms[i]
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func TestSearchFacilitiesRequest(t *testing.T) {
	rec := &capture{}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": []}`)
	}), nil)

	body, err := client.SearchFacilities(t.Context(), "PPB/C/0123")
	require.NoError(t, err)
	require.JSONEq(t, `{"data": []}`, string(body))

	require.Equal(t, 1, rec.count())
	req, _ := rec.get(0)
	require.Equal(t, http.MethodGet, req.Method)
	require.Equal(t, "/ajax/public", req.URL.Path)

	query := req.URL.Query()
	require.Equal(t, "facilities", query.Get("fetch"))
	require.True(t, query.Has("ftype"))
	require.Equal(t, "1", query.Get("draw"))
	require.Equal(t, "4", query.Get("columns[4][data]"))
	require.Equal(t, "true", query.Get("columns[2][searchable]"))
	require.Equal(t, "false", query.Get("columns[0][search][regex]"))
	require.Equal(t, "asc", query.Get("order[0][dir]"))
	require.Equal(t, "10", query.Get("length"))
	require.Equal(t, "PPB/C/0123", query.Get("search[value]"))
	require.Equal(t, strconv.FormatInt(testClock.At.UnixMilli(), 10), query.Get("_"))

	require.Equal(t, acceptJSON, req.Header.Get("Accept"))
	require.Equal(t, userAgent, req.Header.Get("User-Agent"))
	require.Equal(t, "XMLHttpRequest", req.Header.Get("X-Requested-With"))
	require.True(t, strings.HasSuffix(req.Header.Get("Referer"), "/LicenseStatus?register=facilities"))
}

func TestSearchFacilitiesStatus(t *testing.T) {
	client, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}), nil)

	_, err := client.SearchFacilities(t.Context(), "PPB/C/0123")
	require.ErrorIs(t, err, ErrStatus)
	require.True(t, rec.Has("warning", report_search_facilities))
}

func TestFacilityDetailLadder(t *testing.T) {
	testCases := []struct {
		name     string
		serve    func(w http.ResponseWriter, r *http.Request)
		calls    int
		expected bool
	}{
		{
			name: "full headers",
			serve: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, validFacilityPage)
			},
			calls:    1,
			expected: true,
		},
		{
			name: "accept any after an invalid page",
			serve: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Accept") != "*/*" {
					fmt.Fprint(w, "<html>Just a moment...</html>")
					return
				}
				fmt.Fprint(w, validFacilityPage)
			},
			calls:    2,
			expected: true,
		},
		{
			name: "minimal headers after forbidden responses",
			serve: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Sec-Fetch-Mode") != "" {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				fmt.Fprint(w, validFacilityPage)
			},
			calls:    3,
			expected: true,
		},
		{
			name: "every strategy fails",
			serve: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "<html>Access denied</html>")
			},
			calls: 3,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if r.URL.Query().Get("search_details") != "facility" || r.URL.Query().Get("id") != "MTIzNDU=" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				tc.serve(w, r)
			}), nil)

			body, err := client.FacilityDetail(t.Context(), "MTIzNDU=")
			require.Equal(t, tc.calls, int(calls.Load()))
			if !tc.expected {
				require.ErrorIs(t, err, ErrDetailUnavailable)
				require.Empty(t, body)
				return
			}
			require.NoError(t, err)
			require.Equal(t, validFacilityPage, body)
		})
	}
}

func TestSearchRegisterForm(t *testing.T) {
	testCases := []struct {
		register Register
		cadre    string
	}{
		{register: RegisterPharmacist, cadre: "2"},
		{register: RegisterPharmtech, cadre: "4"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.register), func(t *testing.T) {
			rec := &capture{}
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				rec.record(r)
				fmt.Fprint(w, "<tr><td>No records found</td></tr>")
			}), nil)

			body, err := client.SearchRegister(t.Context(), tc.register, "PT2025D05614")
			require.NoError(t, err)
			require.Contains(t, body, "No records found")

			req, form := rec.get(0)
			require.Equal(t, http.MethodPost, req.Method)
			require.Equal(t, "/ajax/public", req.URL.Path)
			require.True(t, strings.HasPrefix(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded"))
			require.Equal(t, "1", form.Get("search_register"))
			require.Equal(t, tc.cadre, form.Get("cadre_id"))
			require.Equal(t, "PT2025D05614", form.Get("search_text"))
			require.True(t, strings.HasSuffix(req.Header.Get("Referer"), "register="+string(tc.register)))
		})
	}
}

func TestSearchRegisterIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), nil)

	_, err := client.SearchRegister(t.Context(), RegisterPharmtech, "PT2025D05614")
	require.ErrorIs(t, err, ErrStatus)
	require.Equal(t, int32(1), calls.Load())
}

func TestSearchRegisterUnknownRegister(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler(), nil)
	_, err := client.SearchRegister(t.Context(), RegisterFacilities, "PPB/C/0123")
	require.Error(t, err)
}

func TestProfessionalDetail(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("id") != "MjI4NTk=" || query.Get("search_details") != "get" ||
			r.Header.Get("sec-ch-ua-platform") != `"Windows"` {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "<b style=\"font-size:30px;\">Changwony Gloria</b>")
	}), nil)

	body, err := client.ProfessionalDetail(t.Context(), RegisterPharmtech, "MjI4NTk=")
	require.NoError(t, err)
	require.Contains(t, body, "Changwony Gloria")

	_, err = client.ProfessionalDetail(t.Context(), RegisterPharmtech, "unknown")
	require.ErrorIs(t, err, ErrDetailUnavailable)
}

func TestSearchAndDetailEachWaitOnce(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	var slept []time.Duration
	limiter := ratelimit.New(
		1500*time.Millisecond,
		&telemetry.Recorder{},
		ratelimit.WithJitter(0),
		ratelimit.WithClock(
			func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				return now
			},
			func(d time.Duration) {
				mu.Lock()
				defer mu.Unlock()
				slept = append(slept, d)
				now = now.Add(d)
			},
		),
	)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search_details") == "facility" {
			// forces the whole ladder
			fmt.Fprint(w, "<html>Access denied</html>")
			return
		}
		fmt.Fprint(w, `{"data": []}`)
	}), limiter)

	_, err := client.SearchFacilities(t.Context(), "PPB/C/0123")
	require.NoError(t, err)
	_, err = client.FacilityDetail(t.Context(), "MTIzNDU=")
	require.ErrorIs(t, err, ErrDetailUnavailable)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, slept, 1)
	require.InDelta(t, float64(1500*time.Millisecond), float64(slept[0]), float64(time.Microsecond))
}
