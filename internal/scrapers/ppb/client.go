// Package ppb talks to the public license registers of the Pharmacy and
// Poisons Board portal. Every request goes through the shared rate limiter:
// the portal blocks addresses that query it in quick succession.
package ppb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ppbverify/internal/components/assert"
	"ppbverify/internal/components/chrono"
	"ppbverify/internal/components/telemetry"
	"ppbverify/internal/extract"
	"ppbverify/internal/httpclient"
	"ppbverify/internal/ratelimit"
)

const (
	report_search_facilities   = "client.search-facilities"
	report_facility_detail     = "client.facility-detail"
	report_search_register     = "client.search-register"
	report_professional_detail = "client.professional-detail"
)

const ajaxPath = "/ajax/public"

// DefaultBaseURL is the production portal.
const DefaultBaseURL = "https://practice.pharmacyboardkenya.org"

var (
	// ErrStatus is returned when a search responds with a non-2xx status.
	ErrStatus = errors.New("unexpected status")
	// ErrDetailUnavailable is returned when no details page could be fetched.
	ErrDetailUnavailable = errors.New("details page unavailable")
)

type Client struct {
	http    *httpclient.Client
	limiter *ratelimit.Limiter
	baseURL string
	clock   chrono.API
	tel     telemetry.API
}

func New(
	baseURL string,
	httpClient *httpclient.Client,
	limiter *ratelimit.Limiter,
	clock chrono.API,
	tel telemetry.API,
) *Client {
	assert.NotEmptyStr(baseURL)
	assert.NotNil(httpClient)
	assert.NotNil(limiter)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return &Client{
		http:    httpClient,
		limiter: limiter,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
		tel:     telemetry.NewScopedAPI("ppb", tel),
	}
}

// facilitySearchParams is the DataTables query the facilities register page sends.
func (c *Client) facilitySearchParams(term string) url.Values {
	params := url.Values{}
	params.Set("fetch", "facilities")
	params.Set("ftype", "")
	params.Set("draw", "1")
	for i := range 5 {
		col := fmt.Sprintf("columns[%d]", i)
		params.Set(col+"[data]", strconv.Itoa(i))
		params.Set(col+"[name]", "")
		params.Set(col+"[searchable]", "true")
		params.Set(col+"[orderable]", "true")
		params.Set(col+"[search][value]", "")
		params.Set(col+"[search][regex]", "false")
	}
	params.Set("order[0][column]", "0")
	params.Set("order[0][dir]", "asc")
	params.Set("start", "0")
	params.Set("length", "10")
	params.Set("search[value]", term)
	params.Set("search[regex]", "false")
	params.Set("_", strconv.FormatInt(c.clock.Now().UnixMilli(), 10))
	return params
}

// SearchFacilities queries the facilities register and returns the raw
// DataTables JSON body.
func (c *Client) SearchFacilities(ctx context.Context, term string) ([]byte, error) {
	c.limiter.Wait()

	res, err := c.http.Get(ctx, ajaxPath, c.facilitySearchParams(term), c.facilitySearchHeaders())
	if err != nil {
		c.tel.ReportWarning(report_search_facilities, err, term)
		return nil, fmt.Errorf("facility search: %w", err)
	}
	if !res.IsSuccess() {
		err = fmt.Errorf("facility search: %w: %s", ErrStatus, res.Status())
		c.tel.ReportWarning(report_search_facilities, err, term)
		return nil, err
	}
	return res.Body(), nil
}

// FacilityDetail fetches a facility details page, walking down the header
// ladder until a response carries every details page marker.
func (c *Client) FacilityDetail(ctx context.Context, token string) (string, error) {
	c.limiter.Wait()

	params := url.Values{}
	params.Set("search_details", "facility")
	params.Set("id", token)

	for _, strategy := range facilityDetailLadder {
		res, err := c.http.Get(ctx, ajaxPath, params, strategy.headers(c))
		if err != nil {
			c.tel.ReportWarning(report_facility_detail, fmt.Errorf("strategy %s: %w", strategy.name, err), token)
			continue
		}
		if res.StatusCode() != http.StatusOK {
			c.tel.ReportDebug(report_facility_detail, strategy.name, res.Status())
			continue
		}
		body := res.String()
		if !extract.FacilityDetailValid(body) {
			c.tel.ReportDebug(report_facility_detail, strategy.name, "missing details page markers")
			continue
		}
		c.tel.ReportDebug(report_facility_detail, strategy.name, "ok")
		return body, nil
	}

	c.tel.ReportWarning(report_facility_detail, ErrDetailUnavailable, token)
	return "", fmt.Errorf("facility detail: %w", ErrDetailUnavailable)
}

// SearchRegister posts the search form of a professional register and
// returns the HTML result table. The request is sent once.
func (c *Client) SearchRegister(ctx context.Context, register Register, term string) (string, error) {
	cadre, ok := cadreIDs[register]
	if !ok {
		return "", fmt.Errorf("register %q has no search form", register)
	}

	c.limiter.Wait()

	form := map[string]string{
		"search_register": "1",
		"cadre_id":        cadre,
		"search_text":     term,
	}
	res, err := c.http.PostForm(ctx, ajaxPath, form, c.registerSearchHeaders(register))
	if err != nil {
		c.tel.ReportWarning(report_search_register, err, register, term)
		return "", fmt.Errorf("%s search: %w", register, err)
	}
	if !res.IsSuccess() {
		err = fmt.Errorf("%s search: %w: %s", register, ErrStatus, res.Status())
		c.tel.ReportWarning(report_search_register, err, term)
		return "", err
	}
	return res.String(), nil
}

// ProfessionalDetail fetches the details page of a pharmacist or pharmtech.
func (c *Client) ProfessionalDetail(ctx context.Context, register Register, token string) (string, error) {
	c.limiter.Wait()

	params := url.Values{}
	params.Set("search_details", "get")
	params.Set("id", token)

	res, err := c.http.Get(ctx, ajaxPath, params, c.detailHeaders(register))
	if err != nil {
		c.tel.ReportWarning(report_professional_detail, err, register, token)
		return "", fmt.Errorf("%s detail: %w: %w", register, ErrDetailUnavailable, err)
	}
	if res.StatusCode() != http.StatusOK {
		c.tel.ReportWarning(report_professional_detail, res.Status(), register, token)
		return "", fmt.Errorf("%s detail: %w: %s", register, ErrDetailUnavailable, res.Status())
	}
	return res.String(), nil
}
