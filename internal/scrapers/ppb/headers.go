package ppb

import "maps"

// Register is one of the public registers of the portal.
type Register string

const (
	RegisterFacilities Register = "facilities"
	RegisterPharmacist Register = "pharmacist"
	RegisterPharmtech  Register = "pharmtech"
)

// cadre_id values of the register search form.
var cadreIDs = map[Register]string{
	RegisterPharmacist: "2",
	RegisterPharmtech:  "4",
}

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"
	acceptLanguage = "en-GB,en-US;q=0.9,en;q=0.8"
	acceptJSON     = "application/json, text/javascript, */*; q=0.01"
	acceptHTML     = "text/html, */*; q=0.01"
	formType       = "application/x-www-form-urlencoded; charset=UTF-8"
	xmlHTTPRequest = "XMLHttpRequest"
)

func (c *Client) referer(register Register) string {
	return c.baseURL + "/LicenseStatus?register=" + string(register)
}

func (c *Client) facilitySearchHeaders() map[string]string {
	return map[string]string{
		"Accept":           acceptJSON,
		"Accept-Language":  acceptLanguage,
		"User-Agent":       userAgent,
		"X-Requested-With": xmlHTTPRequest,
		"Referer":          c.referer(RegisterFacilities),
	}
}

func (c *Client) registerSearchHeaders(register Register) map[string]string {
	return map[string]string{
		"Accept":           acceptHTML,
		"Accept-Language":  acceptLanguage,
		"Content-Type":     formType,
		"User-Agent":       userAgent,
		"X-Requested-With": xmlHTTPRequest,
		"Referer":          c.referer(register),
	}
}

// detailHeaders mimic the XHR a browser sends when the details modal opens.
func (c *Client) detailHeaders(register Register) map[string]string {
	return map[string]string{
		"Accept":             acceptHTML,
		"Accept-Language":    acceptLanguage,
		"Connection":         "keep-alive",
		"Referer":            c.referer(register),
		"Sec-Fetch-Dest":     "empty",
		"Sec-Fetch-Mode":     "cors",
		"Sec-Fetch-Site":     "same-origin",
		"User-Agent":         userAgent,
		"X-Requested-With":   xmlHTTPRequest,
		"sec-ch-ua":          `"Google Chrome";v="141", "Not-A-Brand";v="8", "Chromium";v="141"`,
		"sec-ch-ua-mobile":   "?0",
		"sec-ch-ua-platform": `"Windows"`,
	}
}

// detailStrategy is one rung of the facility details fallback ladder.
type detailStrategy struct {
	name    string
	headers func(c *Client) map[string]string
}

var facilityDetailLadder = []detailStrategy{
	{name: "full_headers", headers: func(c *Client) map[string]string {
		return c.detailHeaders(RegisterFacilities)
	}},
	{name: "accept_any", headers: func(c *Client) map[string]string {
		headers := maps.Clone(c.detailHeaders(RegisterFacilities))
		headers["Accept"] = "*/*"
		return headers
	}},
	{name: "minimal_headers", headers: func(c *Client) map[string]string {
		return map[string]string{
			"User-Agent":       userAgent,
			"Referer":          c.referer(RegisterFacilities),
			"X-Requested-With": xmlHTTPRequest,
		}
	}},
}
