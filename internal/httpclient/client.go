// Package httpclient builds the pooled HTTP client used to talk to the portal.
package httpclient

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"ppbverify/internal/components/assert"
	"ppbverify/internal/components/telemetry"
	"ppbverify/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("ppbverify.internal.httpclient")

// RetryableStatusCodes are the statuses that trigger a retry of a GET request.
var RetryableStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

const DefaultPoolSize = 10

type Options struct {
	BaseURL string
	// Timeout bounds every single attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts for a GET request.
	MaxRetries int
	// Backoff is the wait before the first retry, it doubles every retry.
	Backoff time.Duration
	// PoolSize bounds the connections to the portal, DefaultPoolSize if zero.
	PoolSize int
	// Capture receives every raw exchange when set.
	Capture restyutil.Output
}

// Client sends GET requests through a retrying resty client and POST requests
// through a client that never retries. Both share one connection pool and cookie jar.
type Client struct {
	get  *resty.Client
	post *resty.Client
}

func New(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotEmptyStr(opts.BaseURL)
	assert.NotNil(tel)
	assert.NonNegative("timeout", opts.Timeout)
	assert.NonNegative("backoff", opts.Backoff)

	tel = telemetry.NewScopedAPI("http_client", tel)

	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        opts.PoolSize,
		MaxIdleConnsPerHost: opts.PoolSize,
		MaxConnsPerHost:     opts.PoolSize,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	httpClient := &http.Client{
		Transport: cloudflarebp.AddCloudFlareByPass(transport),
		Jar:       jar,
	}

	get := newResty(httpClient, opts)
	get.SetRetryCount(opts.MaxRetries)
	if opts.MaxRetries > 0 {
		get.SetRetryWaitTime(opts.Backoff)
		get.SetRetryMaxWaitTime(time.Duration(float64(opts.Backoff) * math.Pow(2, float64(opts.MaxRetries))))
		get.AddRetryCondition(retryCondition)
	}
	telemetry.InstrumentResty(get, tel)
	restyutil.InstrumentClient(get, tracer, opts.Capture)

	post := newResty(httpClient, opts)
	post.SetRetryCount(0)
	telemetry.InstrumentResty(post, tel)
	restyutil.InstrumentClient(post, tracer, opts.Capture)

	return &Client{get: get, post: post}, nil
}

func newResty(httpClient *http.Client, opts Options) *resty.Client {
	client := resty.NewWithClient(httpClient)
	client.SetBaseURL(opts.BaseURL)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	return client
}

func retryCondition(res *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return res != nil && RetryableStatusCodes[res.StatusCode()]
}

// Get sends a GET request, retried on transport errors and RetryableStatusCodes.
// After the retries run out the last response is returned without an error.
func (c *Client) Get(ctx context.Context, path string, query url.Values, headers map[string]string) (*resty.Response, error) {
	return c.get.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		SetHeaders(headers).
		Get(path)
}

// PostForm sends a form encoded POST request exactly once.
func (c *Client) PostForm(ctx context.Context, path string, form map[string]string, headers map[string]string) (*resty.Response, error) {
	return c.post.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetFormData(form).
		Post(path)
}
