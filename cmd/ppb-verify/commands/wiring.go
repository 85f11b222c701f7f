package commands

import (
	"context"
	"fmt"

	"ppbverify/internal/cache"
	"ppbverify/internal/components/chrono"
	"ppbverify/internal/components/telemetry"
	"ppbverify/internal/config"
	"ppbverify/internal/httpclient"
	"ppbverify/internal/ratelimit"
	"ppbverify/internal/scrapers/ppb"
	"ppbverify/internal/verify"
	"ppbverify/lib/restyutil"
)

// newVerifier wires the portal client, rate limiter and cache of one record
// kind from cfg.
func newVerifier(
	ctx context.Context,
	cfg config.Config,
	kind verify.Kind,
	clock chrono.API,
	tel telemetry.API,
	verifyOpts ...verify.Option,
) (verify.Verifier, error) {
	opts := httpclient.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.Backoff(),
	}
	if cfg.CaptureDir != "" {
		output, err := restyutil.NewFilesystemOutput(cfg.CaptureDir)
		if err != nil {
			return nil, err
		}
		opts.Capture = output
	}
	hc, err := httpclient.New(opts, tel)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	limiter := ratelimit.New(cfg.Delay(), tel)
	portal := ppb.New(cfg.BaseURL, hc, limiter, clock, tel)

	return verify.Build(ctx, kind, portal, verify.CacheOptions{
		Enabled: cfg.CacheOn(),
		Config: cache.Config{
			Backend:    cfg.CacheBackend,
			DefaultTTL: cfg.TTL(),
			MaxSize:    cfg.CacheMaxSize,
			RedisURL:   cfg.RedisURL,
		},
	}, clock, tel, verifyOpts...)
}

func cliTelemetry() telemetry.API {
	return telemetry.SlogAPI{Logger: logger}
}
