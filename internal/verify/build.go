package verify

import (
	"context"
	"fmt"

	"ppbverify/internal/cache"
	"ppbverify/internal/components/chrono"
	"ppbverify/internal/components/telemetry"
)

// CacheOptions selects the cache of a verifier.
type CacheOptions struct {
	Enabled bool
	cache.Config
}

// Build wires the verifier of one record type to the portal and its cache.
// The cache key prefix defaults to the record type's namespace.
func Build(
	ctx context.Context,
	kind Kind,
	portal Portal,
	cacheOpts CacheOptions,
	clock chrono.API,
	tel telemetry.API,
	opts ...Option,
) (Verifier, error) {
	switch kind {
	case KindFacility:
		return build(ctx, FacilityProfile(portal), cacheOpts, clock, tel, opts)
	case KindPharmacist:
		return build(ctx, PharmacistProfile(portal, tel), cacheOpts, clock, tel, opts)
	case KindPharmtech:
		return build(ctx, PharmtechProfile(portal, tel), cacheOpts, clock, tel, opts)
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}

func build[R any](
	ctx context.Context,
	profile Profile[R],
	cacheOpts CacheOptions,
	clock chrono.API,
	tel telemetry.API,
	opts []Option,
) (Verifier, error) {
	var store cache.Cache[Envelope[R]]
	if cacheOpts.Enabled {
		cfg := cacheOpts.Config
		if cfg.KeyPrefix == "" {
			cfg.KeyPrefix = profile.CachePrefix
		}
		c, err := cache.New[Envelope[R]](ctx, cfg, tel)
		if err != nil {
			return nil, fmt.Errorf("%s cache: %w", profile.Kind, err)
		}
		store = c
	}
	return New(profile, store, cacheOpts.DefaultTTL, clock, tel, opts...), nil
}
