package verify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Kind is a record type served by one verification service.
type Kind string

const (
	KindFacility   Kind = "facility"
	KindPharmacist Kind = "pharmacist"
	KindPharmtech  Kind = "pharmtech"
)

var Kinds = []Kind{KindFacility, KindPharmacist, KindPharmtech}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown record kind %q, expected one of %v", s, Kinds)
}

// Messages are the envelope messages of one record type. NotFound takes the
// normalized identifier as its only argument.
type Messages struct {
	InvalidInput  string
	InvalidFormat string
	NotFound      string
	DetailFailed  string
	Incomplete    string
	Success       string
}

// Profile bundles everything that differs between record types. The
// verification pipeline itself is shared.
type Profile[R any] struct {
	Kind          Kind
	IdentifierKey string
	// CachePrefix namespaces the record type in a shared cache.
	CachePrefix string
	Messages    Messages

	Normalize func(identifier string) string
	// Format rejects malformed identifiers before any request, nil accepts all.
	Format *regexp.Regexp

	// Search runs the search step and returns the record token along with any
	// fields the search response already carries. found is false when the
	// register has no matching record.
	Search func(ctx context.Context, identifier string) (token string, seed R, found bool, err error)
	// Detail fetches the details page of a record token.
	Detail func(ctx context.Context, token string) (string, error)
	// Parse combines the search fields and the details page into a record.
	Parse func(seed R, markup string) R
	// Complete reports whether the record carries its mandatory license number.
	Complete func(record R) bool
	// Stamp sets the verified_at timestamp.
	Stamp func(record *R, verifiedAt string)
}

// CacheKey derives the cache key of a normalized identifier.
func CacheKey(normalized string) string {
	return "detailed:" + normalized
}

func trimOnly(identifier string) string {
	return strings.TrimSpace(identifier)
}

func trimUpper(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}
