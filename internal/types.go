package internal

import (
	"strings"
	"time"
)

// Unit is the normalized sale unit of a product.
type Unit string

const (
	UnitPCE Unit = "PCE"
	UnitKGM Unit = "KGM"
	UnitLTR Unit = "LTR"
)

// PackageUnit is the unit of the per-item package quantity. Only
// weight and volume make sense here.
type PackageUnit string

const (
	PackageKGM PackageUnit = "KGM"
	PackageLTR PackageUnit = "LTR"
)

// RawProduct is one scraped product row as it leaves the receiver
// database, before any parser-specific normalization.
type RawProduct struct {
	ParserName string
	Title      string

	SourceID *string
	PLU      *string
	SKU      *string
	Brand    *string

	Unit            *Unit
	AvailableCount  *float64
	PackageQuantity *float64
	PackageUnit     *PackageUnit

	Category    *string
	Geo         *string
	Composition *string

	ImageURLs  []string
	ObservedAt time.Time
	Payload    map[string]any
}

// TitleParse is what a site grammar extracts from a raw product title.
type TitleParse struct {
	RawTitle     string
	NameOriginal string
	Brand        *string

	NameNormalized        string
	OriginalNoStopwords   string
	NormalizedNoStopwords string

	Unit            Unit
	AvailableCount  *float64
	PackageQuantity *float64
	PackageUnit     *PackageUnit
}

// NormalizedProduct is the converter output: a title parse composed
// with the raw record fields, ready for the catalog.
type NormalizedProduct struct {
	ParserName string

	RawTitle                   string
	TitleOriginal              string
	TitleNormalized            string
	TitleOriginalNoStopwords   string
	TitleNormalizedNoStopwords string
	Brand                      *string

	Unit            Unit
	AvailableCount  *float64
	PackageQuantity *float64
	PackageUnit     *PackageUnit

	SourceID           *string
	PLU                *string
	SKU                *string
	CanonicalProductID string

	CategoryRaw           *string
	CategoryNormalized    *string
	GeoRaw                *string
	GeoNormalized         *string
	CompositionRaw        *string
	CompositionNormalized *string

	ImageURLs          []string
	DuplicateImageURLs []string
	ImageFingerprints  []string

	ObservedAt time.Time
	Payload    map[string]any
}

// IdentityCandidate is one lookup key for canonical id resolution.
type IdentityCandidate struct {
	Type  string
	Value string
}

// IdentityCandidates returns the identity keys of the record in
// resolution priority order: plu, then sku, then source_id. Empty
// values are skipped.
func (p *NormalizedProduct) IdentityCandidates() []IdentityCandidate {
	out := make([]IdentityCandidate, 0, 3)
	if v := trimmed(p.PLU); v != "" {
		out = append(out, IdentityCandidate{Type: "plu", Value: v})
	}
	if v := trimmed(p.SKU); v != "" {
		out = append(out, IdentityCandidate{Type: "sku", Value: v})
	}
	if v := trimmed(p.SourceID); v != "" {
		out = append(out, IdentityCandidate{Type: "source_id", Value: v})
	}
	return out
}

// FallbackIdentity returns the normalized-title key used when none of
// the strong identity candidates resolves, or "" when the record has
// no usable title.
func (p *NormalizedProduct) FallbackIdentity() string {
	if v := strings.TrimSpace(p.TitleNormalizedNoStopwords); v != "" {
		return v
	}
	return strings.TrimSpace(p.TitleNormalized)
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
