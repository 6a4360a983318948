package parsers

import (
	"strings"

	"converter/internal"
	"converter/internal/util"
)

// Handler turns one raw receiver record into a normalized product.
// Implementations are stateless and safe for concurrent use.
type Handler interface {
	Name() string
	Normalize(raw internal.RawProduct) internal.NormalizedProduct
}

// Normalizers are the per-site field normalization hooks used by
// Compose. A nil hook falls back to NormalizeSimple.
type Normalizers struct {
	Category    func(string) *string
	Geo         func(string) *string
	Composition func(string) *string
}

// Compose merges a title parse with the raw record fields. Raw-record
// values win over title-derived ones; the package quantity/unit pair
// is taken from the title unless the raw record carries both halves.
func Compose(parserName string, raw internal.RawProduct, title internal.TitleParse, hooks Normalizers) internal.NormalizedProduct {
	brand := title.Brand
	if brand == nil {
		brand = util.TrimPtr(raw.Brand)
	}

	unit := title.Unit
	if raw.Unit != nil {
		unit = *raw.Unit
	}

	availableCount := raw.AvailableCount
	if availableCount == nil {
		availableCount = title.AvailableCount
	}

	packageQuantity := raw.PackageQuantity
	packageUnit := raw.PackageUnit
	if packageQuantity == nil || packageUnit == nil {
		packageQuantity = title.PackageQuantity
		packageUnit = title.PackageUnit
	}

	categoryRaw := util.TrimPtr(raw.Category)
	geoRaw := util.TrimPtr(raw.Geo)
	compositionRaw := util.TrimPtr(raw.Composition)
	if compositionRaw != nil {
		compositionRaw = util.TrimToNil(StripHTML(*compositionRaw))
	}

	out := internal.NormalizedProduct{
		ParserName: parserName,

		RawTitle:                   title.RawTitle,
		TitleOriginal:              title.NameOriginal,
		TitleNormalized:            title.NameNormalized,
		TitleOriginalNoStopwords:   title.OriginalNoStopwords,
		TitleNormalizedNoStopwords: title.NormalizedNoStopwords,
		Brand:                      brand,

		Unit:            unit,
		AvailableCount:  availableCount,
		PackageQuantity: packageQuantity,
		PackageUnit:     packageUnit,

		SourceID: util.TrimPtr(raw.SourceID),
		PLU:      util.TrimPtr(raw.PLU),
		SKU:      util.TrimPtr(raw.SKU),

		CategoryRaw:    categoryRaw,
		GeoRaw:         geoRaw,
		CompositionRaw: compositionRaw,

		ImageURLs:  append([]string(nil), raw.ImageURLs...),
		ObservedAt: raw.ObservedAt,
		Payload:    clonePayload(raw.Payload),
	}

	out.CategoryNormalized = applyHook(hooks.Category, categoryRaw)
	out.GeoNormalized = applyHook(hooks.Geo, geoRaw)
	out.CompositionNormalized = applyHook(hooks.Composition, compositionRaw)

	return out
}

func applyHook(hook func(string) *string, value *string) *string {
	if value == nil {
		return nil
	}
	if hook == nil {
		return NormalizeSimple(*value)
	}
	return hook(*value)
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		out[key] = value
	}
	return out
}

// NormalizeGeoDefault folds a geo string and collapses the long-form
// country name.
func NormalizeGeoDefault(value string) *string {
	normalized := NormalizeSimple(value)
	if normalized == nil {
		return nil
	}
	if *normalized == "российская федерация" {
		return util.StringPtr("россия")
	}
	return normalized
}

// CanonicalName lowercases and trims a parser name for registry and
// dedup keys.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
