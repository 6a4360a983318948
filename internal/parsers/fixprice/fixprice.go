package fixprice

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"converter/internal"
	"converter/internal/parsers"
)

// Handler normalizes fixprice.ru products. Titles are comma-segmented:
// "Чай Greenfield, 25 пакетиков" — name first, often a brand segment
// second, package tokens anywhere.
type Handler struct{}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) Name() string {
	return "fixprice"
}

func (h *Handler) Normalize(raw internal.RawProduct) internal.NormalizedProduct {
	title := ParseTitle(raw.Title)
	return parsers.Compose(h.Name(), raw, title, parsers.Normalizers{
		Category:    normalizeCategory,
		Geo:         parsers.NormalizeGeoDefault,
		Composition: normalizeComposition,
	})
}

var categoryAliases = map[string]string{
	"напитки и соки":         "напитки",
	"канцтовары":             "канцелярия",
	"бытовая химия и уборка": "бытовая химия",
}

var commaSpacesRe = regexp.MustCompile(`\s*,\s*`)

func normalizeCategory(value string) *string {
	normalized := parsers.NormalizeSimple(value)
	if normalized == nil {
		return nil
	}
	if alias, ok := categoryAliases[*normalized]; ok {
		return &alias
	}
	return normalized
}

func normalizeComposition(value string) *string {
	normalized := parsers.NormalizeSimple(value)
	if normalized == nil {
		return nil
	}
	respaced := commaSpacesRe.ReplaceAllString(*normalized, ", ")
	return &respaced
}

// ParseTitle extracts name, brand, unit, count and package from one
// fixprice title.
func ParseTitle(title string) internal.TitleParse {
	raw := strings.TrimSpace(title)
	parts := splitByCommas(raw)

	nameOriginal := raw
	if len(parts) > 0 {
		nameOriginal = parts[0]
	}
	brand := guessBrand(parts)

	withoutAssort := strings.Trim(parsers.RemoveAssortMarker(raw), " ,")

	packageQuantity, packageUnit := parsers.ExtractFirstPackage(withoutAssort)
	count := parsers.CountHeuristic(withoutAssort)

	var unit internal.Unit
	var availableCount *float64
	switch {
	case parsers.IsByWeight(withoutAssort):
		unit = internal.UnitKGM
		packageQuantity, packageUnit = nil, nil
	case parsers.IsByVolume(withoutAssort):
		unit = internal.UnitLTR
		packageQuantity, packageUnit = nil, nil
	default:
		unit = internal.UnitPCE
		availableCount = count
	}

	nameForNormalization := nameOriginal
	if brand != nil {
		nameForNormalization = nameOriginal + " " + *brand
	}
	nameNormalized := parsers.NormalizeName(nameForNormalization)

	return internal.TitleParse{
		RawTitle:     raw,
		NameOriginal: nameOriginal,
		Brand:        brand,

		NameNormalized:        nameNormalized,
		OriginalNoStopwords:   parsers.RemoveStopwords(nameOriginal),
		NormalizedNoStopwords: parsers.RemoveStopwords(nameNormalized),

		Unit:            unit,
		AvailableCount:  availableCount,
		PackageQuantity: packageQuantity,
		PackageUnit:     packageUnit,
	}
}

func splitByCommas(title string) []string {
	noAssort := strings.Trim(parsers.RemoveAssortMarker(title), " ,")
	var out []string
	for _, part := range strings.Split(noAssort, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// guessBrand takes the second comma segment unless it looks like a
// size, a package token or any other number-bearing text.
func guessBrand(parts []string) *string {
	if len(parts) < 2 {
		return nil
	}

	candidate := parts[1]
	if parsers.HasDimensions(candidate) || parsers.HasPackageToken(candidate) || parsers.HasBareNumber(candidate) {
		return nil
	}
	if utf8.RuneCountInString(parsers.CleanText(candidate)) < 2 {
		return nil
	}
	return &candidate
}
