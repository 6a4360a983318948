package chizhik

import (
	"strings"
	"unicode"

	"converter/internal"
	"converter/internal/parsers"
)

// Handler normalizes chizhik.club products. Titles inline pack tokens
// directly into the name: "Чай Greenfield 25х2г", "Салфетки 2шт".
type Handler struct{}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) Name() string {
	return "chizhik"
}

func (h *Handler) Normalize(raw internal.RawProduct) internal.NormalizedProduct {
	title := ParseTitle(raw.Title)
	return parsers.Compose(h.Name(), raw, title, parsers.Normalizers{
		Category: NormalizeCategory,
	})
}

// NormalizeCategory runs the category path through the shared text
// cleaner with stop words removed.
func NormalizeCategory(value string) *string {
	normalized := parsers.NormalizeSimple(value)
	if normalized == nil {
		return nil
	}
	return parsers.NormalizeCategoryText(*normalized)
}

// ParseTitle extracts name, brand, unit, count and package from one
// chizhik title. Multipack wins over a plain piece count; the package
// pair falls back to the last standalone weight/volume token.
func ParseTitle(title string) internal.TitleParse {
	raw := strings.TrimSpace(title)
	nameOriginal := parsers.StripPackTokens(raw)
	brand := extractBrand(nameOriginal)

	availableCount, packageQuantity, packageUnit := parsers.ExtractMultipack(raw)
	if availableCount == nil {
		availableCount = parsers.ExtractPieceCount(raw)
	}
	if packageQuantity == nil && packageUnit == nil {
		packageQuantity, packageUnit = parsers.ExtractPackage(raw)
	}

	var unit internal.Unit
	switch {
	case parsers.IsByWeight(raw):
		unit = internal.UnitKGM
		availableCount = nil
		packageQuantity, packageUnit = nil, nil
	case parsers.IsByVolume(raw):
		unit = internal.UnitLTR
		availableCount = nil
		packageQuantity, packageUnit = nil, nil
	default:
		unit = internal.UnitPCE
	}

	nameForNormalization := nameOriginal
	if brand != nil && !strings.Contains(strings.ToLower(nameOriginal), strings.ToLower(*brand)) {
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

// extractBrand collects the run of capitalized or Latin words right
// after the first word of the name, stopping at the first token with
// a digit. At most three words.
func extractBrand(namePart string) *string {
	fields := strings.Fields(namePart)
	words := make([]string, 0, len(fields))
	for _, token := range fields {
		token = strings.Trim(token, ".,;:()[]{}\"'«»")
		if token != "" {
			words = append(words, token)
		}
	}
	if len(words) < 2 {
		return nil
	}

	var candidates []string
	for _, token := range words[1:] {
		if containsDigit(token) {
			break
		}
		if hasLatin(token) || isUppercaseWord(token) || isTitleCaseWord(token) {
			candidates = append(candidates, token)
			continue
		}
		break
	}

	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	brand := strings.Join(candidates, " ")
	return &brand
}

func containsDigit(token string) bool {
	for _, r := range token {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasLatin(token string) bool {
	for _, r := range token {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func isUppercaseWord(token string) bool {
	hasLetter := false
	for _, r := range token {
		if !unicode.IsLetter(r) {
			continue
		}
		hasLetter = true
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return hasLetter
}

func isTitleCaseWord(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) {
			return unicode.IsUpper(r)
		}
	}
	return false
}
