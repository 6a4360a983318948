package parsers

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"converter/internal"
)

// Title grammars shared by the site parsers. The stdlib regexp engine
// treats \b as an ASCII word boundary, which breaks on Cyrillic unit
// suffixes ("200 г,"), so boundaries are checked against the runes
// around each match instead.
var (
	assortRe = regexp.MustCompile(`(?i)в\s+ассортименте`)

	dimCmRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*[xх×]\s*(\d+(?:[.,]\d+)?)(?:\s*[xх×]\s*(\d+(?:[.,]\d+)?))?\s*см`)

	packageRe   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(кг|мл|kg|ml|г|л|g|l)`)
	multipackRe = regexp.MustCompile(`(?i)(\d+)\s*[xх×]\s*(\d+(?:[.,]\d+)?)\s*(кг|мл|kg|ml|г|л|g|l)`)
	pieceRe     = regexp.MustCompile(`(?i)(\d+)\s*(?:штук|шт)`)

	byWeightRe = regexp.MustCompile(`(?i)(весов(?:ой|ая|ые)?|на\s+вес)`)
	byVolumeRe = regexp.MustCompile(`(?i)(на\s+розлив|розлив|разлив)`)

	bareNumberRe = regexp.MustCompile(`\d+`)
)

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// findBounded returns submatch index slices whose match is followed by
// a non-word rune (or end of string). With leftBound it also requires
// a non-word rune before the match.
func findBounded(re *regexp.Regexp, s string, leftBound bool) [][]int {
	var out [][]int
	for _, m := range re.FindAllStringSubmatchIndex(s, -1) {
		if leftBound && m[0] > 0 {
			if r, _ := utf8.DecodeLastRuneInString(s[:m[0]]); isWordRune(r) {
				continue
			}
		}
		if m[1] < len(s) {
			if r, _ := utf8.DecodeRuneInString(s[m[1]:]); isWordRune(r) {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// removeBounded blanks every bounded match of the pattern.
func removeBounded(re *regexp.Regexp, s string, leftBound bool) string {
	matches := findBounded(re, s, leftBound)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	prev := 0
	for _, m := range matches {
		b.WriteString(s[prev:m[0]])
		b.WriteString(" ")
		prev = m[1]
	}
	b.WriteString(s[prev:])
	return b.String()
}

func group(s string, m []int, idx int) string {
	lo, hi := m[2*idx], m[2*idx+1]
	if lo < 0 {
		return ""
	}
	return s[lo:hi]
}

func parseDecimal(token string) float64 {
	parsed, _ := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(token, ",", ".")), 64)
	return parsed
}

// toPackageQuantity converts an extracted quantity token to the
// canonical package pair: grams and milliliters scale to KGM/LTR.
func toPackageQuantity(qtyToken, unitToken string) (*float64, *internal.PackageUnit) {
	qty := parseDecimal(qtyToken)

	switch strings.ToLower(unitToken) {
	case "г", "g":
		return pkgPair(qty/1000.0, internal.PackageKGM)
	case "кг", "kg":
		return pkgPair(qty, internal.PackageKGM)
	case "мл", "ml":
		return pkgPair(qty/1000.0, internal.PackageLTR)
	case "л", "l":
		return pkgPair(qty, internal.PackageLTR)
	}
	return nil, nil
}

func pkgPair(qty float64, unit internal.PackageUnit) (*float64, *internal.PackageUnit) {
	return &qty, &unit
}

// ExtractPackage picks the last weight/volume token of a title.
func ExtractPackage(title string) (*float64, *internal.PackageUnit) {
	matches := findBounded(packageRe, title, false)
	if len(matches) == 0 {
		return nil, nil
	}
	m := matches[len(matches)-1]
	return toPackageQuantity(group(title, m, 1), group(title, m, 2))
}

// ExtractFirstPackage picks the first weight/volume token instead.
func ExtractFirstPackage(title string) (*float64, *internal.PackageUnit) {
	matches := findBounded(packageRe, title, false)
	if len(matches) == 0 {
		return nil, nil
	}
	m := matches[0]
	return toPackageQuantity(group(title, m, 1), group(title, m, 2))
}

// HasPackageToken reports whether the title carries any package token.
func HasPackageToken(s string) bool {
	return len(findBounded(packageRe, s, false)) > 0
}

// ExtractMultipack handles "25х2г"-style titles: piece count plus the
// per-piece package.
func ExtractMultipack(title string) (*float64, *float64, *internal.PackageUnit) {
	matches := findBounded(multipackRe, title, false)
	if len(matches) == 0 {
		return nil, nil, nil
	}
	m := matches[len(matches)-1]

	count := parseDecimal(group(title, m, 1))
	qty, unit := toPackageQuantity(group(title, m, 2), group(title, m, 3))
	return &count, qty, unit
}

// ExtractPieceCount handles "3шт"-style counts.
func ExtractPieceCount(title string) *float64 {
	matches := findBounded(pieceRe, title, false)
	if len(matches) == 0 {
		return nil
	}
	m := matches[len(matches)-1]
	count := parseDecimal(group(title, m, 1))
	return &count
}

// IsByWeight reports a bulk weight marker ("весовой", "на вес").
func IsByWeight(title string) bool {
	return len(findBounded(byWeightRe, title, true)) > 0
}

// IsByVolume reports a bulk volume marker ("на розлив").
func IsByVolume(title string) bool {
	return len(findBounded(byVolumeRe, title, true)) > 0
}

// RemoveAssortMarker strips the "в ассортименте" marker.
func RemoveAssortMarker(title string) string {
	return removeBounded(assortRe, title, true)
}

// HasDimensions reports a centimeter dimension token ("10х1,5 см"),
// which must never be read as a package quantity.
func HasDimensions(s string) bool {
	return len(findBounded(dimCmRe, s, false)) > 0
}

// HasBareNumber reports a standalone integer token.
func HasBareNumber(s string) bool {
	return len(findBounded(bareNumberRe, s, true)) > 0
}

// StripPackTokens removes multipack, package and piece-count tokens,
// leaving the product name. Falls back to the trimmed input when
// stripping would leave nothing.
func StripPackTokens(title string) string {
	value := removeBounded(multipackRe, title, false)
	value = removeBounded(packageRe, value, false)
	value = removeBounded(pieceRe, value, false)
	value = strings.Trim(multispaceRe.ReplaceAllString(value, " "), " ,.;:-")
	if value == "" {
		return strings.TrimSpace(title)
	}
	return value
}

// ScrubForCount blanks dimensions, package tokens and the assortment
// marker before the bare-number count heuristic runs.
func ScrubForCount(title string) string {
	scrubbed := removeBounded(dimCmRe, title, false)
	scrubbed = removeBounded(packageRe, scrubbed, false)
	return removeBounded(assortRe, scrubbed, true)
}

// CountHeuristic picks the piece count from the remaining standalone
// numbers: the last one in 2..200, or a lone number in 1..200.
func CountHeuristic(title string) *float64 {
	scrubbed := ScrubForCount(title)

	var numbers []int
	for _, m := range findBounded(bareNumberRe, scrubbed, true) {
		if n, err := strconv.Atoi(scrubbed[m[0]:m[1]]); err == nil {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) == 0 {
		return nil
	}

	var plausible []int
	for _, n := range numbers {
		if n >= 2 && n <= 200 {
			plausible = append(plausible, n)
		}
	}
	if len(plausible) > 0 {
		count := float64(plausible[len(plausible)-1])
		return &count
	}

	if len(numbers) == 1 && numbers[0] >= 1 && numbers[0] <= 200 {
		count := float64(numbers[0])
		return &count
	}
	return nil
}
