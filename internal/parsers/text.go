package parsers

import (
	"regexp"
	"strings"
)

var (
	quoteRe      = regexp.MustCompile(`["“”«»]`)
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s.,xх×-]+`)
	multispaceRe = regexp.MustCompile(`\s+`)
	tokenRe      = regexp.MustCompile(`[a-zа-я0-9-]+`)
	latinRe      = regexp.MustCompile(`[a-z]`)
	cyrillicRe   = regexp.MustCompile(`[а-я]`)

	categorySeparatorsRe = regexp.MustCompile(`[/,]+`)
)

// Scraped titles routinely mix Latin lookalikes into Cyrillic words
// ("Cалфетки" with a Latin C). Tokens holding both scripts get their
// Latin confusables mapped back to Cyrillic.
var latinToCyrillic = strings.NewReplacer(
	"a", "а",
	"b", "в",
	"c", "с",
	"e", "е",
	"h", "н",
	"k", "к",
	"m", "м",
	"o", "о",
	"p", "р",
	"t", "т",
	"x", "х",
	"y", "у",
)

// Stop words dropped from the no-stopword title variants.
var stopwords = map[string]struct{}{
	"в": {}, "на": {}, "для": {}, "и": {}, "с": {}, "со": {},
	"по": {}, "из": {}, "к": {}, "от": {}, "при": {}, "под": {},
	"над": {}, "без": {}, "про": {}, "за": {}, "у": {}, "о": {},
	"об": {}, "обо": {}, "это": {}, "эта": {}, "этот": {}, "эти": {},
	"ассортимент": {}, "ассорти": {}, "уп": {}, "упаковка": {}, "упаковки": {},
}

// CleanText lowercases the input, folds ё, repairs mixed-script
// tokens, strips quotes and punctuation noise and collapses spaces.
func CleanText(text string) string {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned = strings.ReplaceAll(cleaned, "ё", "е")
	cleaned = strings.ReplaceAll(cleaned, "×", "x")
	cleaned = tokenRe.ReplaceAllStringFunc(cleaned, fixMixedScriptToken)
	cleaned = quoteRe.ReplaceAllString(cleaned, "")
	cleaned = nonWordRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(multispaceRe.ReplaceAllString(cleaned, " "))
}

func fixMixedScriptToken(token string) string {
	if !cyrillicRe.MatchString(token) || !latinRe.MatchString(token) {
		return token
	}
	return latinToCyrillic.Replace(token)
}

// Tokenize splits cleaned text into word tokens.
func Tokenize(text string) []string {
	return tokenRe.FindAllString(CleanText(text), -1)
}

// NormalizeName produces the normalized title form: cleaned word
// tokens joined by single spaces. No lemmatization is applied.
func NormalizeName(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// RemoveStopwords drops the assortment marker and stop-word tokens.
func RemoveStopwords(text string) string {
	cleaned := removeBounded(assortRe, CleanText(text), true)
	tokens := tokenRe.FindAllString(cleaned, -1)
	filtered := tokens[:0]
	for _, token := range tokens {
		if _, skip := stopwords[token]; skip {
			continue
		}
		filtered = append(filtered, token)
	}
	return strings.Join(filtered, " ")
}

// NormalizeSimple is the default field normalization: lowercase,
// ё folded, whitespace collapsed. Nil for blank input.
func NormalizeSimple(value string) *string {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	cleaned = strings.ReplaceAll(cleaned, "ё", "е")
	cleaned = strings.TrimSpace(multispaceRe.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// NormalizeCategoryText normalizes a category path: separators become
// spaces, then the usual name normalization with stop words removed.
func NormalizeCategoryText(value string) *string {
	collapsed := strings.TrimSpace(multispaceRe.ReplaceAllString(categorySeparatorsRe.ReplaceAllString(value, " "), " "))
	if collapsed == "" {
		return nil
	}

	normalized := NormalizeName(collapsed)
	if normalized == "" {
		return nil
	}

	if withoutStopwords := RemoveStopwords(normalized); withoutStopwords != "" {
		return &withoutStopwords
	}
	return &normalized
}
