package parsers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML extracts the text of an HTML fragment. Scraped composition
// fields sometimes arrive as markup; plain strings pass through.
func StripHTML(value string) string {
	if !strings.Contains(value, "<") {
		return value
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return value
	}

	doc.Find("br").Each(func(_ int, sel *goquery.Selection) {
		sel.ReplaceWithHtml(" ")
	})

	text := strings.TrimSpace(multispaceRe.ReplaceAllString(doc.Text(), " "))
	if text == "" {
		return value
	}
	return text
}
