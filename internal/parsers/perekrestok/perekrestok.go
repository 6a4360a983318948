package perekrestok

import (
	"converter/internal"
	"converter/internal/parsers"
	"converter/internal/parsers/chizhik"
)

// Handler normalizes perekrestok.ru products. The title format is
// compatible with the chizhik extraction rules (multipack "2х64г",
// single package "1.5л"/"100г", piece count "3шт"), so the chizhik
// grammar is reused as-is.
type Handler struct{}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) Name() string {
	return "perekrestok"
}

func (h *Handler) Normalize(raw internal.RawProduct) internal.NormalizedProduct {
	title := chizhik.ParseTitle(raw.Title)
	return parsers.Compose(h.Name(), raw, title, parsers.Normalizers{
		Category: chizhik.NormalizeCategory,
	})
}
