package fixprice

import (
	"testing"
	"time"

	"converter/internal"
)

func TestParseTitleBrandAndStopwords(t *testing.T) {
	result := ParseTitle(`Ручка гелевая "Помада", With Love, 10х1,5 см, в ассортименте`)

	if result.NameOriginal != `Ручка гелевая "Помада"` {
		t.Fatalf("name: got %q", result.NameOriginal)
	}
	if result.Brand == nil || *result.Brand != "With Love" {
		t.Fatalf("brand: got %v", result.Brand)
	}
	if result.Unit != internal.UnitPCE {
		t.Fatalf("unit: got %v", result.Unit)
	}
	if result.OriginalNoStopwords != "ручка гелевая помада" {
		t.Fatalf("no-stopwords: got %q", result.OriginalNoStopwords)
	}
	if result.PackageQuantity != nil || result.PackageUnit != nil {
		t.Fatalf("dimensions must not become a package: %v %v", result.PackageQuantity, result.PackageUnit)
	}
}

func TestParseTitlePackageAndCount(t *testing.T) {
	result := ParseTitle("Шоколад молочный, 200 г, 15 шт, в ассортименте")

	if result.Unit != internal.UnitPCE {
		t.Fatalf("unit: got %v", result.Unit)
	}
	if result.AvailableCount == nil || *result.AvailableCount != 15 {
		t.Fatalf("count: got %v", result.AvailableCount)
	}
	if result.PackageQuantity == nil || *result.PackageQuantity != 0.2 {
		t.Fatalf("package quantity: got %v", result.PackageQuantity)
	}
	if result.PackageUnit == nil || *result.PackageUnit != internal.PackageKGM {
		t.Fatalf("package unit: got %v", result.PackageUnit)
	}
}

func TestParseTitleBulkMarkers(t *testing.T) {
	byWeight := ParseTitle("Арбуз весовой, 200 г")
	if byWeight.Unit != internal.UnitKGM {
		t.Fatalf("unit: got %v", byWeight.Unit)
	}
	if byWeight.AvailableCount != nil || byWeight.PackageQuantity != nil || byWeight.PackageUnit != nil {
		t.Fatalf("bulk weight must clear count and package")
	}

	byVolume := ParseTitle("Квас на розлив")
	if byVolume.Unit != internal.UnitLTR {
		t.Fatalf("unit: got %v", byVolume.Unit)
	}
}

func TestNormalizeAppliesAliases(t *testing.T) {
	h := New()
	raw := internal.RawProduct{
		ParserName:  "fixprice",
		Title:       "Сок яблочный, 200 мл",
		Category:    strPtr("Напитки и соки"),
		Geo:         strPtr("Российская Федерация"),
		Composition: strPtr("Яблоко ,  вода"),
		ObservedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	normalized := h.Normalize(raw)

	if normalized.CategoryNormalized == nil || *normalized.CategoryNormalized != "напитки" {
		t.Fatalf("category: got %v", normalized.CategoryNormalized)
	}
	if normalized.GeoNormalized == nil || *normalized.GeoNormalized != "россия" {
		t.Fatalf("geo: got %v", normalized.GeoNormalized)
	}
	if normalized.CompositionNormalized == nil || *normalized.CompositionNormalized != "яблоко, вода" {
		t.Fatalf("composition: got %v", normalized.CompositionNormalized)
	}
	if normalized.PackageQuantity == nil || *normalized.PackageQuantity != 0.2 {
		t.Fatalf("package quantity: got %v", normalized.PackageQuantity)
	}
	if normalized.PackageUnit == nil || *normalized.PackageUnit != internal.PackageLTR {
		t.Fatalf("package unit: got %v", normalized.PackageUnit)
	}
}

func TestNormalizeRawFieldsWin(t *testing.T) {
	h := New()
	unit := internal.UnitKGM
	raw := internal.RawProduct{
		ParserName:     "fixprice",
		Title:          "Шоколад молочный, 200 г, 15 шт",
		Brand:          strPtr("Аленка"),
		Unit:           &unit,
		AvailableCount: floatPtr(3),
		ObservedAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	normalized := h.Normalize(raw)

	if normalized.Unit != internal.UnitKGM {
		t.Fatalf("raw unit must win: got %v", normalized.Unit)
	}
	if normalized.AvailableCount == nil || *normalized.AvailableCount != 3 {
		t.Fatalf("raw count must win: got %v", normalized.AvailableCount)
	}
	// no brand segment in the title, so the raw brand survives
	if normalized.Brand == nil || *normalized.Brand != "Аленка" {
		t.Fatalf("brand: got %v", normalized.Brand)
	}
}

func strPtr(v string) *string {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}
