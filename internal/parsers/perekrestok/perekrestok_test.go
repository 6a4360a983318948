package perekrestok

import (
	"testing"
	"time"

	"converter/internal"
	"converter/internal/parsers/chizhik"
)

func TestTitleGrammarSharedWithChizhik(t *testing.T) {
	cases := []struct {
		name      string
		title     string
		wantCount *float64
		wantQty   *float64
		wantUnit  *internal.PackageUnit
	}{
		{name: "single package volume", title: "Вода питьевая Сенежская негазированная, 1.5л", wantQty: floatPtr(1.5), wantUnit: pkgPtr(internal.PackageLTR)},
		{name: "multipack weight", title: "Пончик Перекрёсток Берлинский с варёной сгущёнкой, 2х64г", wantCount: floatPtr(2), wantQty: floatPtr(0.064), wantUnit: pkgPtr(internal.PackageKGM)},
		{name: "piece count", title: "Чеснок, 3шт", wantCount: floatPtr(3)},
		{name: "dimensions ignored", title: "Сумка подарочная Арт и Дизайн DE 6.3х14.5х11.5см"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := chizhik.ParseTitle(tc.title)

			if result.Unit != internal.UnitPCE {
				t.Fatalf("unit: got %v", result.Unit)
			}
			checkFloat(t, "count", result.AvailableCount, tc.wantCount)
			checkFloat(t, "package quantity", result.PackageQuantity, tc.wantQty)
			if (result.PackageUnit == nil) != (tc.wantUnit == nil) {
				t.Fatalf("package unit: got %v want %v", result.PackageUnit, tc.wantUnit)
			}
			if result.PackageUnit != nil && *result.PackageUnit != *tc.wantUnit {
				t.Fatalf("package unit: got %v want %v", *result.PackageUnit, *tc.wantUnit)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	h := New()
	raw := internal.RawProduct{
		ParserName: "perekrestok",
		Title:      "Сумка подарочная Арт и Дизайн DE 6.3х14.5х11.5см",
		PLU:        strPtr("2103416"),
		SourceID:   strPtr("receiver:run-perekrestok:1"),
		Category:   strPtr("напитки и соки"),
		ObservedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	normalized := h.Normalize(raw)

	if normalized.ParserName != "perekrestok" {
		t.Fatalf("parser name: got %q", normalized.ParserName)
	}
	if normalized.PLU == nil || *normalized.PLU != "2103416" {
		t.Fatalf("plu: got %v", normalized.PLU)
	}
	if normalized.Unit != internal.UnitPCE {
		t.Fatalf("unit: got %v", normalized.Unit)
	}
	if normalized.CategoryNormalized == nil || *normalized.CategoryNormalized != "напитки соки" {
		t.Fatalf("category: got %v", normalized.CategoryNormalized)
	}
}

func checkFloat(t *testing.T, field string, got, want *float64) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("%s: got %v want %v", field, got, want)
	}
	if got != nil && *got != *want {
		t.Fatalf("%s: got %v want %v", field, *got, *want)
	}
}

func strPtr(v string) *string {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}

func pkgPtr(v internal.PackageUnit) *internal.PackageUnit {
	return &v
}
