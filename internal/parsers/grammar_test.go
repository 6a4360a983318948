package parsers

import (
	"testing"

	"converter/internal"
)

func TestExtractPackage(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantQty float64
		wantU   internal.PackageUnit
	}{
		{name: "grams scale to kg", input: "Шоколад 100г", wantQty: 0.1, wantU: internal.PackageKGM},
		{name: "kilograms kept", input: "Мука 2кг", wantQty: 2, wantU: internal.PackageKGM},
		{name: "milliliters scale to l", input: "Молоко 930мл", wantQty: 0.93, wantU: internal.PackageLTR},
		{name: "liters with comma", input: "Вода 1,5л", wantQty: 1.5, wantU: internal.PackageLTR},
		{name: "latin grams", input: "Chocolate 200 g", wantQty: 0.2, wantU: internal.PackageKGM},
		{name: "latin liter suffix", input: "Сок 1l", wantQty: 1, wantU: internal.PackageLTR},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qty, unit := ExtractPackage(tc.input)
			if qty == nil || unit == nil {
				t.Fatalf("got nil package for %q", tc.input)
			}
			if *qty != tc.wantQty || *unit != tc.wantU {
				t.Fatalf("got %v %v want %v %v", *qty, *unit, tc.wantQty, tc.wantU)
			}
		})
	}
}

func TestExtractPackageRejectsNonPackages(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{name: "dimensions", input: "Сумка 6.3х14.5х11.5см"},
		{name: "unit glued to word", input: "Сапоги размер 38гд"},
		{name: "no numbers", input: "Хлеб белый"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if qty, unit := ExtractPackage(tc.input); qty != nil || unit != nil {
				t.Fatalf("expected no package in %q", tc.input)
			}
		})
	}
}

func TestExtractMultipack(t *testing.T) {
	count, qty, unit := ExtractMultipack("Чай Greenfield 25х2г")
	if count == nil || qty == nil || unit == nil {
		t.Fatalf("multipack not found")
	}
	if *count != 25 || *qty != 0.002 || *unit != internal.PackageKGM {
		t.Fatalf("got count=%v qty=%v unit=%v", *count, *qty, *unit)
	}

	if count, _, _ := ExtractMultipack("Сумка 6.3х14.5х11.5см"); count != nil {
		t.Fatalf("dimensions must not read as multipack")
	}
}

func TestExtractPieceCount(t *testing.T) {
	if count := ExtractPieceCount("Чеснок 3шт"); count == nil || *count != 3 {
		t.Fatalf("got %v want 3", count)
	}
	if count := ExtractPieceCount("Салфетки 10 штук"); count == nil || *count != 10 {
		t.Fatalf("got %v want 10", count)
	}
	if count := ExtractPieceCount("Штукатурка финишная"); count != nil {
		t.Fatalf("expected nil, got %v", *count)
	}
}

func TestBulkMarkers(t *testing.T) {
	if !IsByWeight("Арбуз весовой") {
		t.Fatalf("весовой must mark by-weight")
	}
	if !IsByWeight("Морковь на вес") {
		t.Fatalf("на вес must mark by-weight")
	}
	if IsByWeight("развесовка") {
		t.Fatalf("embedded token must not mark by-weight")
	}
	if !IsByVolume("Квас на розлив") {
		t.Fatalf("на розлив must mark by-volume")
	}
}

func TestCountHeuristic(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  *float64
	}{
		{name: "count survives package scrub", input: "Шоколад молочный, 200 г, 15 шт", want: floatPtr(15)},
		{name: "glued count not a word boundary", input: "Свечи 6шт", want: nil},
		{name: "dimensions scrubbed", input: "Ручка, 10х1,5 см", want: nil},
		{name: "lone small number", input: "Носки 1 пара", want: floatPtr(1)},
		{name: "implausible number ignored", input: "Салфетки 500", want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CountHeuristic(tc.input)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("got %v want nil", *got)
				}
				return
			}
			if got == nil || *got != *tc.want {
				t.Fatalf("got %v want %v", got, *tc.want)
			}
		})
	}
}

func TestStripPackTokens(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "multipack removed", input: "Чай Greenfield 25х2г", want: "Чай Greenfield"},
		{name: "piece count removed", input: "Чеснок, 3шт", want: "Чеснок"},
		{name: "nothing to strip", input: "Хлеб белый", want: "Хлеб белый"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripPackTokens(tc.input); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
