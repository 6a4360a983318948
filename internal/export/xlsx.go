package export

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"converter/internal/storage"
)

// ProductsToXLSX dumps the current projection to a spreadsheet, one
// product per row.
func ProductsToXLSX(rows []storage.ProductRow, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"id", "parser_name", "title_raw", "title_normalized", "brand",
		"plu", "sku", "source_id", "unit", "available_count",
		"package_quantity", "package_unit",
		"category_raw", "category_normalized", "geo_normalized",
		"composition_normalized", "images", "observed_at",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.ID)
		set(2, row.ParserName)
		set(3, row.TitleRaw)
		set(4, row.TitleNormalized)
		set(5, derefString(row.Brand))
		set(6, derefString(row.PLU))
		set(7, derefString(row.SKU))
		set(8, derefString(row.SourceID))
		set(9, row.Unit)
		set(10, derefFloat(row.AvailableCount))
		set(11, derefFloat(row.PackageQuantity))
		set(12, derefString(row.PackageUnit))
		set(13, derefString(row.CategoryRaw))
		set(14, derefString(row.CategoryNormalized))
		set(15, derefString(row.GeoNormalized))
		set(16, derefString(row.CompositionNormalized))
		set(17, derefString(row.ImagesJSON))
		set(18, row.ObservedAt)
	}

	if dir := filepath.Dir(outputPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
