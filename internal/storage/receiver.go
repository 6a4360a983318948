package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"converter/internal"
	"converter/internal/util"
)

// ErrIncompatibleSchema marks a database this converter cannot work
// with. The receiver check must pass before any catalog write.
var ErrIncompatibleSchema = errors.New("incompatible database schema")

// Cursor is the keyset position inside the receiver: the ingestion
// timestamp of the last consumed artifact plus the product row id as a
// tie breaker.
type Cursor struct {
	IngestedAt string `json:"ingested_at"`
	ProductID  int64  `json:"product_id"`
}

// Receiver reads scraped product rows out of a receiver database. The
// converter never writes there.
type Receiver struct {
	db *DB
}

func OpenReceiver(location string) (*Receiver, error) {
	db, err := Open(location)
	if err != nil {
		return nil, err
	}
	return &Receiver{db: db}, nil
}

func (r *Receiver) Close() error {
	return r.db.Close()
}

// CheckSchema verifies the receiver looks like one: the run_artifacts
// table must exist and carry a parser_name column.
func (r *Receiver) CheckSchema() error {
	ok, err := r.db.tableExists("run_artifacts")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: missing run_artifacts table", ErrIncompatibleSchema)
	}
	ok, err = r.db.columnExists("run_artifacts", "parser_name")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: run_artifacts has no parser_name column", ErrIncompatibleSchema)
	}
	return nil
}

type receiverRow struct {
	productID  int64
	artifactID int64
	runID      string
	source     *string
	parserName string
	ingestedAt string

	sku             *string
	plu             *string
	title           *string
	composition     *string
	brand           *string
	unit            *string
	availableCount  *float64
	packageQuantity *float64
	packageUnit     *string
	categoriesJSON  *string
	mainImage       *string
	sortOrder       *int64

	geoName    *string
	geoRegion  *string
	geoCountry *string
}

// FetchBatch returns up to limit products for the parser ordered by
// (ingested_at, product id), strictly after the cursor. The returned
// cursor points at the last row of the batch, nil when the batch is
// empty.
func (r *Receiver) FetchBatch(ctx context.Context, parserName string, after *Cursor, limit int) ([]internal.RawProduct, *Cursor, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `
SELECT p.id, a.id, a.run_id, a.source, a.parser_name, a.ingested_at,
       p.sku, p.plu, p.title, p.composition, p.brand, p.unit,
       p.available_count, p.package_quantity, p.package_unit,
       p.categories_uid_json, p.main_image, p.sort_order,
       u.name, u.region, u.country
FROM run_artifact_products p
JOIN run_artifacts a ON a.id = p.artifact_id
LEFT JOIN run_artifact_administrative_units u ON u.artifact_id = a.id
WHERE lower(a.parser_name) = ?`
	args := []any{strings.ToLower(strings.TrimSpace(parserName))}

	if after != nil {
		query += `
  AND (a.ingested_at > ? OR (a.ingested_at = ? AND p.id > ?))`
		args = append(args, after.IngestedAt, after.IngestedAt, after.ProductID)
	}
	query += `
ORDER BY a.ingested_at ASC, p.id ASC
LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.conn.QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var batch []receiverRow
	for rows.Next() {
		var row receiverRow
		if err := rows.Scan(
			&row.productID, &row.artifactID, &row.runID, &row.source, &row.parserName, &row.ingestedAt,
			&row.sku, &row.plu, &row.title, &row.composition, &row.brand, &row.unit,
			&row.availableCount, &row.packageQuantity, &row.packageUnit,
			&row.categoriesJSON, &row.mainImage, &row.sortOrder,
			&row.geoName, &row.geoRegion, &row.geoCountry,
		); err != nil {
			return nil, nil, err
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(batch) == 0 {
		return nil, nil, nil
	}

	categories := map[int64]map[string]string{}
	images := map[int64][]string{}
	for _, row := range batch {
		if _, ok := categories[row.artifactID]; !ok {
			lookup, err := r.artifactCategories(ctx, row.artifactID)
			if err != nil {
				return nil, nil, err
			}
			categories[row.artifactID] = lookup
		}
		urls, err := r.productImages(ctx, row.productID)
		if err != nil {
			return nil, nil, err
		}
		images[row.productID] = urls
	}

	out := make([]internal.RawProduct, 0, len(batch))
	for _, row := range batch {
		out = append(out, r.toRawProduct(row, categories[row.artifactID], images[row.productID]))
	}

	last := batch[len(batch)-1]
	return out, &Cursor{IngestedAt: last.ingestedAt, ProductID: last.productID}, nil
}

func (r *Receiver) artifactCategories(ctx context.Context, artifactID int64) (map[string]string, error) {
	rows, err := r.db.conn.QueryContext(ctx, r.db.rebind(`
SELECT uid, title FROM run_artifact_categories WHERE artifact_id = ?`), artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var uid, title string
		if err := rows.Scan(&uid, &title); err != nil {
			return nil, err
		}
		uid = strings.TrimSpace(uid)
		if uid == "" {
			continue
		}
		out[strings.ToLower(uid)] = strings.TrimSpace(title)
	}
	return out, rows.Err()
}

func (r *Receiver) productImages(ctx context.Context, productID int64) ([]string, error) {
	rows, err := r.db.conn.QueryContext(ctx, r.db.rebind(`
SELECT url FROM run_artifact_product_images WHERE product_id = ? ORDER BY sort_order ASC`), productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		if url = strings.TrimSpace(url); url != "" {
			out = append(out, url)
		}
	}
	return out, rows.Err()
}

func (r *Receiver) toRawProduct(row receiverRow, categoryTitles map[string]string, gallery []string) internal.RawProduct {
	raw := internal.RawProduct{
		ParserName:      strings.ToLower(strings.TrimSpace(row.parserName)),
		SKU:             util.TrimPtr(row.sku),
		PLU:             util.TrimPtr(row.plu),
		Brand:           util.TrimPtr(row.brand),
		Composition:     util.TrimPtr(row.composition),
		AvailableCount:  row.availableCount,
		PackageQuantity: row.packageQuantity,
		ObservedAt:      parseReceiverTime(row.ingestedAt),
	}

	title := ""
	if row.title != nil {
		title = strings.TrimSpace(*row.title)
	}
	if title == "" {
		title = "Unnamed product"
	}
	raw.Title = title

	raw.SourceID = util.StringPtr(fmt.Sprintf("receiver:%s:%d", row.runID, row.productID))

	if row.unit != nil {
		u := internal.Unit(strings.ToUpper(strings.TrimSpace(*row.unit)))
		switch u {
		case internal.UnitPCE, internal.UnitKGM, internal.UnitLTR:
			raw.Unit = &u
		}
	}
	if row.packageUnit != nil {
		u := internal.PackageUnit(strings.ToUpper(strings.TrimSpace(*row.packageUnit)))
		switch u {
		case internal.PackageKGM, internal.PackageLTR:
			raw.PackageUnit = &u
		}
	}

	uids := categoryUIDs(row.categoriesJSON)
	raw.Category = joinCategoryTitles(uids, categoryTitles)
	raw.Geo = util.TrimPtr(row.geoName)

	seen := map[string]struct{}{}
	appendURL := func(url string) {
		url = strings.TrimSpace(url)
		if url == "" {
			return
		}
		if _, dup := seen[url]; dup {
			return
		}
		seen[url] = struct{}{}
		raw.ImageURLs = append(raw.ImageURLs, url)
	}
	if row.mainImage != nil {
		appendURL(*row.mainImage)
	}
	for _, url := range gallery {
		appendURL(url)
	}

	payload := map[string]any{
		"receiver_run_id":      row.runID,
		"receiver_artifact_id": row.artifactID,
		"receiver_product_id":  row.productID,
	}
	if row.source != nil && strings.TrimSpace(*row.source) != "" {
		payload["receiver_source"] = strings.TrimSpace(*row.source)
	}
	if row.sortOrder != nil {
		payload["receiver_sort_order"] = *row.sortOrder
	}
	if v := util.TrimPtr(row.geoCountry); v != nil {
		payload["receiver_geo_country"] = *v
	}
	if v := util.TrimPtr(row.geoRegion); v != nil {
		payload["receiver_geo_region"] = *v
	}
	if v := util.TrimPtr(row.geoName); v != nil {
		payload["receiver_geo_name"] = *v
	}
	if len(uids) > 0 {
		list := make([]map[string]any, 0, len(uids))
		for _, uid := range uids {
			list = append(list, map[string]any{"uid": uid, "title": categoryTitles[strings.ToLower(uid)]})
		}
		payload["receiver_categories"] = list
	}
	raw.Payload = payload

	return raw
}

func categoryUIDs(categoriesJSON *string) []string {
	if categoriesJSON == nil || strings.TrimSpace(*categoriesJSON) == "" {
		return nil
	}
	var uids []string
	if err := json.Unmarshal([]byte(*categoriesJSON), &uids); err != nil {
		return nil
	}
	out := make([]string, 0, len(uids))
	for _, uid := range uids {
		if uid = strings.TrimSpace(uid); uid != "" {
			out = append(out, uid)
		}
	}
	return out
}

// joinCategoryTitles renders the product's category path, skipping
// unknown uids and case-insensitive repeats.
func joinCategoryTitles(uids []string, titles map[string]string) *string {
	var parts []string
	seen := map[string]struct{}{}
	for _, uid := range uids {
		title := titles[strings.ToLower(uid)]
		if title == "" {
			continue
		}
		key := strings.ToLower(title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		parts = append(parts, title)
	}
	if len(parts) == 0 {
		return nil
	}
	return util.StringPtr(strings.Join(parts, " / "))
}

func parseReceiverTime(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
