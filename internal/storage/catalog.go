package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"converter/internal"
	"converter/internal/parsers"
	"converter/internal/pipeline"
	"converter/internal/util"
)

// Catalog is the write side: identity map, image fingerprints,
// append-only snapshots, reference tables and the current projection.
// It implements the pipeline stores on top of the database.
type Catalog struct {
	db *DB
	mu sync.Mutex
}

func OpenCatalog(location string) (*Catalog, error) {
	db, err := Open(location)
	if err != nil {
		return nil, err
	}
	c := &Catalog{db: db}
	if err := c.checkSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := c.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// checkSchema guards against pointing the converter at a foreign
// database that happens to have a catalog_products table.
func (c *Catalog) checkSchema() error {
	ok, err := c.db.tableExists("catalog_products")
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	for _, column := range []string{"primary_category_id", "settlement_id"} {
		ok, err := c.db.columnExists("catalog_products", column)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: catalog_products has no %s column", ErrIncompatibleSchema, column)
		}
	}
	return nil
}

// init runs the DDL one statement at a time: the postgres driver
// rejects multi-statement Exec.
func (c *Catalog) init() error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS catalog_settlements (
  id TEXT PRIMARY KEY,
  settlement_key TEXT NOT NULL UNIQUE,
  name TEXT,
  region TEXT,
  country TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_settlement_geodata (
  fingerprint TEXT PRIMARY KEY,
  settlement_id TEXT NOT NULL,
  latitude REAL NOT NULL,
  longitude REAL NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_categories (
  id TEXT PRIMARY KEY,
  category_key TEXT NOT NULL UNIQUE,
  parser_name TEXT NOT NULL,
  uid TEXT,
  title TEXT,
  title_normalized TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_product_identity (
  parser_name TEXT NOT NULL,
  key_type TEXT NOT NULL,
  key_value TEXT NOT NULL,
  product_id TEXT NOT NULL,
  created_at TEXT NOT NULL,
  PRIMARY KEY (parser_name, key_type, key_value)
);

CREATE TABLE IF NOT EXISTS catalog_image_fingerprints (
  fingerprint TEXT PRIMARY KEY,
  canonical_url TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_product_snapshots (
  id %s,
  product_id TEXT NOT NULL,
  parser_name TEXT NOT NULL,
  title_raw TEXT NOT NULL,
  title_original TEXT,
  title_normalized TEXT,
  title_original_no_stopwords TEXT,
  title_normalized_no_stopwords TEXT,
  brand TEXT,
  unit TEXT NOT NULL,
  available_count REAL,
  package_quantity REAL,
  package_unit TEXT,
  category_raw TEXT,
  category_normalized TEXT,
  geo_raw TEXT,
  geo_normalized TEXT,
  composition_raw TEXT,
  composition_normalized TEXT,
  images_json TEXT,
  settlement_id TEXT,
  observed_at TEXT NOT NULL,
  payload_json TEXT,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_product ON catalog_product_snapshots(product_id, observed_at);

CREATE TABLE IF NOT EXISTS catalog_snapshot_categories (
  snapshot_id BIGINT NOT NULL,
  category_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  is_primary INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (snapshot_id, category_id)
);

CREATE TABLE IF NOT EXISTS catalog_product_sources (
  parser_name TEXT NOT NULL,
  source_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  first_seen_at TEXT NOT NULL,
  last_seen_at TEXT NOT NULL,
  PRIMARY KEY (parser_name, source_id)
);

CREATE TABLE IF NOT EXISTS catalog_products (
  id TEXT PRIMARY KEY,
  parser_name TEXT NOT NULL,
  title_raw TEXT NOT NULL,
  title_original TEXT,
  title_normalized TEXT,
  title_original_no_stopwords TEXT,
  title_normalized_no_stopwords TEXT,
  brand TEXT,
  plu TEXT,
  sku TEXT,
  source_id TEXT,
  unit TEXT NOT NULL,
  available_count REAL,
  package_quantity REAL,
  package_unit TEXT,
  category_raw TEXT,
  category_normalized TEXT,
  geo_raw TEXT,
  geo_normalized TEXT,
  composition_raw TEXT,
  composition_normalized TEXT,
  images_json TEXT,
  primary_category_id TEXT,
  settlement_id TEXT,
  observed_at TEXT NOT NULL,
  payload_json TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_catalog_products_parser ON catalog_products(parser_name);

CREATE TABLE IF NOT EXISTS catalog_sync_state (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`, c.db.autoPK())

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := c.db.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Resolve implements pipeline.IdentityResolver on the identity table.
// Allocation is mutex-serialized; an id is never reassigned.
func (c *Catalog) Resolve(record *internal.NormalizedProduct) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.conn.Begin()
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	parser := parsers.CanonicalName(record.ParserName)
	candidates := record.IdentityCandidates()

	lookup := func(keyType, keyValue string) (string, bool, error) {
		var id string
		err := tx.QueryRow(c.db.rebind(`
SELECT product_id FROM catalog_product_identity
WHERE parser_name = ? AND key_type = ? AND key_value = ?`), parser, keyType, keyValue).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return id, true, nil
	}

	register := func(id string) error {
		now := nowISO()
		stmt := c.db.rebind(`
INSERT INTO catalog_product_identity (parser_name, key_type, key_value, product_id, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (parser_name, key_type, key_value) DO NOTHING`)
		for _, candidate := range candidates {
			if _, err := tx.Exec(stmt, parser, candidate.Type, candidate.Value, id, now); err != nil {
				return err
			}
		}
		if fallback := record.FallbackIdentity(); fallback != "" {
			if _, err := tx.Exec(stmt, parser, "normalized_name", fallback, id, now); err != nil {
				return err
			}
		}
		return nil
	}

	for _, candidate := range candidates {
		id, found, err := lookup(candidate.Type, candidate.Value)
		if err != nil {
			return "", err
		}
		if found {
			if err := register(id); err != nil {
				return "", err
			}
			return id, tx.Commit()
		}
	}

	id, found, err := lookup("normalized_name", record.FallbackIdentity())
	if err != nil {
		return "", err
	}
	if !found {
		id = uuid.NewString()
	}
	if err := register(id); err != nil {
		return "", err
	}
	return id, tx.Commit()
}

// Process implements pipeline.ImageDeduplicator on the fingerprint
// table. The first URL stored for a fingerprint stays canonical.
func (c *Catalog) Process(urls []string) (pipeline.DedupResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result pipeline.DedupResult
	seenInRecord := map[string]struct{}{}

	for _, rawURL := range urls {
		url := strings.TrimSpace(rawURL)
		if url == "" {
			continue
		}
		fingerprint := pipeline.FingerprintURL(url)

		if _, err := c.db.conn.Exec(c.db.rebind(`
INSERT INTO catalog_image_fingerprints (fingerprint, canonical_url, created_at)
VALUES (?, ?, ?)
ON CONFLICT (fingerprint) DO NOTHING`), fingerprint, url, nowISO()); err != nil {
			return pipeline.DedupResult{}, err
		}

		var canonical string
		if err := c.db.conn.QueryRow(c.db.rebind(`
SELECT canonical_url FROM catalog_image_fingerprints WHERE fingerprint = ?`), fingerprint).Scan(&canonical); err != nil {
			return pipeline.DedupResult{}, err
		}

		if _, repeat := seenInRecord[fingerprint]; repeat {
			if url != canonical {
				result.DuplicateURLs = append(result.DuplicateURLs, url)
			}
			continue
		}
		if url != canonical {
			result.DuplicateURLs = append(result.DuplicateURLs, url)
		}
		seenInRecord[fingerprint] = struct{}{}
		result.UniqueURLs = append(result.UniqueURLs, canonical)
		result.Fingerprints = append(result.Fingerprints, fingerprint)
	}

	return result, nil
}

// Apply implements pipeline.BackfillService over the snapshot history
// of the canonical product, falling back to the projection row when no
// snapshots exist yet.
func (c *Catalog) Apply(record *internal.NormalizedProduct) error {
	if record.CanonicalProductID == "" {
		return nil
	}

	rows, err := c.db.conn.Query(c.db.rebind(`
SELECT brand, category_normalized, geo_normalized, composition_normalized,
       package_quantity, package_unit, observed_at
FROM catalog_product_snapshots
WHERE product_id = ?`), record.CanonicalProductID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var history []pipeline.FieldHistory
	for rows.Next() {
		item, err := scanFieldHistory(rows)
		if err != nil {
			return err
		}
		history = append(history, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(history) == 0 {
		row := c.db.conn.QueryRow(c.db.rebind(`
SELECT brand, category_normalized, geo_normalized, composition_normalized,
       package_quantity, package_unit, observed_at
FROM catalog_products
WHERE id = ?`), record.CanonicalProductID)
		item, err := scanFieldHistory(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		history = append(history, item)
	}

	pipeline.BackfillFromHistory(record, history)
	return nil
}

type fieldScanner interface {
	Scan(dest ...any) error
}

func scanFieldHistory(row fieldScanner) (pipeline.FieldHistory, error) {
	var item pipeline.FieldHistory
	var packageUnit *string
	var observedAt string
	if err := row.Scan(
		&item.Brand, &item.CategoryNormalized, &item.GeoNormalized, &item.CompositionNormalized,
		&item.PackageQuantity, &packageUnit, &observedAt,
	); err != nil {
		return pipeline.FieldHistory{}, err
	}
	if packageUnit != nil {
		u := internal.PackageUnit(*packageUnit)
		item.PackageUnit = &u
	}
	item.ObservedAt = parseReceiverTime(observedAt)
	return item, nil
}

// WriteOne persists a converted record in one transaction: settlement,
// snapshot, geodata, categories, source mapping, projection merge.
func (c *Catalog) WriteOne(ctx context.Context, record internal.NormalizedProduct) error {
	tx, err := c.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := nowISO()

	settlementID, err := c.upsertSettlement(tx, record.Payload, now)
	if err != nil {
		return fmt.Errorf("settlement: %w", err)
	}

	snapshotID, err := c.insertSnapshot(tx, record, settlementID, now)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if err := c.appendGeodata(tx, settlementID, record.Payload, now); err != nil {
		return fmt.Errorf("geodata: %w", err)
	}

	primaryCategoryID, err := c.upsertCategories(tx, record, snapshotID, now)
	if err != nil {
		return fmt.Errorf("categories: %w", err)
	}

	if err := c.upsertSource(tx, record, now); err != nil {
		return fmt.Errorf("source: %w", err)
	}

	if err := c.mergeProjection(tx, record, settlementID, primaryCategoryID, now); err != nil {
		return fmt.Errorf("projection: %w", err)
	}

	return tx.Commit()
}

func (c *Catalog) upsertSettlement(tx *sql.Tx, payload map[string]any, now string) (*string, error) {
	name := payloadString(payload, "receiver_geo_name")
	region := payloadString(payload, "receiver_geo_region")
	country := payloadString(payload, "receiver_geo_country")

	key := settlementKey(country, region, name)
	if key == "" {
		return nil, nil
	}

	var id string
	var curName, curRegion, curCountry *string
	err := tx.QueryRow(c.db.rebind(`
SELECT id, name, region, country FROM catalog_settlements WHERE settlement_key = ?`), key).
		Scan(&id, &curName, &curRegion, &curCountry)
	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.NewString()
		_, err := tx.Exec(c.db.rebind(`
INSERT INTO catalog_settlements (id, settlement_key, name, region, country, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`), id, key, util.TrimToNil(name), util.TrimToNil(region), util.TrimToNil(country), now, now)
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	if err != nil {
		return nil, err
	}

	// reference rows only gain data, existing values stay
	merged := false
	if missing(curName) && strings.TrimSpace(name) != "" {
		curName, merged = util.TrimToNil(name), true
	}
	if missing(curRegion) && strings.TrimSpace(region) != "" {
		curRegion, merged = util.TrimToNil(region), true
	}
	if missing(curCountry) && strings.TrimSpace(country) != "" {
		curCountry, merged = util.TrimToNil(country), true
	}
	if merged {
		_, err := tx.Exec(c.db.rebind(`
UPDATE catalog_settlements SET name = ?, region = ?, country = ?, updated_at = ? WHERE id = ?`),
			curName, curRegion, curCountry, now, id)
		if err != nil {
			return nil, err
		}
	}
	return &id, nil
}

func (c *Catalog) insertSnapshot(tx *sql.Tx, record internal.NormalizedProduct, settlementID *string, now string) (int64, error) {
	imagesJSON := marshalStrings(record.ImageURLs)
	payloadJSON := marshalPayload(record.Payload)

	var id int64
	err := tx.QueryRow(c.db.rebind(`
INSERT INTO catalog_product_snapshots (
  product_id, parser_name,
  title_raw, title_original, title_normalized, title_original_no_stopwords, title_normalized_no_stopwords,
  brand, unit, available_count, package_quantity, package_unit,
  category_raw, category_normalized, geo_raw, geo_normalized,
  composition_raw, composition_normalized,
  images_json, settlement_id, observed_at, payload_json, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`),
		record.CanonicalProductID, parsers.CanonicalName(record.ParserName),
		record.RawTitle, record.TitleOriginal, record.TitleNormalized,
		record.TitleOriginalNoStopwords, record.TitleNormalizedNoStopwords,
		record.Brand, string(record.Unit), record.AvailableCount, record.PackageQuantity, packageUnitString(record.PackageUnit),
		record.CategoryRaw, record.CategoryNormalized, record.GeoRaw, record.GeoNormalized,
		record.CompositionRaw, record.CompositionNormalized,
		imagesJSON, settlementID, record.ObservedAt.UTC().Format(time.RFC3339), payloadJSON, now,
	).Scan(&id)
	return id, err
}

func (c *Catalog) appendGeodata(tx *sql.Tx, settlementID *string, payload map[string]any, now string) error {
	if settlementID == nil {
		return nil
	}
	lat := util.ToFloat(payload["latitude"])
	lon := util.ToFloat(payload["longitude"])
	if lat == nil || lon == nil {
		return nil
	}

	fingerprint := sha256Hex(fmt.Sprintf("%s:%.8f:%.8f", *settlementID, *lat, *lon))
	_, err := tx.Exec(c.db.rebind(`
INSERT INTO catalog_settlement_geodata (fingerprint, settlement_id, latitude, longitude, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (fingerprint) DO NOTHING`), fingerprint, *settlementID, *lat, *lon, now)
	return err
}

func (c *Catalog) upsertCategories(tx *sql.Tx, record internal.NormalizedProduct, snapshotID int64, now string) (*string, error) {
	parser := parsers.CanonicalName(record.ParserName)

	var primaryID *string
	position := 0
	for _, entry := range payloadCategories(record.Payload) {
		key := categoryKey(parser, entry.uid, entry.title)
		if key == "" {
			continue
		}

		var id string
		var curTitle *string
		err := tx.QueryRow(c.db.rebind(`
SELECT id, title FROM catalog_categories WHERE category_key = ?`), key).Scan(&id, &curTitle)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id = uuid.NewString()
			_, err := tx.Exec(c.db.rebind(`
INSERT INTO catalog_categories (id, category_key, parser_name, uid, title, title_normalized, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
				id, key, parser, util.TrimToNil(entry.uid), util.TrimToNil(entry.title),
				parsers.NormalizeCategoryText(entry.title), now, now)
			if err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		default:
			if missing(curTitle) && strings.TrimSpace(entry.title) != "" {
				_, err := tx.Exec(c.db.rebind(`
UPDATE catalog_categories SET title = ?, title_normalized = ?, updated_at = ? WHERE id = ?`),
					strings.TrimSpace(entry.title), parsers.NormalizeCategoryText(entry.title), now, id)
				if err != nil {
					return nil, err
				}
			}
		}

		isPrimary := 0
		if position == 0 {
			isPrimary = 1
			primaryID = &id
		}
		if _, err := tx.Exec(c.db.rebind(`
INSERT INTO catalog_snapshot_categories (snapshot_id, category_id, position, is_primary)
VALUES (?, ?, ?, ?)
ON CONFLICT (snapshot_id, category_id) DO NOTHING`), snapshotID, id, position, isPrimary); err != nil {
			return nil, err
		}
		position++
	}

	return primaryID, nil
}

func (c *Catalog) upsertSource(tx *sql.Tx, record internal.NormalizedProduct, now string) error {
	sourceID := effectiveSourceID(record)
	_, err := tx.Exec(c.db.rebind(`
INSERT INTO catalog_product_sources (parser_name, source_id, product_id, first_seen_at, last_seen_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (parser_name, source_id) DO UPDATE SET
  product_id = excluded.product_id,
  last_seen_at = excluded.last_seen_at`),
		parsers.CanonicalName(record.ParserName), sourceID, record.CanonicalProductID, now, now)
	return err
}

// effectiveSourceID picks the stable per-parser source key: explicit
// source id, then sku, then plu, then a generated one.
func effectiveSourceID(record internal.NormalizedProduct) string {
	if record.SourceID != nil && strings.TrimSpace(*record.SourceID) != "" {
		return strings.TrimSpace(*record.SourceID)
	}
	if record.SKU != nil && strings.TrimSpace(*record.SKU) != "" {
		return "sku:" + strings.TrimSpace(*record.SKU)
	}
	if record.PLU != nil && strings.TrimSpace(*record.PLU) != "" {
		return "plu:" + strings.TrimSpace(*record.PLU)
	}
	return fmt.Sprintf("generated:%s:%s", record.CanonicalProductID, record.ObservedAt.UTC().Format(time.RFC3339))
}

func (c *Catalog) mergeProjection(tx *sql.Tx, record internal.NormalizedProduct, settlementID, primaryCategoryID *string, now string) error {
	existing, err := c.projectionRow(tx, record.CanonicalProductID)
	if err != nil {
		return err
	}

	observedAt := record.ObservedAt.UTC().Format(time.RFC3339)
	imagesJSON := marshalStrings(record.ImageURLs)

	if existing == nil {
		_, err := tx.Exec(c.db.rebind(`
INSERT INTO catalog_products (
  id, parser_name,
  title_raw, title_original, title_normalized, title_original_no_stopwords, title_normalized_no_stopwords,
  brand, plu, sku, source_id, unit, available_count, package_quantity, package_unit,
  category_raw, category_normalized, geo_raw, geo_normalized,
  composition_raw, composition_normalized,
  images_json, primary_category_id, settlement_id, observed_at, payload_json, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			record.CanonicalProductID, parsers.CanonicalName(record.ParserName),
			record.RawTitle, record.TitleOriginal, record.TitleNormalized,
			record.TitleOriginalNoStopwords, record.TitleNormalizedNoStopwords,
			record.Brand, record.PLU, record.SKU, record.SourceID, string(record.Unit),
			record.AvailableCount, record.PackageQuantity, packageUnitString(record.PackageUnit),
			record.CategoryRaw, record.CategoryNormalized, record.GeoRaw, record.GeoNormalized,
			record.CompositionRaw, record.CompositionNormalized,
			imagesJSON, primaryCategoryID, settlementID, observedAt, marshalPayload(record.Payload), now, now)
		return err
	}

	// titles and unit follow the latest pass, the rest never loses data
	existing.TitleRaw = record.RawTitle
	existing.TitleOriginal = record.TitleOriginal
	existing.TitleNormalized = record.TitleNormalized
	existing.TitleOriginalNoStopwords = record.TitleOriginalNoStopwords
	existing.TitleNormalizedNoStopwords = record.TitleNormalizedNoStopwords
	existing.Unit = string(record.Unit)

	fill(&existing.Brand, record.Brand)
	fill(&existing.PLU, record.PLU)
	fill(&existing.SKU, record.SKU)
	fill(&existing.SourceID, record.SourceID)
	fillFloat(&existing.AvailableCount, record.AvailableCount)
	fillFloat(&existing.PackageQuantity, record.PackageQuantity)
	fill(&existing.PackageUnit, packageUnitString(record.PackageUnit))
	fill(&existing.CategoryRaw, record.CategoryRaw)
	fill(&existing.CategoryNormalized, record.CategoryNormalized)
	fill(&existing.GeoRaw, record.GeoRaw)
	fill(&existing.GeoNormalized, record.GeoNormalized)
	fill(&existing.CompositionRaw, record.CompositionRaw)
	fill(&existing.CompositionNormalized, record.CompositionNormalized)
	fill(&existing.PrimaryCategoryID, primaryCategoryID)
	fill(&existing.SettlementID, settlementID)

	if len(record.ImageURLs) > 0 {
		existing.ImagesJSON = imagesJSON
	}
	if parseReceiverTime(observedAt).After(parseReceiverTime(existing.ObservedAt)) {
		existing.ObservedAt = observedAt
	}
	existing.PayloadJSON = mergePayloadJSON(existing.PayloadJSON, record.Payload)

	_, err = tx.Exec(c.db.rebind(`
UPDATE catalog_products SET
  parser_name = ?,
  title_raw = ?, title_original = ?, title_normalized = ?,
  title_original_no_stopwords = ?, title_normalized_no_stopwords = ?,
  brand = ?, plu = ?, sku = ?, source_id = ?, unit = ?,
  available_count = ?, package_quantity = ?, package_unit = ?,
  category_raw = ?, category_normalized = ?, geo_raw = ?, geo_normalized = ?,
  composition_raw = ?, composition_normalized = ?,
  images_json = ?, primary_category_id = ?, settlement_id = ?,
  observed_at = ?, payload_json = ?, updated_at = ?
WHERE id = ?`),
		parsers.CanonicalName(record.ParserName),
		existing.TitleRaw, existing.TitleOriginal, existing.TitleNormalized,
		existing.TitleOriginalNoStopwords, existing.TitleNormalizedNoStopwords,
		existing.Brand, existing.PLU, existing.SKU, existing.SourceID, existing.Unit,
		existing.AvailableCount, existing.PackageQuantity, existing.PackageUnit,
		existing.CategoryRaw, existing.CategoryNormalized, existing.GeoRaw, existing.GeoNormalized,
		existing.CompositionRaw, existing.CompositionNormalized,
		existing.ImagesJSON, existing.PrimaryCategoryID, existing.SettlementID,
		existing.ObservedAt, existing.PayloadJSON, now,
		record.CanonicalProductID)
	return err
}

// ProductRow is one row of the current projection.
type ProductRow struct {
	ID                         string
	ParserName                 string
	TitleRaw                   string
	TitleOriginal              string
	TitleNormalized            string
	TitleOriginalNoStopwords   string
	TitleNormalizedNoStopwords string
	Brand                      *string
	PLU                        *string
	SKU                        *string
	SourceID                   *string
	Unit                       string
	AvailableCount             *float64
	PackageQuantity            *float64
	PackageUnit                *string
	CategoryRaw                *string
	CategoryNormalized         *string
	GeoRaw                     *string
	GeoNormalized              *string
	CompositionRaw             *string
	CompositionNormalized      *string
	ImagesJSON                 *string
	PrimaryCategoryID          *string
	SettlementID               *string
	ObservedAt                 string
	PayloadJSON                *string
}

const productColumns = `
  id, parser_name,
  title_raw, title_original, title_normalized, title_original_no_stopwords, title_normalized_no_stopwords,
  brand, plu, sku, source_id, unit, available_count, package_quantity, package_unit,
  category_raw, category_normalized, geo_raw, geo_normalized,
  composition_raw, composition_normalized,
  images_json, primary_category_id, settlement_id, observed_at, payload_json`

func scanProductRow(row fieldScanner) (*ProductRow, error) {
	var p ProductRow
	err := row.Scan(
		&p.ID, &p.ParserName,
		&p.TitleRaw, &p.TitleOriginal, &p.TitleNormalized, &p.TitleOriginalNoStopwords, &p.TitleNormalizedNoStopwords,
		&p.Brand, &p.PLU, &p.SKU, &p.SourceID, &p.Unit, &p.AvailableCount, &p.PackageQuantity, &p.PackageUnit,
		&p.CategoryRaw, &p.CategoryNormalized, &p.GeoRaw, &p.GeoNormalized,
		&p.CompositionRaw, &p.CompositionNormalized,
		&p.ImagesJSON, &p.PrimaryCategoryID, &p.SettlementID, &p.ObservedAt, &p.PayloadJSON,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Catalog) projectionRow(tx *sql.Tx, id string) (*ProductRow, error) {
	row := tx.QueryRow(c.db.rebind(`SELECT `+productColumns+` FROM catalog_products WHERE id = ?`), id)
	p, err := scanProductRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetProduct reads one projection row, nil when absent.
func (c *Catalog) GetProduct(ctx context.Context, id string) (*ProductRow, error) {
	row := c.db.conn.QueryRowContext(ctx, c.db.rebind(`SELECT `+productColumns+` FROM catalog_products WHERE id = ?`), id)
	p, err := scanProductRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// ListProducts returns the whole projection ordered by parser and
// normalized title, for the spreadsheet export.
func (c *Catalog) ListProducts(ctx context.Context) ([]ProductRow, error) {
	rows, err := c.db.conn.QueryContext(ctx, `SELECT `+productColumns+`
FROM catalog_products ORDER BY parser_name ASC, title_normalized ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductRow
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetCursor returns the stored receiver cursor for a parser, nil when
// the parser was never synced.
func (c *Catalog) GetCursor(ctx context.Context, parserName string) (*Cursor, error) {
	var value string
	err := c.db.conn.QueryRowContext(ctx, c.db.rebind(`
SELECT value FROM catalog_sync_state WHERE key = ?`), cursorKey(parserName)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cursor Cursor
	if err := json.Unmarshal([]byte(value), &cursor); err != nil {
		return nil, fmt.Errorf("corrupt cursor for %s: %w", parserName, err)
	}
	return &cursor, nil
}

func (c *Catalog) SetCursor(ctx context.Context, parserName string, cursor Cursor) error {
	blob, err := json.Marshal(cursor)
	if err != nil {
		return err
	}
	_, err = c.db.conn.ExecContext(ctx, c.db.rebind(`
INSERT INTO catalog_sync_state (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		cursorKey(parserName), string(blob), nowISO())
	return err
}

func cursorKey(parserName string) string {
	return "receiver_cursor:" + parsers.CanonicalName(parserName)
}

type categoryEntry struct {
	uid   string
	title string
}

func payloadCategories(payload map[string]any) []categoryEntry {
	raw, ok := payload["receiver_categories"]
	if !ok {
		return nil
	}

	var out []categoryEntry
	appendEntry := func(m map[string]any) {
		entry := categoryEntry{
			uid:   payloadString(m, "uid"),
			title: payloadString(m, "title"),
		}
		if entry.uid != "" || entry.title != "" {
			out = append(out, entry)
		}
	}

	switch list := raw.(type) {
	case []map[string]any:
		for _, m := range list {
			appendEntry(m)
		}
	case []any:
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				appendEntry(m)
			}
		}
	}
	return out
}

func categoryKey(parser, uid, title string) string {
	uid = strings.TrimSpace(uid)
	if uid != "" {
		return parser + ":uid:" + strings.ToLower(uid)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	return parser + ":title:" + sha256Hex(strings.ToLower(title))[:40]
}

func settlementKey(country, region, name string) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(country)),
		strings.ToLower(strings.TrimSpace(region)),
		strings.ToLower(strings.TrimSpace(name)),
	}
	return strings.Trim(strings.Join(parts, "|"), "|")
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return strings.TrimSpace(s)
}

func packageUnitString(u *internal.PackageUnit) *string {
	if u == nil {
		return nil
	}
	s := string(*u)
	return &s
}

func missing(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}

func fill(dst **string, src *string) {
	if missing(*dst) && !missing(src) {
		*dst = src
	}
}

func fillFloat(dst **float64, src *float64) {
	if *dst == nil && src != nil {
		*dst = src
	}
}

func marshalStrings(values []string) *string {
	if len(values) == 0 {
		return nil
	}
	blob, _ := json.Marshal(values)
	return util.StringPtr(string(blob))
}

func marshalPayload(payload map[string]any) *string {
	if len(payload) == 0 {
		return nil
	}
	blob, _ := json.Marshal(payload)
	return util.StringPtr(string(blob))
}

// mergePayloadJSON overlays the new payload on top of the stored one.
func mergePayloadJSON(stored *string, payload map[string]any) *string {
	merged := map[string]any{}
	if stored != nil {
		_ = json.Unmarshal([]byte(*stored), &merged)
	}
	for k, v := range payload {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	blob, _ := json.Marshal(merged)
	return util.StringPtr(string(blob))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
