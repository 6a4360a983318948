package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"converter/internal"
)

const receiverSchema = `
CREATE TABLE run_artifacts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  source TEXT,
  parser_name TEXT NOT NULL,
  ingested_at TEXT NOT NULL
);
CREATE TABLE run_artifact_products (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  artifact_id INTEGER NOT NULL,
  sku TEXT,
  plu TEXT,
  title TEXT,
  composition TEXT,
  brand TEXT,
  unit TEXT,
  available_count REAL,
  package_quantity REAL,
  package_unit TEXT,
  categories_uid_json TEXT,
  main_image TEXT,
  sort_order INTEGER
);
CREATE TABLE run_artifact_categories (
  artifact_id INTEGER NOT NULL,
  uid TEXT NOT NULL,
  title TEXT NOT NULL
);
CREATE TABLE run_artifact_administrative_units (
  artifact_id INTEGER NOT NULL,
  name TEXT,
  region TEXT,
  country TEXT
);
CREATE TABLE run_artifact_product_images (
  product_id INTEGER NOT NULL,
  url TEXT NOT NULL,
  sort_order INTEGER NOT NULL
);
`

func newTestReceiver(t *testing.T) *Receiver {
	t.Helper()
	r, err := OpenReceiver(filepath.Join(t.TempDir(), "receiver.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	if _, err := r.db.conn.Exec(receiverSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return r
}

func mustExec(t *testing.T, db *DB, query string, args ...any) {
	t.Helper()
	if _, err := db.conn.Exec(query, args...); err != nil {
		t.Fatalf("exec: %v", err)
	}
}

func TestReceiverCheckSchema(t *testing.T) {
	empty, err := OpenReceiver(filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer empty.Close()
	if err := empty.CheckSchema(); !errors.Is(err, ErrIncompatibleSchema) {
		t.Fatalf("got %v want ErrIncompatibleSchema", err)
	}

	noColumn, err := OpenReceiver(filepath.Join(t.TempDir(), "nocol.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer noColumn.Close()
	mustExec(t, noColumn.db, `CREATE TABLE run_artifacts (id INTEGER PRIMARY KEY, run_id TEXT)`)
	if err := noColumn.CheckSchema(); !errors.Is(err, ErrIncompatibleSchema) {
		t.Fatalf("got %v want ErrIncompatibleSchema", err)
	}

	good := newTestReceiver(t)
	if err := good.CheckSchema(); err != nil {
		t.Fatalf("got %v want nil", err)
	}
}

func TestFetchBatchMapsRows(t *testing.T) {
	r := newTestReceiver(t)

	mustExec(t, r.db, `INSERT INTO run_artifacts (id, run_id, source, parser_name, ingested_at)
VALUES (1, 'run-1', 'webhook', 'FixPrice', '2026-02-01T10:00:00Z')`)
	mustExec(t, r.db, `INSERT INTO run_artifact_categories (artifact_id, uid, title) VALUES
(1, 'c1', 'Продукты'), (1, 'c2', 'Сладости'), (1, 'c3', 'сладости')`)
	mustExec(t, r.db, `INSERT INTO run_artifact_administrative_units (artifact_id, name, region, country)
VALUES (1, 'Москва', 'Московская область', 'Россия')`)
	mustExec(t, r.db, `INSERT INTO run_artifact_products
(id, artifact_id, sku, plu, title, composition, brand, unit, available_count, package_quantity, package_unit, categories_uid_json, main_image, sort_order)
VALUES (10, 1, NULL, '10002', ' Шоколад молочный ', 'Сахар, какао', 'Аленка', 'шт', 15, 0.2, 'KGM', '["c1","C2","c3","missing"]', 'https://img.test/images/main.jpg', 3)`)
	mustExec(t, r.db, `INSERT INTO run_artifact_product_images (product_id, url, sort_order) VALUES
(10, 'https://img.test/images/extra.jpg', 1),
(10, 'https://img.test/images/main.jpg', 2)`)

	batch, cursor, err := r.FetchBatch(context.Background(), "fixprice", nil, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Fatalf("len=%d", len(batch))
	}

	p := batch[0]
	if p.ParserName != "fixprice" {
		t.Fatalf("parser %q", p.ParserName)
	}
	if p.Title != "Шоколад молочный" {
		t.Fatalf("title %q", p.Title)
	}
	if p.PLU == nil || *p.PLU != "10002" {
		t.Fatalf("plu %v", p.PLU)
	}
	if p.SourceID == nil || *p.SourceID != "receiver:run-1:10" {
		t.Fatalf("source id %v", p.SourceID)
	}
	// 'шт' is not a known unit code, the mapped unit stays nil
	if p.Unit != nil {
		t.Fatalf("unit %v", *p.Unit)
	}
	if p.PackageUnit == nil || *p.PackageUnit != internal.PackageKGM {
		t.Fatalf("package unit %v", p.PackageUnit)
	}
	if p.Category == nil || *p.Category != "Продукты / Сладости" {
		t.Fatalf("category %v", p.Category)
	}
	if p.Geo == nil || *p.Geo != "Москва" {
		t.Fatalf("geo %v", p.Geo)
	}
	wantImages := []string{
		"https://img.test/images/main.jpg",
		"https://img.test/images/extra.jpg",
	}
	if len(p.ImageURLs) != len(wantImages) || p.ImageURLs[0] != wantImages[0] || p.ImageURLs[1] != wantImages[1] {
		t.Fatalf("images %v", p.ImageURLs)
	}
	if p.ObservedAt.IsZero() {
		t.Fatalf("observed_at not parsed")
	}

	if got := p.Payload["receiver_run_id"]; got != "run-1" {
		t.Fatalf("payload run id %v", got)
	}
	if got := p.Payload["receiver_geo_country"]; got != "Россия" {
		t.Fatalf("payload country %v", got)
	}
	cats, ok := p.Payload["receiver_categories"].([]map[string]any)
	if !ok || len(cats) != 4 {
		t.Fatalf("payload categories %v", p.Payload["receiver_categories"])
	}
	if cats[0]["uid"] != "c1" || cats[0]["title"] != "Продукты" {
		t.Fatalf("first category %v", cats[0])
	}

	if cursor == nil || cursor.ProductID != 10 || cursor.IngestedAt != "2026-02-01T10:00:00Z" {
		t.Fatalf("cursor %+v", cursor)
	}
}

func TestFetchBatchRejectsUnknownUnits(t *testing.T) {
	r := newTestReceiver(t)
	mustExec(t, r.db, `INSERT INTO run_artifacts (id, run_id, parser_name, ingested_at)
VALUES (1, 'run-1', 'chizhik', '2026-02-01T10:00:00Z')`)
	mustExec(t, r.db, `INSERT INTO run_artifact_products (id, artifact_id, title, unit, package_unit)
VALUES (1, 1, NULL, 'kgm', 'PCE')`)

	batch, _, err := r.FetchBatch(context.Background(), "chizhik", nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 {
		t.Fatalf("len=%d", len(batch))
	}
	p := batch[0]
	if p.Title != "Unnamed product" {
		t.Fatalf("title %q", p.Title)
	}
	if p.Unit == nil || *p.Unit != internal.UnitKGM {
		t.Fatalf("unit %v", p.Unit)
	}
	if p.PackageUnit != nil {
		t.Fatalf("package unit %v", *p.PackageUnit)
	}
}

func TestFetchBatchKeysetPaging(t *testing.T) {
	r := newTestReceiver(t)
	mustExec(t, r.db, `INSERT INTO run_artifacts (id, run_id, parser_name, ingested_at) VALUES
(1, 'run-1', 'fixprice', '2026-02-01T10:00:00Z'),
(2, 'run-2', 'fixprice', '2026-02-02T10:00:00Z'),
(3, 'run-3', 'magnit',   '2026-02-03T10:00:00Z')`)
	mustExec(t, r.db, `INSERT INTO run_artifact_products (id, artifact_id, title) VALUES
(1, 1, 'Товар 1'), (2, 1, 'Товар 2'), (3, 2, 'Товар 3'), (4, 3, 'Чужой товар')`)

	ctx := context.Background()

	first, cursor, err := r.FetchBatch(ctx, "fixprice", nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 {
		t.Fatalf("first len=%d", len(first))
	}
	if cursor == nil || cursor.ProductID != 2 {
		t.Fatalf("cursor %+v", cursor)
	}

	second, cursor, err := r.FetchBatch(ctx, "fixprice", cursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 || second[0].Title != "Товар 3" {
		t.Fatalf("second %+v", second)
	}

	third, cursor, err := r.FetchBatch(ctx, "fixprice", cursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(third) != 0 || cursor != nil {
		t.Fatalf("third len=%d cursor=%+v", len(third), cursor)
	}
}
