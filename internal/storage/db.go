package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// DB wraps a database/sql connection plus the dialect it speaks.
// Queries are written with '?' placeholders and rebound for postgres.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// Open routes the location to a backend: postgres:// / postgresql://
// DSNs go to pgx, everything else is treated as a SQLite file path.
func Open(location string) (*DB, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("empty database location")
	}

	if strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://") {
		conn, err := sql.Open("pgx", location)
		if err != nil {
			return nil, err
		}
		return &DB{conn: conn, dialect: dialectPostgres}, nil
	}

	if dir := filepath.Dir(location); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", location)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &DB{conn: conn, dialect: dialectSQLite}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// rebind rewrites '?' placeholders to $1..$n for postgres. Queries in
// this package never carry a literal question mark.
func (d *DB) rebind(query string) string {
	if d.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) autoPK() string {
	if d.dialect == dialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d *DB) tableExists(name string) (bool, error) {
	var query string
	switch d.dialect {
	case dialectPostgres:
		query = `SELECT count(*) FROM information_schema.tables WHERE table_name = $1`
	default:
		query = `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
	var count int
	if err := d.conn.QueryRow(query, name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *DB) columnExists(table, column string) (bool, error) {
	var query string
	switch d.dialect {
	case dialectPostgres:
		query = `SELECT count(*) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2`
	default:
		query = `SELECT count(*) FROM pragma_table_info(?) WHERE name = ?`
	}
	var count int
	if err := d.conn.QueryRow(query, table, column).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
