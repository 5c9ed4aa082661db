// Package duckdb persists converted VCF records in DuckDB so a run can be
// queried without re-parsing the output file.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// schema is applied on every Open and must stay idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS vcf_records (
		chrom     VARCHAR NOT NULL,
		pos       BIGINT  NOT NULL,
		accession VARCHAR,
		ref       VARCHAR NOT NULL,
		alt       VARCHAR NOT NULL,
		kind      VARCHAR NOT NULL,
		gvf_id    VARCHAR,
		db        VARCHAR,
		info      VARCHAR
	)`,
	`CREATE INDEX IF NOT EXISTS vcf_records_locus ON vcf_records (chrom, pos)`,
}

// Store is a DuckDB database holding converted records.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the database at path, creating the file and its parent
// directories as needed. An empty path opens an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", path, err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", path, err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema to %s: %w", path, err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}
