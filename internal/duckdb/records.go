package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/gvf2vcf/internal/gvf"
)

// Row is a converted record as stored in DuckDB.
type Row struct {
	Chrom     string
	Pos       int64
	Accession string
	Ref       string
	Alt       string
	Kind      string
	GVFID     string
	DB        string
	Info      string
}

// rowKey is the composite key for deduplicating rows before writing.
type rowKey struct {
	chrom, accession, ref, alt string
	pos                        int64
}

// WriteRecords batch-inserts records using the Appender API. chromPrefix is
// prepended to the chromosome as in the VCF output. Duplicate
// (chrom, pos, accession, ref, alt) rows are written once.
func (s *Store) WriteRecords(records []*gvf.Record, chromPrefix string) error {
	if len(records) == 0 {
		return nil
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "vcf_records")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	seen := make(map[rowKey]bool, len(records))
	for _, r := range records {
		chrom := chromPrefix + r.Chrom
		alt := r.AltString()
		k := rowKey{chrom, r.Accession, r.Ref, alt, r.Pos}
		if seen[k] {
			continue
		}
		seen[k] = true

		if err := appender.AppendRow(
			chrom, r.Pos, r.Accession, r.Ref, alt,
			string(r.Kind), r.ID, r.DB, r.Info(),
		); err != nil {
			return fmt.Errorf("append record %s: %w", r.Label(), err)
		}
	}

	return appender.Flush()
}

// ClearRecords removes all stored records.
func (s *Store) ClearRecords() error {
	_, err := s.db.Exec("DELETE FROM vcf_records")
	return err
}

// LookupRecords returns the stored rows at a chromosome position.
func (s *Store) LookupRecords(chrom string, pos int64) ([]Row, error) {
	rows, err := s.db.Query(`SELECT
		chrom, pos, accession, ref, alt, kind, gvf_id, db, info
		FROM vcf_records
		WHERE chrom=? AND pos=?
		ORDER BY accession`, chrom, pos)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// LookupAccession returns the stored rows for a Dbxref accession (e.g. "rs123").
func (s *Store) LookupAccession(accession string) ([]Row, error) {
	rows, err := s.db.Query(`SELECT
		chrom, pos, accession, ref, alt, kind, gvf_id, db, info
		FROM vcf_records
		WHERE accession=?
		ORDER BY chrom, pos`, accession)
	if err != nil {
		return nil, fmt.Errorf("query accession: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// CountByKind returns the number of stored rows per variant kind.
func (s *Store) CountByKind() (map[string]int64, error) {
	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM vcf_records GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// scanRows scans query rows into Row values.
func scanRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.Chrom, &r.Pos, &r.Accession, &r.Ref, &r.Alt,
			&r.Kind, &r.GVFID, &r.DB, &r.Info,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Alts splits the stored comma-joined ALT column.
func (r Row) Alts() []string {
	return strings.Split(r.Alt, ",")
}
