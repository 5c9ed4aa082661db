// Package gvf provides GVF (Genome Variation Format) parsing functionality.
package gvf

import (
	"strconv"
	"strings"
)

// Kind is the sequence-ontology variant type from GVF column 3.
type Kind string

// Variant kinds retained by the parser. Anything else is dropped.
const (
	KindSNV                Kind = "SNV"
	KindInsertion          Kind = "insertion"
	KindDeletion           Kind = "deletion"
	KindSequenceAlteration Kind = "sequence_alteration"
	KindTandemRepeat       Kind = "tandem_repeat"
)

// Supported reports whether records of this kind are kept.
func (k Kind) Supported() bool {
	switch k {
	case KindSNV, KindInsertion, KindDeletion, KindSequenceAlteration, KindTandemRepeat:
		return true
	}
	return false
}

// Record represents a single variant from a GVF file.
type Record struct {
	Chrom     string   // Sequence id (e.g., "1", "X")
	Source    string   // GVF column 2 (e.g., "dbSNP")
	Kind      Kind     // Variant type
	Pos       int64    // 1-based start position
	End       int64    // 1-based end position
	ID        string   // GVF ID attribute
	Ref       string   // Reference_seq
	Alt       []string // Variant_seq, split on ','
	DB        string   // Dbxref database (e.g., "dbSNP_156")
	Accession string   // Dbxref accession (e.g., "rs123")
	Evidence  []string // E_<key> tokens in attribute order
}

// IsSNV returns true if the record bypasses allele normalization.
func (r *Record) IsSNV() bool {
	return r.Kind == KindSNV
}

// AltString returns the alternate alleles joined VCF-style.
func (r *Record) AltString() string {
	return strings.Join(r.Alt, ",")
}

// Info renders the VCF INFO column: TSA, the Dbxref flag, then evidence
// flags. Empty parts are omitted.
func (r *Record) Info() string {
	parts := make([]string, 0, 2+len(r.Evidence))
	parts = append(parts, "TSA="+string(r.Kind))
	if r.DB != "" {
		parts = append(parts, r.DB)
	}
	parts = append(parts, r.Evidence...)
	return strings.Join(parts, ";")
}

// Label identifies the record in error and log messages.
func (r *Record) Label() string {
	id := r.Accession
	if id == "" {
		id = r.ID
	}
	var b strings.Builder
	b.WriteString(r.Chrom)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(r.Pos, 10))
	if id != "" {
		b.WriteByte(' ')
		b.WriteString(id)
	}
	return b.String()
}

// Header holds provenance captured from GVF ## lines.
type Header struct {
	GenomeBuild string // from ##genome-build
	DataSource  string // from ##data-source, echoed as a ## line
	DB          string // Dbxref database shared by every data line
}
