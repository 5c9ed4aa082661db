// Package output provides VCF output for converted GVF records.
package output

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/inodb/gvf2vcf/internal/gvf"
)

const evidenceURL = "https://www.ensembl.org/info/genome/variation/prediction/variant_quality.html#evidence_status"

// Evidence flags declared in the header, as ID and description prefix.
var evidenceFlags = [][2]string{
	{"E_Cited", "Cited"},
	{"E_Multiple_observations", "Multiple_observations"},
	{"E_Freq", "Frequency"},
	{"E_TOPMed", "TOPMed"},
	{"E_Hapmap", "HapMap"},
	{"E_Phenotype_or_Disease", "Phenotype_or_Disease"},
	{"E_ESP", "ESP"},
	{"E_gnomAD", "gnomAD"},
	{"E_1000G", "1000Genomes"},
	{"E_ExAC", "ExAC"},
}

var bodyColumns = []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO"}

// Synthetic genotype columns appended with Options.AddGT.
const (
	genotypeFormat = "GT"
	genotypeSample = "ENS"
	genotypeValue  = "0|1"
)

// Options controls VCF rendering.
type Options struct {
	AddHeader   bool             // write ## meta lines and the #CHROM column line
	AddGT       bool             // append FORMAT=GT and a 0|1 sample column
	ChromPrefix string           // prepended to every chromosome (e.g. "chr" for UCSC)
	Now         func() time.Time // fileDate clock, defaults to time.Now
}

// VCFWriter writes GVF records as VCFv4.1.
type VCFWriter struct {
	w    *bufio.Writer
	opts Options
}

// NewVCFWriter creates a new VCF output writer.
func NewVCFWriter(w io.Writer, opts Options) *VCFWriter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &VCFWriter{
		w:    bufio.NewWriter(w),
		opts: opts,
	}
}

// WriteAll writes the optional header and every record sorted by
// (chromosome, position), then flushes.
func (vw *VCFWriter) WriteAll(records []*gvf.Record, h *gvf.Header) error {
	if vw.opts.AddHeader {
		if err := vw.WriteHeader(h); err != nil {
			return err
		}
	}

	for _, r := range Sort(records) {
		if err := vw.Write(r); err != nil {
			return err
		}
	}
	return vw.Flush()
}

// WriteHeader writes the ## meta lines followed by the column line.
func (vw *VCFWriter) WriteHeader(h *gvf.Header) error {
	var b strings.Builder
	b.WriteString("##fileformat=VCFv4.1\n")
	fmt.Fprintf(&b, "##fileDate=%s\n", vw.opts.Now().Format("20060102"))
	fmt.Fprintf(&b, "##%s\n", h.DataSource)
	fmt.Fprintf(&b, "##reference=%s\n", h.GenomeBuild)
	fmt.Fprintf(&b, "##INFO=<ID=%s,Number=0,Type=Flag,Description=\"Variants (including SNPs and indels) imported from dbSNP [Remapped to %s]\">\n",
		h.DB, h.GenomeBuild)
	b.WriteString("##INFO=<ID=TSA,Number=1,Type=String,Description=\"Type of sequence alteration. Child of term sequence_alteration as defined by the sequence ontology project.\">\n")
	for _, f := range evidenceFlags {
		fmt.Fprintf(&b, "##INFO=<ID=%s,Number=0,Type=Flag,Description=\"%s.%s\">\n", f[0], f[1], evidenceURL)
	}

	b.WriteString(strings.Join(bodyColumns, "\t"))
	if vw.opts.AddGT {
		b.WriteByte('\t')
		b.WriteString("FORMAT")
		b.WriteByte('\t')
		b.WriteString(genotypeSample)
	}
	b.WriteByte('\n')

	_, err := vw.w.WriteString(b.String())
	return err
}

// Write writes a single record as a VCF data line.
func (vw *VCFWriter) Write(r *gvf.Record) error {
	var lb strings.Builder
	lb.Grow(128)

	lb.WriteString(vw.opts.ChromPrefix)
	lb.WriteString(r.Chrom)
	lb.WriteByte('\t')
	lb.WriteString(strconv.FormatInt(r.Pos, 10))
	lb.WriteByte('\t')
	lb.WriteString(r.Accession)
	lb.WriteByte('\t')
	lb.WriteString(r.Ref)
	lb.WriteByte('\t')
	lb.WriteString(r.AltString())
	lb.WriteString("\t.\t.\t")
	lb.WriteString(r.Info())
	if vw.opts.AddGT {
		lb.WriteByte('\t')
		lb.WriteString(genotypeFormat)
		lb.WriteByte('\t')
		lb.WriteString(genotypeValue)
	}
	lb.WriteByte('\n')

	_, err := vw.w.WriteString(lb.String())
	return err
}

// Flush flushes the underlying writer.
func (vw *VCFWriter) Flush() error {
	return vw.w.Flush()
}

// Sort returns records stable-sorted by chromosome then position.
// The input slice is not modified.
func Sort(records []*gvf.Record) []*gvf.Record {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b *gvf.Record) int {
		return cmp.Or(
			cmp.Compare(a.Chrom, b.Chrom),
			cmp.Compare(a.Pos, b.Pos),
		)
	})
	return sorted
}
