// Package reference loads single chromosome sequences from gzipped
// multi-sequence FASTA reference genomes.
package reference

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrReferenceNotFound is returned when no header matches the chromosome.
	ErrReferenceNotFound = errors.New("chromosome not found in reference")

	// ErrRaggedReference is returned when an inner sequence line differs from
	// the line width of the first line.
	ErrRaggedReference = errors.New("reference lines have inconsistent width")
)

// Convention selects how chromosome names appear in FASTA headers.
type Convention string

const (
	Ensembl Convention = "ensembl" // ">1 dna:chromosome ..."
	UCSC    Convention = "ucsc"    // ">chr1"
)

// ParseConvention validates a naming convention name.
func ParseConvention(s string) (Convention, error) {
	switch c := Convention(strings.ToLower(strings.TrimSpace(s))); c {
	case Ensembl, UCSC:
		return c, nil
	}
	return "", fmt.Errorf("unknown reference naming convention %q (want ensembl or ucsc)", s)
}

// HeaderName returns the FASTA sequence name used for a chromosome.
func (c Convention) HeaderName(chrom string) string {
	chrom = strings.TrimSpace(chrom)
	if c == UCSC {
		return "chr" + chrom
	}
	return chrom
}

// Loader extracts one chromosome at a time from a reference FASTA file.
type Loader struct {
	path       string
	convention Convention
}

// NewLoader creates a new reference loader.
func NewLoader(path string, convention Convention) *Loader {
	return &Loader{
		path:       path,
		convention: convention,
	}
}

// Load scans the reference file once and returns the sequence of chrom.
func (l *Loader) Load(chrom string) (*Sequence, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open reference file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)
	var reader io.Reader = br

	// Handle gzipped files
	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	seq, err := Scan(reader, l.convention.HeaderName(chrom))
	if err != nil {
		return nil, fmt.Errorf("load %s from %s: %w", chrom, l.path, err)
	}
	seq.Name = chrom
	return seq, nil
}

// Scan reads FASTA content until the sequence named name has been captured.
// Capture starts at the matching header and stops at the next header.
func Scan(r io.Reader, name string) (*Sequence, error) {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for unwrapped sequences
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 512*1024*1024)

	var (
		lines   []string
		reading bool
		found   bool
	)

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, ">") {
			if reading {
				break
			}
			if headerName(line) == name {
				reading = true
				found = true
			}
			continue
		}

		if reading {
			line = strings.TrimRight(line, " \r")
			if line != "" {
				lines = append(lines, line)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan FASTA: %w", err)
	}

	if !found || len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrReferenceNotFound, name)
	}

	return NewSequence(name, lines)
}

// headerName extracts the sequence name from a FASTA header.
// ">1 dna:chromosome chromosome:GRCh38:1:1:248956422:1 REF" -> "1"
func headerName(header string) string {
	header = strings.TrimPrefix(header, ">")
	if idx := strings.IndexAny(header, " \t"); idx != -1 {
		return header[:idx]
	}
	return strings.TrimSpace(header)
}
