package gvf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// Required attribute keys. Every other key is an evidence annotation.
const (
	attrID           = "ID"
	attrVariantSeq   = "Variant_seq"
	attrDbxref       = "Dbxref"
	attrReferenceSeq = "Reference_seq"
)

const numColumns = 9

// ErrMixedDbxref is returned when data lines disagree on the Dbxref database.
var ErrMixedDbxref = errors.New("mixed Dbxref databases")

// Parser reads variant records from a GVF file.
type Parser struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
	header     Header
	chroms     map[string]bool
	skipped    int
	logger     *zap.Logger
}

// NewParser creates a new GVF parser for the given file, keeping only records
// on the listed chromosomes. Supports both plain and gzipped GVF files.
func NewParser(path string, chroms ...string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin, chroms...)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gvf file: %w", err)
	}

	p, err := NewParserFromReader(file, chroms...)
	if err != nil {
		file.Close()
		return nil, err
	}
	p.file = file
	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader. Gzip input is
// detected from its magic bytes.
func NewParserFromReader(r io.Reader, chroms ...string) (*Parser, error) {
	p := &Parser{
		chroms: make(map[string]bool, len(chroms)),
		logger: zap.NewNop(),
	}
	for _, c := range chroms {
		p.chroms[strings.TrimSpace(c)] = true
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read gvf header: %w", err)
	}

	// Check for gzip magic number (0x1f, 0x8b)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReaderSize(p.gzipReader, 1<<20)
	} else {
		p.reader = br
	}

	return p, nil
}

// SetLogger sets the logger for debug messages about dropped records.
func (p *Parser) SetLogger(l *zap.Logger) {
	p.logger = l
}

// Next reads the next retained record from the GVF file.
// Header lines encountered along the way are captured into Header().
// Returns nil, nil when there are no more records.
func (p *Parser) Next() (*Record, error) {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("read gvf line: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			p.parseHeaderLine(line)
			continue
		}

		rec, err := p.parseLine(line)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
}

// ReadAll reads every retained record and returns them with the captured header.
func (p *Parser) ReadAll() ([]*Record, *Header, error) {
	var records []*Record
	for {
		rec, err := p.Next()
		if err != nil {
			return nil, nil, err
		}
		if rec == nil {
			break
		}
		records = append(records, rec)
	}

	p.logger.Debug("parsed gvf",
		zap.Int("records", len(records)),
		zap.Int("skipped", p.skipped),
		zap.Int("lines", p.lineNumber))

	h := p.Header()
	return records, &h, nil
}

// parseHeaderLine captures provenance from ## lines.
func (p *Parser) parseHeaderLine(line string) {
	switch {
	case strings.HasPrefix(line, "##genome-build"):
		p.header.GenomeBuild = strings.TrimSpace(strings.TrimPrefix(line, "##genome-build"))
	case strings.HasPrefix(line, "##data-source"):
		src := strings.TrimSpace(strings.TrimPrefix(line, "##data-source"))
		// "Source=ensembl;..." is echoed as "##source=ensembl;..."
		if strings.HasPrefix(src, "S") {
			src = "s" + src[1:]
		}
		p.header.DataSource = src
	}
}

// parseLine parses a GVF data line. It returns nil, nil for lines that are
// well-formed but filtered out by chromosome or kind.
func (p *Parser) parseLine(line string) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != numColumns {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected %d columns, found %d", numColumns, len(fields)),
		}
	}

	attrs, order, err := parseAttributes(fields[8])
	if err != nil {
		return nil, &ParseError{Line: p.lineNumber, Message: err.Error()}
	}

	for _, key := range []string{attrID, attrVariantSeq, attrDbxref, attrReferenceSeq} {
		if _, ok := attrs[key]; !ok {
			return nil, &ParseError{
				Line:    p.lineNumber,
				Message: fmt.Sprintf("missing required attribute %s", key),
			}
		}
	}

	db, accession, ok := strings.Cut(attrs[attrDbxref], ":")
	if !ok || db == "" {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("malformed Dbxref %q, expected database:accession", attrs[attrDbxref]),
		}
	}
	if p.header.DB == "" {
		p.header.DB = db
	} else if p.header.DB != db {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("Dbxref database %q differs from %q", db, p.header.DB),
			Err:     ErrMixedDbxref,
		}
	}

	chrom := fields[0]
	kind := Kind(fields[2])
	if !p.chroms[chrom] || !kind.Supported() {
		p.skipped++
		if !kind.Supported() {
			p.logger.Debug("skipping unsupported variant type",
				zap.String("type", fields[2]),
				zap.Int("line", p.lineNumber))
		}
		return nil, nil
	}

	pos, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid start position: %s", fields[3]),
		}
	}
	end, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid end position: %s", fields[4]),
		}
	}

	if attrs[attrVariantSeq] == "" {
		return nil, &ParseError{Line: p.lineNumber, Message: "empty Variant_seq"}
	}

	rec := &Record{
		Chrom:     chrom,
		Source:    fields[1],
		Kind:      kind,
		Pos:       pos,
		End:       end,
		ID:        attrs[attrID],
		Ref:       attrs[attrReferenceSeq],
		Alt:       strings.Split(attrs[attrVariantSeq], ","),
		DB:        db,
		Accession: accession,
	}

	for _, key := range order {
		switch key {
		case attrID, attrVariantSeq, attrDbxref, attrReferenceSeq:
			continue
		}
		rec.Evidence = append(rec.Evidence, "E_"+key)
	}

	return rec, nil
}

// parseAttributes splits a key=value;key=value attribute column.
// Keys are returned in first-seen order alongside the map.
func parseAttributes(col string) (map[string]string, []string, error) {
	attrs := make(map[string]string)
	var order []string
	for _, kv := range strings.Split(col, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, nil, fmt.Errorf("malformed attribute %q, missing '='", kv)
		}
		if _, seen := attrs[key]; !seen {
			order = append(order, key)
		}
		attrs[key] = value
	}
	return attrs, order, nil
}

// Header returns the provenance captured so far.
func (p *Parser) Header() Header {
	return p.header
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Skipped returns the number of data lines dropped by the chromosome or kind filter.
func (p *Parser) Skipped() int {
	return p.skipped
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ParseError represents an error during GVF parsing with line context.
type ParseError struct {
	Line    int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gvf parse error at line %d: %s", e.Line, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
