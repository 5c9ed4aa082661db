// Package normalize rewrites GVF alleles into left-anchored VCF alleles.
package normalize

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/inodb/gvf2vcf/internal/gvf"
	"github.com/inodb/gvf2vcf/internal/reference"
)

var (
	// ErrCoordinateOutOfRange is returned when the anchor base lies outside
	// the loaded reference sequence.
	ErrCoordinateOutOfRange = reference.ErrOutOfRange

	// ErrEmptyAllele is returned when normalization would produce an empty allele.
	ErrEmptyAllele = errors.New("empty allele")
)

// gapChar marks gaps in GVF sequence_alteration alleles.
const gapChar = "-"

// CoordinateError describes a record whose anchor base could not be addressed.
type CoordinateError struct {
	Record string // chrom:pos id
	Offset int64
	Err    error
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("anchor for %s at offset %d: %v", e.Record, e.Offset, e.Err)
}

func (e *CoordinateError) Unwrap() error {
	return e.Err
}

// AnchorOffset returns the zero-based flattened offset of the base preceding
// a 1-based GVF position.
func AnchorOffset(pos int64) int64 {
	return pos - 2
}

// Anchor returns the upper-cased reference base preceding pos.
func Anchor(ref *reference.Sequence, pos int64) (string, error) {
	b, err := ref.BaseAt(AnchorOffset(pos))
	if err != nil {
		return "", err
	}
	return strings.ToUpper(string(b)), nil
}

// Normalize rewrites rec's position and alleles in place so they follow VCF
// conventions, using ref for the anchor base. SNVs are left untouched.
//
//	deletion:            POS-1, REF=anchor+REF, ALT=anchor
//	insertion:           POS-1, REF=anchor,     ALT=anchor+alt
//	sequence_alteration: POS-1, REF=anchor+REF, ALT=anchor+alt (gaps removed)
//	tandem_repeat:       POS,   shared leading repeat trimmed from REF and ALT
func Normalize(rec *gvf.Record, ref *reference.Sequence) error {
	if rec.Kind == gvf.KindSNV {
		return nil
	}
	if len(rec.Alt) == 0 {
		return fmt.Errorf("%s: %w: no alternate alleles", rec.Label(), ErrEmptyAllele)
	}

	if rec.Kind == gvf.KindTandemRepeat {
		return trimRepeat(rec)
	}

	anchor, err := Anchor(ref, rec.Pos)
	if err != nil {
		return &CoordinateError{Record: rec.Label(), Offset: AnchorOffset(rec.Pos), Err: err}
	}

	var refAllele string
	alts := make([]string, 0, len(rec.Alt))

	switch rec.Kind {
	case gvf.KindDeletion:
		refAllele = anchor + rec.Ref
		alts = append(alts, anchor)
	case gvf.KindInsertion:
		refAllele = anchor
		for _, a := range rec.Alt {
			alts = append(alts, anchor+a)
		}
	case gvf.KindSequenceAlteration:
		refAllele = anchor + rec.Ref
		for _, a := range rec.Alt {
			alts = append(alts, anchor+strings.ReplaceAll(a, gapChar, ""))
		}
	default:
		return fmt.Errorf("%s: unsupported variant type %q", rec.Label(), rec.Kind)
	}

	rec.Pos--
	rec.Ref = strings.ToUpper(refAllele)
	for i := range alts {
		alts[i] = strings.ToUpper(alts[i])
	}
	rec.Alt = alts
	return nil
}

// trimRepeat removes the leading minLen-1 characters shared by REF and every
// ALT of a tandem repeat. The position is unchanged.
func trimRepeat(rec *gvf.Record) error {
	if strings.Contains(rec.Ref, "-") || slices.ContainsFunc(rec.Alt, func(a string) bool { return strings.Contains(a, "-") }) {
		return fmt.Errorf("%s: %w: gap in tandem repeat allele", rec.Label(), ErrEmptyAllele)
	}

	minLen := len(rec.Ref)
	for _, a := range rec.Alt {
		minLen = min(minLen, len(a))
	}
	if minLen < 1 {
		return fmt.Errorf("%s: %w: tandem repeat with zero-length allele", rec.Label(), ErrEmptyAllele)
	}

	cut := minLen - 1
	alts := make([]string, len(rec.Alt))
	for i, a := range rec.Alt {
		alts[i] = strings.ToUpper(a[cut:])
	}
	rec.Ref = strings.ToUpper(rec.Ref[cut:])
	rec.Alt = alts
	return nil
}
