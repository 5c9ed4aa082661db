package reference

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a position addresses no loaded base.
var ErrOutOfRange = errors.New("position outside reference sequence")

// Sequence holds one chromosome as fixed-width lines.
// Every line except possibly the last has exactly LineWidth bases.
type Sequence struct {
	Name      string
	LineWidth int
	Lines     []string
}

// NewSequence builds a Sequence and validates the line widths.
func NewSequence(name string, lines []string) (*Sequence, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrReferenceNotFound, name)
	}
	width := len(lines[0])
	for i, line := range lines {
		last := i == len(lines)-1
		if (!last && len(line) != width) || (last && len(line) > width) {
			return nil, fmt.Errorf("%w: %s line %d has %d bases, want %d",
				ErrRaggedReference, name, i+1, len(line), width)
		}
	}
	return &Sequence{
		Name:      name,
		LineWidth: width,
		Lines:     lines,
	}, nil
}

// Len returns the total number of bases.
func (s *Sequence) Len() int64 {
	if len(s.Lines) == 0 {
		return 0
	}
	return int64(s.LineWidth)*int64(len(s.Lines)-1) + int64(len(s.Lines[len(s.Lines)-1]))
}

// Address maps a zero-based flattened offset to its (line, column) pair.
func (s *Sequence) Address(offset int64) (quotient, remainder int64, err error) {
	if offset < 0 || s.LineWidth == 0 {
		return 0, 0, fmt.Errorf("%w: offset %d", ErrOutOfRange, offset)
	}
	quotient = offset / int64(s.LineWidth)
	remainder = offset % int64(s.LineWidth)
	if quotient >= int64(len(s.Lines)) || remainder >= int64(len(s.Lines[quotient])) {
		return 0, 0, fmt.Errorf("%w: offset %d (line %d, column %d) beyond %d bases",
			ErrOutOfRange, offset, quotient, remainder, s.Len())
	}
	return quotient, remainder, nil
}

// BaseAt returns the base at a zero-based flattened offset.
func (s *Sequence) BaseAt(offset int64) (byte, error) {
	q, r, err := s.Address(offset)
	if err != nil {
		return 0, err
	}
	return s.Lines[q][r], nil
}
