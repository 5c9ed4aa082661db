package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bgzf"
)

// DefaultPath derives the output file name from the GVF path: everything
// before the first "gvf", then the chromosome label and ".vcf".
// "homo_sapiens-chr1.gvf.gz" with chromosome "1" gives "homo_sapiens-chr1.1.vcf".
func DefaultPath(gvfPath, chromLabel string) string {
	prefix, _, _ := strings.Cut(gvfPath, "gvf")
	return prefix + chromLabel + ".vcf"
}

// Create opens the output destination. "-" is stdout; a ".gz" suffix
// produces BGZF-compressed output readable by tabix and bcftools.
func Create(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdout}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	return &bgzfFile{Writer: bgzf.NewWriter(f, 1), f: f}, nil
}

// bgzfFile closes the BGZF stream (writing its EOF block) and then the file.
type bgzfFile struct {
	*bgzf.Writer
	f *os.File
}

func (b *bgzfFile) Close() error {
	if err := b.Writer.Close(); err != nil {
		b.f.Close()
		return fmt.Errorf("close bgzf stream: %w", err)
	}
	return b.f.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
